package rodpage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"

	"github.com/thesyncim/browsertap/pkg/tap"
)

// queryJS runs one element operation. It always answers
// {value, querySet} so that "no value" and "the element set" stay distinct.
const queryJS = `(op, selector, args) => {
	const els = Array.from(document.querySelectorAll(selector));
	switch (op) {
	case "text":
		return {value: els.map(e => e.textContent).join(""), querySet: false};
	case "val":
		if (args && args.length > 0) {
			for (const e of els) {
				e.value = args[0];
				e.dispatchEvent(new Event("input", {bubbles: true}));
				e.dispatchEvent(new Event("change", {bubbles: true}));
			}
			return {value: null, querySet: true};
		}
		return {value: els.length ? els[0].value : null, querySet: false};
	case "click":
		if (!els.length) {
			throw new Error("no element matches " + selector);
		}
		els[0].click();
		return {value: null, querySet: true};
	}
	throw new Error("unsupported operation " + op);
}`

// ErrUnsupportedFormat is returned by Render for unknown file extensions.
var ErrUnsupportedFormat = errors.New("rodpage: unsupported render format")

// Page is a single Chrome tab. It implements tap.PageDriver and tap.Bridge.
type Page struct {
	page    *rod.Page
	timeout time.Duration
	stop    context.CancelFunc

	mu        sync.Mutex
	onLoad    func(error)
	onConsole func(string)
}

var (
	_ tap.PageDriver = (*Page)(nil)
	_ tap.Bridge     = (*Page)(nil)
)

func newPage(page *rod.Page, timeout time.Duration) *Page {
	ctx, stop := context.WithCancel(context.Background())
	p := &Page{
		page:    page,
		timeout: timeout,
		stop:    stop,
	}
	wait := page.Context(ctx).EachEvent(
		func(e *proto.PageLoadEventFired) {
			p.loadFinished(nil)
		},
		func(e *proto.RuntimeConsoleAPICalled) {
			p.consoleMessage(consoleText(e.Args))
		},
	)
	go wait()
	return p
}

// SetViewport resizes the page.
func (p *Page) SetViewport(width, height int) error {
	pg := p.page.Timeout(p.timeout)
	defer pg.CancelTimeout()
	return pg.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

// Open starts navigating to url. The outcome reaches the OnLoadFinished
// handler: a load event on success, the navigation error otherwise.
func (p *Page) Open(url string) error {
	go func() {
		pg := p.page.Timeout(p.timeout)
		defer pg.CancelTimeout()
		if err := pg.Navigate(url); err != nil {
			p.loadFinished(fmt.Errorf("failed to navigate to %s: %w", url, err))
		}
	}()
	return nil
}

// OnLoadFinished replaces the load handler.
func (p *Page) OnLoadFinished(handler func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLoad = handler
}

// OnConsoleMessage replaces the console handler.
func (p *Page) OnConsoleMessage(handler func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConsole = handler
}

// Evaluate runs a function expression in the page.
func (p *Page) Evaluate(js string, args ...any) (any, error) {
	pg := p.page.Timeout(p.timeout)
	defer pg.CancelTimeout()
	res, err := pg.Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	return normalize(res.Value.Val()), nil
}

// Query implements tap.Bridge with CSS selectors.
func (p *Page) Query(q tap.ElementQuery) (tap.QueryResult, error) {
	args := q.Args
	if args == nil {
		args = []any{}
	}
	pg := p.page.Timeout(p.timeout)
	defer pg.CancelTimeout()
	res, err := pg.Eval(queryJS, q.Op.String(), q.Selector, args)
	if err != nil {
		return tap.QueryResult{}, fmt.Errorf("query failed: %w", err)
	}
	if res.Value.Get("querySet").Bool() {
		return tap.QueryResult{QuerySet: true}, nil
	}
	return tap.QueryResult{Value: normalize(res.Value.Get("value").Val())}, nil
}

// Render writes a screenshot of the visible page to path. PNG, JPEG and
// WebP are captured as images; ".pdf" prints the page.
func (p *Page) Render(path string) error {
	format, pdf, err := renderFormat(path)
	if err != nil {
		return err
	}
	pg := p.page.Timeout(p.timeout)
	defer pg.CancelTimeout()

	if pdf {
		r, err := pg.PDF(&proto.PagePrintToPDF{})
		if err != nil {
			return fmt.Errorf("failed to print %s: %w", path, err)
		}
		return utils.OutputFile(path, r)
	}
	data, err := pg.Screenshot(false, &proto.PageCaptureScreenshot{Format: format})
	if err != nil {
		return fmt.Errorf("failed to capture %s: %w", path, err)
	}
	return utils.OutputFile(path, data)
}

// Release stops event delivery and closes the tab.
func (p *Page) Release() error {
	p.stop()
	return p.page.Close()
}

func (p *Page) loadFinished(err error) {
	p.mu.Lock()
	h := p.onLoad
	p.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (p *Page) consoleMessage(msg string) {
	p.mu.Lock()
	h := p.onConsole
	p.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// renderFormat maps a file extension to a capture format.
func renderFormat(path string) (proto.PageCaptureScreenshotFormat, bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return proto.PageCaptureScreenshotFormatPng, false, nil
	case ".jpg", ".jpeg":
		return proto.PageCaptureScreenshotFormatJpeg, false, nil
	case ".webp":
		return proto.PageCaptureScreenshotFormatWebp, false, nil
	case ".pdf":
		return "", true, nil
	}
	return "", false, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
}

// consoleText joins console.log arguments with spaces, like the DevTools
// console does.
func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == nil:
		case !arg.Value.Nil():
			if s, ok := arg.Value.Val().(string); ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, arg.Value.JSON("", ""))
			}
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}

// normalize turns JSON numbers into float64, matching what page scripts see.
func normalize(v any) any {
	switch v := v.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}
