package tap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/logiface"
)

// Session is a scripted test run against one page.
//
// Every method queues work and returns immediately; the work runs later, in
// call order, one step at a time. Methods that read from the page return a
// Deferred that later steps (typically Is or Like) consume:
//
//	s.Open("/")
//	s.Is(s.Text("title"), "Home", "Homepage loaded")
//	s.Done()
//	status, err := s.Wait(ctx)
type Session struct {
	id       string
	sched    Scheduler
	owned    *LoopScheduler
	queue    *Queue
	reporter *Reporter
	driver   PageDriver
	bridge   Bridge
	exiter   Exiter
	log      *logiface.Logger[logiface.Event]

	// scheduler goroutine only
	config Config
	opened bool
	early  *loadResult
	waiter func(error)

	finishing  atomic.Bool
	done       chan struct{}
	finishOnce sync.Once
	status     int
	err        error
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithScheduler runs the session on sched instead of a private event loop.
func WithScheduler(sched Scheduler) Option {
	return func(s *Session) {
		s.sched = sched
	}
}

// WithOutput writes the report to w (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(s *Session) {
		s.reporter = NewReporter(w)
	}
}

// WithReporter uses an existing Reporter, e.g. to share counters.
func WithReporter(r *Reporter) Option {
	return func(s *Session) {
		s.reporter = r
	}
}

// WithLogger sets the operational logger. A nil logger disables logging.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithExiter sets the collaborator told the final status.
func WithExiter(e Exiter) Option {
	return func(s *Session) {
		s.exiter = e
	}
}

// WithID overrides the generated session ID used in logs.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// NewSession creates a session driving driver. If bridge is nil, driver must
// implement Bridge itself.
//
// Options can be provided to customize behavior:
//   - WithScheduler: share a scheduler (default: a private go-eventloop loop)
//   - WithOutput / WithReporter: report destination (default os.Stdout)
//   - WithLogger: operational logs (default: none)
//   - WithExiter: receives the final status
func NewSession(cfg Config, driver PageDriver, bridge Bridge, opts ...Option) (*Session, error) {
	if driver == nil {
		return nil, errors.New("tap: nil page driver")
	}
	if bridge == nil {
		b, ok := driver.(Bridge)
		if !ok {
			return nil, errors.New("tap: nil bridge and driver does not implement Bridge")
		}
		bridge = b
	}

	s := &Session{
		id:     uuid.NewString(),
		driver: driver,
		bridge: bridge,
		config: cfg.withDefaults(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = NewReporter(os.Stdout)
	}
	if s.exiter == nil {
		s.exiter = ExitFunc(func(int) {})
	}
	if s.log != nil {
		s.log = s.log.Clone().Str("session", s.id).Logger()
	}
	if s.sched == nil {
		loop, err := NewLoopScheduler(context.Background())
		if err != nil {
			return nil, err
		}
		s.sched = loop
		s.owned = loop
	}

	s.queue = NewQueue(s.sched, QueueConfig{
		Timeout:   func() time.Duration { return s.config.Timeout },
		OnTimeout: s.onTimeout,
		OnFatal:   s.onFatal,
		Logger:    s.log,
	})
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Reporter returns the session's reporter.
func (s *Session) Reporter() *Reporter {
	return s.reporter
}

// Set queues a configuration change. Recognised keys are "timeout"
// (milliseconds, or a time.Duration), "width", "height" and "base_url".
// Invalid settings are rejected immediately and nothing is queued.
//
//	s.Set("timeout", 30000)
//	s.Open("/a_sloooooow_page")
//	s.Set("timeout", 10000) // put it back once we're done
func (s *Session) Set(key string, value any) error {
	apply, err := setting(key, value)
	if err != nil {
		return err
	}
	s.queue.EnqueueSync("set", func() { apply(&s.config) })
	return nil
}

// SetTimeout queues a change of the timeout for waiting steps.
func (s *Session) SetTimeout(d time.Duration) error {
	return s.Set(SettingTimeout, d)
}

// SetViewport queues a change of the viewport used when the page is first
// opened.
func (s *Session) SetViewport(width, height int) error {
	w, err := setting(SettingWidth, width)
	if err != nil {
		return err
	}
	h, err := setting(SettingHeight, height)
	if err != nil {
		return err
	}
	s.queue.EnqueueSync("set", func() {
		w(&s.config)
		h(&s.config)
	})
	return nil
}

// Diag queues a comment line in the report.
func (s *Session) Diag(message string) {
	s.queue.EnqueueSync("diag", func() { s.reporter.Diag(message) })
}

// Open navigates to BaseURL+path and waits for the page to load.
func (s *Session) Open(path string) {
	s.queue.EnqueueAsync("open", func(c *Completion) {
		s.ensurePage()
		s.early, s.waiter = nil, nil
		s.driver.OnLoadFinished(s.loadHandler("open", c))
		url := s.config.BaseURL + path
		s.log.Info().Str("url", url).Log("opening page")
		if err := s.driver.Open(url); err != nil {
			panic(fmt.Errorf("open %s: %w", url, err))
		}
	})
}

// Sleep pauses the run. Prefer a waiting step where one exists; note that a
// pause longer than the timeout fails.
func (s *Session) Sleep(d time.Duration) {
	s.queue.EnqueueAsync("sleep", func(c *Completion) {
		s.reporter.Diag(fmt.Sprintf("sleeping for %dms", d.Milliseconds()))
		_, err := s.sched.AfterFunc(d, func() {
			if c.Fired() {
				return
			}
			s.reporter.Diag("finished sleeping")
			c.Done()
		})
		if err != nil {
			panic(fmt.Errorf("sleep: %w", err))
		}
	})
}

// Screenshot renders the page to filename. The format follows the extension.
func (s *Session) Screenshot(filename string) {
	s.queue.EnqueueSync("screenshot", func() {
		s.requirePage()
		if err := s.driver.Render(filename); err != nil {
			panic(fmt.Errorf("screenshot %s: %w", filename, err))
		}
	})
}

// Done finishes the run: it writes the plan line, releases the page and
// reports the status to the Exiter and to Wait. Only the first call counts.
func (s *Session) Done() {
	if !s.finishing.CompareAndSwap(false, true) {
		s.log.Warning().Log("Done called more than once, ignoring")
		return
	}
	s.queue.EnqueueSync("done", func() {
		code := s.reporter.Finish()
		if s.opened {
			if err := s.driver.Release(); err != nil {
				s.log.Warning().Err(err).Log("failed to release page")
			}
		}
		s.queue.Close()
		counts := s.reporter.Counts()
		s.log.Info().
			Int("total", counts.Total).
			Int("failed", counts.Failed).
			Int("status", code).
			Log("session finished")
		s.finish(code, nil)
		s.exiter.Exit(code)
	})
}

// Is asserts that got equals expected. Either may be a literal, a Deferred or
// a Script. Values are equal when identical or when they render the same, so
// "5" equals 5.
func (s *Session) Is(got, expected any, description string) {
	s.queue.EnqueueSync("is", func() {
		g := s.resolve(got)
		e := s.resolve(expected)
		s.reporter.RecordComparison(looseEqual(g, e), description, g, e)
	})
}

// Like asserts that got, rendered as a string, matches pattern.
func (s *Session) Like(got any, pattern *regexp.Regexp, description string) {
	s.queue.EnqueueSync("like", func() {
		if pattern == nil {
			panic(errors.New("like: nil pattern"))
		}
		g := s.resolve(got)
		s.reporter.RecordComparison(pattern.MatchString(formatValue(g)), description, g, pattern)
	})
}

// Text returns the combined text content of the elements matching selector.
func (s *Session) Text(selector string) *Deferred[any] {
	return s.invoke(OpText, selector)
}

// Val returns the value of the first element matching selector.
func (s *Session) Val(selector string) *Deferred[any] {
	return s.invoke(OpValue, selector)
}

// SetVal sets the value of the elements matching selector.
//
//	s.SetVal(`#myform input[name="firstname"]`, "waawaamilk")
//	s.Is(s.Val(`#myform input[name="firstname"]`), "waawaamilk", "First name set correctly")
func (s *Session) SetVal(selector string, value any) {
	s.invoke(OpValue, selector, value)
}

// Click clicks the element matching selector. If the click is expected to
// load another page, use ClickAndWait.
func (s *Session) Click(selector string) {
	s.invoke(OpClick, selector)
}

// ClickAndWait clicks the element matching selector, then waits for the
// resulting page load. A load that finishes before the waiting step starts
// still counts.
func (s *Session) ClickAndWait(selector string) {
	s.queue.EnqueueSync(OpClick.String(), func() {
		s.requirePage()
		s.armLoad()
		s.query(OpClick, selector, nil)
	})
	s.queue.EnqueueAsync("click_and_wait", func(c *Completion) {
		s.requirePage()
		h := s.loadHandler("click_and_wait", c)
		if r := s.early; r != nil {
			s.early = nil
			h(r.err)
			return
		}
		s.waiter = h
	})
}

// Eval evaluates a function expression in the page, e.g.
// `() => document.title`.
func (s *Session) Eval(js string) *Deferred[any] {
	d := NewDeferred[any]()
	s.queue.EnqueueSync("eval", func() {
		s.requirePage()
		v, err := s.driver.Evaluate(js)
		if err != nil {
			panic(fmt.Errorf("eval: %w", err))
		}
		d.Resolve(v)
	})
	return d
}

// Wait blocks until Done has run or the session aborted, and returns the exit
// status. After an abort the error wraps ErrAborted.
func (s *Session) Wait(ctx context.Context) (int, error) {
	select {
	case <-s.done:
		return s.status, s.err
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Finished is closed once the session has a final status.
func (s *Session) Finished() <-chan struct{} {
	return s.done
}

// Finishing reports whether Done has been called.
func (s *Session) Finishing() bool {
	return s.finishing.Load()
}

// Close stops the private event loop, if the session created one.
func (s *Session) Close(ctx context.Context) error {
	if s.owned == nil {
		return nil
	}
	return s.owned.Close(ctx)
}

func (s *Session) invoke(op ElementOp, selector string, args ...any) *Deferred[any] {
	d := NewDeferred[any]()
	s.queue.EnqueueSync(op.String(), func() {
		s.requirePage()
		d.Resolve(s.query(op, selector, args))
	})
	return d
}

// query runs one bridge operation. A query-set result reads as nil.
func (s *Session) query(op ElementOp, selector string, args []any) any {
	res, err := s.bridge.Query(ElementQuery{Op: op, Selector: selector, Args: args})
	if err != nil {
		panic(fmt.Errorf("%s %q: %w", op, selector, err))
	}
	if res.QuerySet {
		return nil
	}
	return res.Value
}

// resolve reads assertion operands: Deferreds must already be resolved and
// Scripts are evaluated now.
func (s *Session) resolve(v any) any {
	switch v := v.(type) {
	case deferredValue:
		val, err := v.anyValue()
		if err != nil {
			panic(err)
		}
		return val
	case Script:
		s.requirePage()
		val, err := s.driver.Evaluate(string(v))
		if err != nil {
			panic(fmt.Errorf("eval: %w", err))
		}
		return val
	}
	return v
}

func (s *Session) ensurePage() {
	if s.opened {
		return
	}
	if err := s.driver.SetViewport(s.config.Width, s.config.Height); err != nil {
		panic(fmt.Errorf("set viewport: %w", err))
	}
	s.driver.OnConsoleMessage(func(message string) {
		s.submit(func() { s.reporter.DiagIndent("console> "+message, 1) })
	})
	s.opened = true
}

func (s *Session) requirePage() {
	if !s.opened {
		panic(ErrNoPage)
	}
}

type loadResult struct {
	err error
}

// armLoad captures the next page load, so that a navigation triggered by a
// click is not missed if it finishes before the waiting step starts.
func (s *Session) armLoad() {
	s.early, s.waiter = nil, nil
	s.driver.OnLoadFinished(func(err error) {
		s.submit(func() {
			if w := s.waiter; w != nil {
				s.waiter = nil
				w(err)
				return
			}
			s.early = &loadResult{err: err}
		})
	})
}

// loadHandler completes c once the page reports a finished load.
func (s *Session) loadHandler(label string, c *Completion) func(error) {
	return func(loadErr error) {
		if c.Fired() {
			return
		}
		s.submit(func() {
			if c.Fired() {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					c.fire(func() { s.queue.abort(Job{Kind: AsyncJob, Label: label}, r) })
				}
			}()
			if loadErr != nil {
				s.reporter.Diag("load failed: " + loadErr.Error())
				s.log.Warning().Err(loadErr).Str("job", label).Log("page load failed")
			} else {
				href, err := s.driver.Evaluate(`() => location.href`)
				if err != nil {
					panic(fmt.Errorf("read location: %w", err))
				}
				s.reporter.Diag("loaded: " + formatValue(href))
			}
			c.Done()
		})
	}
}

func (s *Session) onTimeout(job Job) {
	s.reporter.Record(false, job.Label+" timed out")
}

func (s *Session) onFatal(job Job, err error) {
	s.reporter.Diag("Internal error: " + err.Error())
	s.finish(ExitInternalError, fmt.Errorf("%w: %w", ErrAborted, err))
	s.exiter.Exit(ExitInternalError)
}

func (s *Session) finish(code int, err error) {
	s.finishOnce.Do(func() {
		s.status = code
		s.err = err
		close(s.done)
	})
}

func (s *Session) submit(fn func()) {
	if err := s.sched.Submit(fn); err != nil {
		s.log.Err().Err(err).Log("failed to submit to scheduler")
	}
}
