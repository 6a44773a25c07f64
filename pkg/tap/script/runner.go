// Package script runs tap test scripts written in JavaScript.
//
// A script builds one or more sessions with the Test constructor and drives
// them with the same procedural calls as the Go API:
//
//	var t = new Test('https://example.com');
//	t.open('/');
//	t.is(t.text('title'), 'Example Domain', 'Homepage loaded');
//	t.like(t.text('h1'), /example/i, 'Heading mentions example');
//	t.done();
//
// Methods: set, diag, open, sleep, screenshot, done, like, is, text, val,
// click, click_and_wait and eval. Assertion operands may be values returned by
// text, val or eval, plain values, or functions, which are evaluated in the
// page when the assertion runs.
//
// like accepts a RegExp or a pattern string. Of the RegExp flags only i, m and
// s carry over to the Go regexp; g, y and u are ignored.
package script

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/logiface"

	"github.com/thesyncim/browsertap/pkg/tap"
)

// ErrDoneNotCalled is returned when a script leaves a session unfinished.
var ErrDoneNotCalled = errors.New("script: done() was never called")

// SessionFactory creates the session behind a script's `new Test(base)`.
type SessionFactory func(baseURL string) (*tap.Session, error)

// Runner executes scripts.
type Runner struct {
	factory SessionFactory
	log     *logiface.Logger[logiface.Event]
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner)

// WithLogger sets the operational logger.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// NewRunner creates a runner that builds sessions with factory.
func NewRunner(factory SessionFactory, opts ...Option) *Runner {
	r := &Runner{factory: factory}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes src, then waits for every session the script created. The
// status is the highest session status, or tap.ExitInternalError if the
// script itself failed.
func (r *Runner) Run(ctx context.Context, src, filename string) (int, error) {
	vm := goja.New()
	var sessions []*tap.Session

	err := vm.Set("Test", func(call goja.ConstructorCall) *goja.Object {
		base := ""
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			base = arg.String()
		}
		s, err := r.factory(base)
		if err != nil {
			panic(vm.NewGoError(fmt.Errorf("new Test(%q): %w", base, err)))
		}
		sessions = append(sessions, s)
		r.log.Debug().Str("session", s.ID()).Str("base_url", base).Log("test session created")
		bind(vm, call.This, s)
		return nil
	})
	if err != nil {
		return tap.ExitInternalError, err
	}

	status := 0
	var errs []error
	_, scriptErr := vm.RunScript(filename, src)
	if scriptErr != nil {
		status = tap.ExitInternalError
		errs = append(errs, fmt.Errorf("script %s: %w", filename, scriptErr))
	}

	for _, s := range sessions {
		if !s.Finishing() {
			r.log.Warning().Str("session", s.ID()).Log("script did not call done(), finishing")
			if scriptErr == nil {
				errs = append(errs, ErrDoneNotCalled)
			}
			s.Done()
		}
		code, err := s.Wait(ctx)
		if err != nil {
			errs = append(errs, err)
			code = max(code, tap.ExitInternalError)
		}
		status = max(status, code)
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return status, errors.Join(errs...)
}

// bind installs the Test methods on obj.
func bind(vm *goja.Runtime, obj *goja.Object, s *tap.Session) {
	must := func(err error) {
		if err != nil {
			panic(vm.NewGoError(err))
		}
	}
	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		must(obj.Set(name, fn))
	}

	set("set", func(call goja.FunctionCall) goja.Value {
		must(s.Set(call.Argument(0).String(), call.Argument(1).Export()))
		return goja.Undefined()
	})
	set("diag", func(call goja.FunctionCall) goja.Value {
		s.Diag(str(call.Argument(0)))
		return goja.Undefined()
	})
	set("open", func(call goja.FunctionCall) goja.Value {
		s.Open(call.Argument(0).String())
		return goja.Undefined()
	})
	set("sleep", func(call goja.FunctionCall) goja.Value {
		ms := call.Argument(0).ToInteger()
		s.Sleep(time.Duration(ms) * time.Millisecond)
		return goja.Undefined()
	})
	set("screenshot", func(call goja.FunctionCall) goja.Value {
		s.Screenshot(call.Argument(0).String())
		return goja.Undefined()
	})
	set("done", func(call goja.FunctionCall) goja.Value {
		s.Done()
		return goja.Undefined()
	})
	set("is", func(call goja.FunctionCall) goja.Value {
		s.Is(operand(call.Argument(0)), operand(call.Argument(1)), str(call.Argument(2)))
		return goja.Undefined()
	})
	set("like", func(call goja.FunctionCall) goja.Value {
		re, err := pattern(call.Argument(1))
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		s.Like(operand(call.Argument(0)), re, str(call.Argument(2)))
		return goja.Undefined()
	})
	set("text", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(s.Text(call.Argument(0).String()))
	})
	set("val", func(call goja.FunctionCall) goja.Value {
		selector := call.Argument(0).String()
		if len(call.Arguments) > 1 {
			s.SetVal(selector, call.Argument(1).Export())
			return goja.Undefined()
		}
		return vm.ToValue(s.Val(selector))
	})
	set("click", func(call goja.FunctionCall) goja.Value {
		s.Click(call.Argument(0).String())
		return goja.Undefined()
	})
	set("click_and_wait", func(call goja.FunctionCall) goja.Value {
		s.ClickAndWait(call.Argument(0).String())
		return goja.Undefined()
	})
	set("eval", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(s.Eval(call.Argument(0).String()))
	})
}

// operand converts an assertion argument. Functions become page scripts;
// everything else, including values returned by text/val/eval, is exported.
func operand(v goja.Value) any {
	if _, ok := goja.AssertFunction(v); ok {
		return tap.Script(v.String())
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// pattern converts a JS RegExp (or a pattern string) to a Go regexp. Flags
// other than i, m and s have no Go equivalent and are dropped.
func pattern(v goja.Value) (*regexp.Regexp, error) {
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "RegExp" {
		source := obj.Get("source").String()
		var flags strings.Builder
		for _, f := range obj.Get("flags").String() {
			switch f {
			case 'i', 'm', 's':
				flags.WriteRune(f)
			}
		}
		if flags.Len() > 0 {
			source = "(?" + flags.String() + ")" + source
		}
		return regexp.Compile(source)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, errors.New("like: missing pattern")
	}
	return regexp.Compile(v.String())
}

func str(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
