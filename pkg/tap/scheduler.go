package tap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-eventloop"
)

// Scheduler is the single-goroutine execution context a Queue runs on.
//
// Every function passed to Submit or AfterFunc must run on the same goroutine,
// one at a time, in submission (respectively deadline) order. Submit must be
// safe to call from any goroutine.
type Scheduler interface {
	// Submit runs fn on a later turn of the scheduler.
	Submit(fn func()) error
	// AfterFunc runs fn once d has elapsed. The returned function cancels the
	// timer; calling it after the timer fired has no effect.
	AfterFunc(d time.Duration, fn func()) (stop func(), err error)
}

// LoopScheduler is a Scheduler backed by a go-eventloop Loop, running on its
// own goroutine.
type LoopScheduler struct {
	loop *eventloop.Loop
	js   *eventloop.JS

	done    chan struct{}
	runErr  error
	closeMu sync.Mutex
	closed  bool
}

// NewLoopScheduler creates an event loop and starts running it. The loop stops
// when ctx is cancelled or Close is called.
func NewLoopScheduler(ctx context.Context) (*LoopScheduler, error) {
	loop, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create event loop: %w", err)
	}
	js, err := eventloop.NewJS(loop)
	if err != nil {
		_ = loop.Close()
		return nil, fmt.Errorf("failed to create timer adapter: %w", err)
	}

	s := &LoopScheduler{
		loop: loop,
		js:   js,
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		s.runErr = loop.Run(ctx)
	}()
	return s, nil
}

// Submit implements Scheduler.
func (s *LoopScheduler) Submit(fn func()) error {
	return s.loop.Submit(fn)
}

// AfterFunc implements Scheduler. Delays are rounded down to milliseconds.
func (s *LoopScheduler) AfterFunc(d time.Duration, fn func()) (func(), error) {
	if d < 0 {
		d = 0
	}
	id, err := s.js.SetTimeout(fn, int(d/time.Millisecond))
	if err != nil {
		return nil, err
	}
	return func() { _ = s.js.ClearTimeout(id) }, nil
}

// Close shuts the loop down, waiting for queued tasks to drain or for ctx to
// expire. It is safe to call more than once.
func (s *LoopScheduler) Close(ctx context.Context) error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	err := s.loop.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if errors.Is(err, eventloop.ErrLoopTerminated) {
		err = nil
	}
	return err
}

// Done is closed once the loop has stopped running.
func (s *LoopScheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the loop stopped with. It is only meaningful once Done
// is closed.
func (s *LoopScheduler) Err() error {
	select {
	case <-s.done:
		return s.runErr
	default:
		return nil
	}
}
