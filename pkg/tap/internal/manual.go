// Package internal provides internal utilities for the tap package.
package internal

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler is a scheduler for testing that runs everything on the
// goroutine calling RunUntilIdle or Advance, against a virtual clock.
// This abstraction allows for deterministic testing of time-dependent code.
//
// Submit is safe for concurrent use; tasks only ever execute inside
// RunUntilIdle and Advance.
type ManualScheduler struct {
	mu      sync.Mutex
	current time.Time
	ready   []func()
	timers  []*manualTimer
	seq     uint64
}

type manualTimer struct {
	when    time.Time
	seq     uint64
	fn      func()
	stopped bool
}

// NewManualScheduler creates a new ManualScheduler with its clock initialized
// to the given time. If t is zero, it initializes to a reasonable default
// start time.
func NewManualScheduler(t time.Time) *ManualScheduler {
	if t.IsZero() {
		// Start at a reasonable time to avoid edge cases with zero time
		t = time.Unix(1000000000, 0) // 2001-09-09
	}
	return &ManualScheduler{current: t}
}

// Now returns the virtual time.
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Submit queues fn to run on a later turn.
func (m *ManualScheduler) Submit(fn func()) error {
	m.mu.Lock()
	m.ready = append(m.ready, fn)
	m.mu.Unlock()
	return nil
}

// AfterFunc schedules fn to run once the virtual clock has advanced by d.
// The returned function cancels the timer if it has not fired yet.
func (m *ManualScheduler) AfterFunc(d time.Duration, fn func()) (func(), error) {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	m.seq++
	t := &manualTimer{when: m.current.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		t.stopped = true
		m.mu.Unlock()
	}, nil
}

// RunUntilIdle runs submitted tasks, including any they submit, until none
// remain. Timers are not fired unless they are already due.
func (m *ManualScheduler) RunUntilIdle() {
	for {
		if fn := m.popReady(); fn != nil {
			fn()
			continue
		}
		if fn := m.popDue(); fn != nil {
			fn()
			continue
		}
		return
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and draining submitted tasks between them.
// Panics if d is negative to maintain monotonicity.
func (m *ManualScheduler) Advance(d time.Duration) {
	if d < 0 {
		panic("ManualScheduler.Advance: duration must be non-negative")
	}
	m.mu.Lock()
	target := m.current.Add(d)
	m.mu.Unlock()

	for {
		m.RunUntilIdle()
		m.mu.Lock()
		next := m.nextTimerLocked()
		if next == nil || next.when.After(target) {
			m.current = target
			m.mu.Unlock()
			m.RunUntilIdle()
			return
		}
		if next.when.After(m.current) {
			m.current = next.when
		}
		m.mu.Unlock()
	}
}

// Pending reports the number of submitted tasks and live timers.
func (m *ManualScheduler) Pending() (tasks, timers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.timers {
		if !t.stopped {
			timers++
		}
	}
	return len(m.ready), timers
}

func (m *ManualScheduler) popReady() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ready) == 0 {
		return nil
	}
	fn := m.ready[0]
	m.ready[0] = nil
	m.ready = m.ready[1:]
	return fn
}

func (m *ManualScheduler) popDue() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.nextTimerLocked()
	if t == nil || t.when.After(m.current) {
		return nil
	}
	t.stopped = true
	return t.fn
}

func (m *ManualScheduler) nextTimerLocked() *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].when.Equal(live[j].when) {
			return live[i].seq < live[j].seq
		}
		return live[i].when.Before(live[j].when)
	})
	return live[0]
}
