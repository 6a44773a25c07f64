package tap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoop(t *testing.T) *LoopScheduler {
	t.Helper()
	s, err := NewLoopScheduler(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func TestLoopScheduler_SubmitRunsInOrder(t *testing.T) {
	s := newLoop(t)

	got := make(chan int, 3)
	for i := range 3 {
		require.NoError(t, s.Submit(func() { got <- i }))
	}
	for want := range 3 {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	}
}

func TestLoopScheduler_AfterFuncFires(t *testing.T) {
	s := newLoop(t)

	fired := make(chan time.Time, 1)
	start := time.Now()
	_, err := s.AfterFunc(20*time.Millisecond, func() { fired <- time.Now() })
	require.NoError(t, err)

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 15*time.Millisecond, "timer fired early")
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestLoopScheduler_StopCancelsTimer(t *testing.T) {
	s := newLoop(t)

	fired := make(chan struct{}, 1)
	stopped := make(chan struct{})
	require.NoError(t, s.Submit(func() {
		stop, err := s.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })
		if assert.NoError(t, err) {
			stop()
			stop()
		}
		close(stopped)
	}))
	<-stopped

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoopScheduler_CloseIsIdempotent(t *testing.T) {
	s, err := NewLoopScheduler(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
	assert.Error(t, s.Submit(func() {}), "submit after close is rejected")
}
