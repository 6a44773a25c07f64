package tap

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/browsertap/pkg/tap/internal"
)

type queueHarness struct {
	sched    *internal.ManualScheduler
	q        *Queue
	timeout  time.Duration
	timeouts []string
	fatal    []error
}

func newQueueHarness(timeout time.Duration) *queueHarness {
	h := &queueHarness{
		sched:   internal.NewManualScheduler(time.Time{}),
		timeout: timeout,
	}
	h.q = NewQueue(h.sched, QueueConfig{
		Timeout:   func() time.Duration { return h.timeout },
		OnTimeout: func(job Job) { h.timeouts = append(h.timeouts, job.Label) },
		OnFatal:   func(job Job, err error) { h.fatal = append(h.fatal, err) },
	})
	return h
}

func TestQueue_MixedJobsRunInEnqueueOrder(t *testing.T) {
	h := newQueueHarness(time.Second)
	var order []string

	asyncAfter := func(label string, d time.Duration) {
		h.q.EnqueueAsync(label, func(c *Completion) {
			order = append(order, label+":start")
			_, err := h.sched.AfterFunc(d, func() {
				order = append(order, label+":end")
				c.Done()
			})
			require.NoError(t, err)
		})
	}
	syncJob := func(label string) {
		h.q.EnqueueSync(label, func() { order = append(order, label) })
	}

	syncJob("a")
	asyncAfter("b", 30*time.Millisecond)
	syncJob("c")
	asyncAfter("d", 5*time.Millisecond)
	syncJob("e")

	h.sched.RunUntilIdle()
	assert.Equal(t, []string{"a", "b:start"}, order, "c must wait for b")

	h.sched.Advance(29 * time.Millisecond)
	assert.Equal(t, []string{"a", "b:start"}, order)

	h.sched.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"a", "b:start", "b:end", "c", "d:start", "d:end", "e"}, order)
	assert.Empty(t, h.timeouts)
}

func TestQueue_SlowAndFastAsyncKeepOrder(t *testing.T) {
	h := newQueueHarness(time.Second)
	var finished []int

	// later jobs are faster, but must still finish after earlier ones
	for i := 0; i < 5; i++ {
		i := i
		h.q.EnqueueAsync("job", func(c *Completion) {
			_, _ = h.sched.AfterFunc(time.Duration(50-10*i)*time.Millisecond, func() {
				finished = append(finished, i)
				c.Done()
			})
		})
	}

	h.sched.Advance(time.Second)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, finished)
}

func TestQueue_CompletionIsIdempotent(t *testing.T) {
	h := newQueueHarness(time.Second)
	var next int

	h.q.EnqueueAsync("twice", func(c *Completion) {
		c.Done()
		c.Done()
		c.Done()
	})
	h.q.EnqueueSync("next", func() { next++ })
	h.q.EnqueueAsync("hold", func(c *Completion) {})

	h.sched.RunUntilIdle()

	assert.Equal(t, 1, next, "queue must advance exactly once")
	assert.True(t, h.q.running, "third job should be in flight")
	assert.Empty(t, h.q.pending)
}

func TestQueue_CompletionFromAnotherGoroutine(t *testing.T) {
	h := newQueueHarness(time.Second)
	var ran bool

	h.q.EnqueueAsync("bg", func(c *Completion) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			c.Done()
			c.Done()
		}()
		<-done
	})
	h.q.EnqueueSync("after", func() { ran = true })

	h.sched.RunUntilIdle()
	assert.True(t, ran)
}

func TestQueue_TimeoutForcesFailingCompletion(t *testing.T) {
	h := newQueueHarness(50 * time.Millisecond)
	var ran bool
	var stalled *Completion

	h.q.EnqueueAsync("open", func(c *Completion) { stalled = c })
	h.q.EnqueueSync("next", func() { ran = true })

	h.sched.RunUntilIdle()
	h.sched.Advance(49 * time.Millisecond)
	assert.Empty(t, h.timeouts)
	assert.False(t, ran)

	h.sched.Advance(time.Millisecond)
	assert.Equal(t, []string{"open"}, h.timeouts)
	assert.True(t, ran, "queue should resume after the timeout")

	// a late completion from the stalled job changes nothing
	stalled.Done()
	h.sched.Advance(time.Second)
	assert.Equal(t, []string{"open"}, h.timeouts)
}

func TestQueue_CompletionCancelsTimeout(t *testing.T) {
	h := newQueueHarness(50 * time.Millisecond)

	h.q.EnqueueAsync("quick", func(c *Completion) {
		_, _ = h.sched.AfterFunc(10*time.Millisecond, c.Done)
	})
	h.sched.Advance(10 * time.Millisecond)

	_, timers := h.sched.Pending()
	assert.Equal(t, 0, timers, "guard should be cancelled")

	h.sched.Advance(time.Second)
	assert.Empty(t, h.timeouts)
}

func TestQueue_TimeoutReadAtDispatch(t *testing.T) {
	h := newQueueHarness(time.Second)

	h.q.EnqueueSync("set", func() { h.timeout = 20 * time.Millisecond })
	h.q.EnqueueAsync("stall", func(c *Completion) {})

	h.sched.RunUntilIdle()
	h.sched.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"stall"}, h.timeouts)
}

func TestQueue_PanicAbortsAndDropsRest(t *testing.T) {
	h := newQueueHarness(time.Second)
	var ran bool
	boom := errors.New("boom")

	h.q.EnqueueSync("explode", func() { panic(boom) })
	h.q.EnqueueSync("never", func() { ran = true })

	h.sched.RunUntilIdle()
	require.Len(t, h.fatal, 1)
	assert.ErrorIs(t, h.fatal[0], boom)
	assert.Contains(t, h.fatal[0].Error(), "explode")
	assert.False(t, ran)

	// the queue stays closed
	h.q.EnqueueSync("late", func() { ran = true })
	h.sched.RunUntilIdle()
	assert.False(t, ran)
}

func TestQueue_PanicInAsyncJobCancelsGuard(t *testing.T) {
	h := newQueueHarness(10 * time.Millisecond)

	h.q.EnqueueAsync("explode", func(c *Completion) { panic("bad state") })
	h.sched.RunUntilIdle()
	h.sched.Advance(time.Second)

	require.Len(t, h.fatal, 1)
	assert.Contains(t, h.fatal[0].Error(), "bad state")
	assert.Empty(t, h.timeouts, "an aborted job must not also time out")
}

func TestQueue_NothingRunsBeforeSchedulerTurn(t *testing.T) {
	h := newQueueHarness(time.Second)
	var ran bool

	h.q.EnqueueSync("job", func() { ran = true })
	assert.False(t, ran, "enqueue must not run the job on the caller's goroutine")

	h.sched.RunUntilIdle()
	assert.True(t, ran)
}
