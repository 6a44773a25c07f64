package tap

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// JobKind distinguishes jobs that finish when their action returns from jobs
// that finish when they signal completion.
type JobKind int

const (
	// SyncJob is complete as soon as its action returns.
	SyncJob JobKind = iota
	// AsyncJob is complete once its Completion fires.
	AsyncJob
)

// String returns a string representation of the JobKind.
func (k JobKind) String() string {
	switch k {
	case SyncJob:
		return "sync"
	case AsyncJob:
		return "async"
	default:
		return "unknown"
	}
}

// Job is one queued unit of work. Label is only used for diagnostics.
type Job struct {
	Kind  JobKind
	Label string

	sync  func()
	async func(*Completion)
}

// Completion is the single-fire token handed to an async job. Only the first
// Done call has any effect; it may be called from any goroutine.
type Completion struct {
	fired   atomic.Bool
	release func()
}

// Done marks the job complete.
func (c *Completion) Done() {
	c.fire(nil)
}

// Fired reports whether the job has already completed, either by Done or by
// its timeout.
func (c *Completion) Fired() bool {
	return c.fired.Load()
}

// fire runs before (if any) and releases the queue, but only for the first
// caller.
func (c *Completion) fire(before func()) bool {
	if !c.fired.CompareAndSwap(false, true) {
		return false
	}
	if before != nil {
		before()
	}
	c.release()
	return true
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	// Timeout returns the limit for the async job about to start. It is read
	// on the scheduler goroutine when the job is dispatched.
	Timeout func() time.Duration

	// OnTimeout is called on the scheduler goroutine when an async job is
	// forced to complete by its timeout.
	OnTimeout func(job Job)

	// OnFatal is called on the scheduler goroutine when a job action panics.
	// The queue is closed before OnFatal runs.
	OnFatal func(job Job, err error)

	Logger *logiface.Logger[logiface.Event]
}

// Queue runs jobs strictly one at a time, in the order they were enqueued.
//
// All state is owned by the scheduler goroutine: the Enqueue methods hop onto
// it via Scheduler.Submit, and jobs, completions and timeouts run there.
type Queue struct {
	sched  Scheduler
	config QueueConfig

	pending []Job
	running bool
	closed  bool
}

// NewQueue creates a queue running on sched.
func NewQueue(sched Scheduler, config QueueConfig) *Queue {
	if config.Timeout == nil {
		config.Timeout = func() time.Duration { return DefaultTimeout }
	}
	return &Queue{
		sched:  sched,
		config: config,
	}
}

// EnqueueSync appends a job whose action completes when it returns.
func (q *Queue) EnqueueSync(label string, action func()) {
	q.enqueue(Job{Kind: SyncJob, Label: label, sync: action})
}

// EnqueueAsync appends a job that completes when the Completion passed to
// action fires, or when the timeout in effect at dispatch elapses.
func (q *Queue) EnqueueAsync(label string, action func(*Completion)) {
	q.enqueue(Job{Kind: AsyncJob, Label: label, async: action})
}

// Close drops pending jobs and refuses new ones. It must be called on the
// scheduler goroutine, typically from a job.
func (q *Queue) Close() {
	q.closed = true
	q.pending = nil
}

func (q *Queue) enqueue(job Job) {
	err := q.sched.Submit(func() {
		if q.closed {
			q.config.Logger.Warning().
				Str("job", job.Label).
				Log("job enqueued after the queue closed, dropping")
			return
		}
		q.pending = append(q.pending, job)
		q.drain()
	})
	if err != nil {
		q.config.Logger.Err().
			Err(err).
			Str("job", job.Label).
			Log("failed to submit job to scheduler")
	}
}

// drain starts the next job, unless one is in flight or none is pending.
func (q *Queue) drain() {
	if q.running || q.closed || len(q.pending) == 0 {
		return
	}
	q.running = true
	job := q.pending[0]
	q.pending[0] = Job{}
	q.pending = q.pending[1:]
	q.dispatch(job)
}

func (q *Queue) dispatch(job Job) {
	var guard *timeoutGuard
	defer func() {
		if r := recover(); r != nil {
			guard.cancel()
			q.abort(job, r)
		}
	}()

	q.config.Logger.Debug().
		Str("job", job.Label).
		Str("kind", job.Kind.String()).
		Log("job started")

	if job.Kind == SyncJob {
		job.sync()
		q.newCompletion(job, nil).Done()
		return
	}

	guard = &timeoutGuard{}
	c := q.newCompletion(job, guard)
	guard.start(q, job, c)
	job.async(c)
}

func (q *Queue) newCompletion(job Job, guard *timeoutGuard) *Completion {
	return &Completion{release: func() {
		err := q.sched.Submit(func() {
			guard.cancel()
			q.config.Logger.Debug().
				Str("job", job.Label).
				Log("job finished")
			q.running = false
			if err := q.sched.Submit(q.drain); err != nil {
				q.config.Logger.Err().Err(err).Log("failed to schedule next job")
			}
		})
		if err != nil {
			q.config.Logger.Err().
				Err(err).
				Str("job", job.Label).
				Log("failed to release job")
		}
	}}
}

func (q *Queue) abort(job Job, r any) {
	err := &internalError{label: job.Label, value: r}
	q.Close()
	q.running = false
	q.config.Logger.Err().
		Err(err).
		Str("job", job.Label).
		Log("job panicked, aborting session")
	if q.config.OnFatal != nil {
		q.config.OnFatal(job, err)
	}
}

// timeoutGuard forces a failing completion when an async job overruns.
type timeoutGuard struct {
	stop func()
}

func (g *timeoutGuard) start(q *Queue, job Job, c *Completion) {
	d := q.config.Timeout()
	stop, err := q.sched.AfterFunc(d, func() {
		c.fire(func() {
			q.config.Logger.Warning().
				Str("job", job.Label).
				Dur("timeout", d).
				Log("job timed out")
			if q.config.OnTimeout != nil {
				q.config.OnTimeout(job)
			}
		})
	})
	if err != nil {
		q.config.Logger.Err().
			Err(err).
			Str("job", job.Label).
			Log("failed to start timeout guard")
		return
	}
	g.stop = stop
}

func (g *timeoutGuard) cancel() {
	if g == nil || g.stop == nil {
		return
	}
	g.stop()
	g.stop = nil
}
