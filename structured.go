package foroutines

import (
	"fmt"
	"time"
)

// LaunchOn creates and enqueues a root Job on sched with no structured
// parent, for root work started outside any fiber (RunBlocking uses
// its typed counterpart, AsyncOn); ordinary nested work should use Launch(c, ...), which attaches the
// new Job as a child of c.Job() for structured concurrency.
func LaunchOn(sched *Scheduler, dispatcher Dispatcher, block Block) *Job {
	return launch(sched, dispatcher, block, nil)
}

// Launch schedules block on dispatcher as a child of the Job running
// c, returning immediately with its Job handle.
func Launch(c *Ctx, dispatcher Dispatcher, block Block) *Job {
	return launch(c.scheduler, dispatcher, block, c.job)
}

func launch(sched *Scheduler, dispatcher Dispatcher, block Block, parent *Job) *Job {
	j := newJob(sched, dispatcher, block, parent)
	switch dispatcher {
	case DEFAULT:
		sched.enqueueStart(j)
	case IO:
		sched.pool.Submit(func() (any, error) { return block(nil) }, j)
	case MAIN:
		sched.main.post(func() {
			v, err := block(nil)
			j.terminate(v, j.wrapErr(err), terminalStatus(err))
		})
	}
	return j
}

func terminalStatus(err error) JobStatus {
	if err != nil {
		return StatusFailed
	}
	return StatusCompleted
}

// Deferred is a Job that preserves its block's typed return value,
// the way Kotlin's Deferred<T> extends Job.
type Deferred[R any] struct {
	job *Job
}

// Job returns the underlying Job handle.
func (d *Deferred[R]) Job() *Job { return d.job }

// Await suspends until the Deferred is terminal, returning its value
// or re-raising its failure.
func (d *Deferred[R]) Await(c *Ctx) (R, error) {
	var zero R
	if err := d.job.Join(c); err != nil {
		return zero, err
	}
	v, _ := d.job.Result()
	if v == nil {
		return zero, nil
	}
	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("%w: Deferred result type mismatch", ErrInvalidState)
	}
	return r, nil
}

// deliver is called by the scheduler when an IO-dispatched Deferred's
// worker result is reaped.
func (d *Deferred[R]) deliver(v any, err error) {
	if err != nil {
		d.job.terminate(nil, d.job.wrapErr(err), StatusFailed)
		return
	}
	d.job.terminate(v, nil, StatusCompleted)
}

// AsyncOn is Async's root-level counterpart, used the way LaunchOn is.
func AsyncOn[R any](sched *Scheduler, dispatcher Dispatcher, block func(c *Ctx) (R, error)) *Deferred[R] {
	return asyncLaunch(sched, dispatcher, block, nil)
}

// Async schedules block on dispatcher as a child of the Job running c
// and returns a Deferred preserving its typed result.
func Async[R any](c *Ctx, dispatcher Dispatcher, block func(c *Ctx) (R, error)) *Deferred[R] {
	return asyncLaunch(c.scheduler, dispatcher, block, c.job)
}

func asyncLaunch[R any](sched *Scheduler, dispatcher Dispatcher, block func(c *Ctx) (R, error), parent *Job) *Deferred[R] {
	wrapped := func(c *Ctx) (any, error) { return block(c) }
	j := newJob(sched, dispatcher, wrapped, parent)
	d := &Deferred[R]{job: j}
	switch dispatcher {
	case DEFAULT:
		sched.enqueueStart(j)
	case IO:
		sched.pool.Submit(func() (any, error) { return block(nil) }, d)
	case MAIN:
		sched.main.post(func() {
			v, err := block(nil)
			d.deliver(v, err)
		})
	}
	return d
}

// RunBlocking runs the scheduler until block terminates, then drains
// any remaining queued launches and pending I/O before returning
// It is the synchronous entry point used by Run.
func RunBlocking[R any](sched *Scheduler, block func(c *Ctx) (R, error)) (R, error) {
	d := AsyncOn(sched, DEFAULT, block)
	for !d.job.IsFinal() {
		if !sched.Tick() {
			time.Sleep(sched.idleBackoff)
		}
	}
	sched.RunUntilIdle()
	return d.Await(nil)
}

// Repeat runs block n times sequentially within the current fiber,
// stopping early (and returning its error) if block fails.
func Repeat(c *Ctx, n int, block func(c *Ctx, i int) error) error {
	for i := 0; i < n; i++ {
		if err := block(c, i); err != nil {
			return err
		}
	}
	return nil
}

// noneSentinel is the type of None.
type noneSentinel struct{}

// None is a sentinel value for "no result". WithTimeoutOrNull does not
// return it; it reports expiry through its ok result instead.
var None = noneSentinel{}

// WithTimeout launches block with a deadline; on expiry it cancels the
// child and returns ErrTimeout.
func WithTimeout[R any](c *Ctx, d time.Duration, block func(c *Ctx) (R, error)) (R, error) {
	var zero R
	dfd := Async(c, DEFAULT, block)
	dfd.job.CancelAfter(d)
	v, err := dfd.Await(c)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// WithTimeoutOrNull is WithTimeout but returns (zero value, false, nil)
// instead of ErrTimeout on expiry; callers distinguish the
// timeout case via the returned ok bool.
func WithTimeoutOrNull[R any](c *Ctx, d time.Duration, block func(c *Ctx) (R, error)) (value R, ok bool, err error) {
	dfd := Async(c, DEFAULT, block)
	dfd.job.CancelAfter(d)
	v, aerr := dfd.Await(c)
	if aerr != nil {
		var zero R
		if dfd.job.IsCancelled() {
			return zero, false, nil
		}
		return zero, false, aerr
	}
	return v, true, nil
}
