package foroutines

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus is the Job lifecycle state machine. Status only ever
// advances towards a terminal value.
type JobStatus int32

const (
	StatusNew JobStatus = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s JobStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of completed/failed/cancelled.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// cancelHook is registered by whatever wait-list currently parks a
// Job's fiber (timer heap, channel queue, select, AsyncIO watcher). It
// must remove the job from that wait-list and arrange for the
// scheduler to re-enter the fiber with the given signal error, without
// running concurrently with the scheduler's own resume path.
type cancelHook func(signal error)

// Job is a managed Fiber with lifecycle state and waiters.
type Job struct {
	id         uuid.UUID
	dispatcher Dispatcher
	fiber      *Fiber
	scheduler  *Scheduler
	block      Block

	mu                 sync.Mutex
	status             JobStatus
	startTime          time.Time
	endTime            time.Time
	joinWaiters        []func()
	completionInvokers []func(*Job)
	deadline           *time.Time
	deadlineTimer      *timerEntry
	parent             *Job
	children           map[uuid.UUID]*Job
	result             any
	err                error
	parkedCancel       cancelHook
	pendingSignal      error // ErrCancelled or ErrTimeout, set when status -> cancelled
}

// Block is the unit of work a Job runs: a function given a *Ctx (the
// current fiber's suspension capability) that returns a value or error.
// It is the single, well-defined "block" interface used everywhere a
// unit of schedulable work is accepted.
type Block func(c *Ctx) (any, error)

func newJob(sched *Scheduler, dispatcher Dispatcher, block Block, parent *Job) *Job {
	j := &Job{
		id:         uuid.New(),
		dispatcher: dispatcher,
		scheduler:  sched,
		block:      block,
		status:     StatusNew,
		children:   make(map[uuid.UUID]*Job),
		parent:     parent,
	}
	if dispatcher == DEFAULT {
		j.fiber = NewFiber(func(suspend SuspendFunc) (any, error) {
			ctx := &Ctx{job: j, scheduler: sched, suspend: suspend}
			return block(ctx)
		})
	}
	if parent != nil {
		parent.mu.Lock()
		parent.children[j.id] = j
		parent.mu.Unlock()
	}
	return j
}

// ID returns the job's identity.
func (j *Job) ID() uuid.UUID { return j.id }

// Dispatcher returns the dispatcher this job was launched on.
func (j *Job) Dispatcher() Dispatcher { return j.dispatcher }

// GetStatus returns the current status.
func (j *Job) GetStatus() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// IsFinal reports whether the job reached a terminal state.
func (j *Job) IsFinal() bool { return j.GetStatus().IsTerminal() }

// IsCompleted reports status == completed.
func (j *Job) IsCompleted() bool { return j.GetStatus() == StatusCompleted }

// IsCancelled reports status == cancelled.
func (j *Job) IsCancelled() bool { return j.GetStatus() == StatusCancelled }

// StartTime returns when the job's fiber started running.
func (j *Job) StartTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startTime
}

// EndTime returns when the job reached a terminal state. Zero until then.
func (j *Job) EndTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.endTime
}

// setParkedCancel records the hook used to cancel the job while its
// fiber is parked in some component's wait-list. Cleared on resume.
func (j *Job) setParkedCancel(hook cancelHook) {
	j.mu.Lock()
	j.parkedCancel = hook
	j.mu.Unlock()
}

func (j *Job) clearParkedCancel() {
	j.mu.Lock()
	j.parkedCancel = nil
	j.mu.Unlock()
}

// pendingCancelSignal returns the error a stale/racing resume should
// be overridden with, if this job was cancelled or timed out while a
// resume for it was already in flight.
func (j *Job) pendingCancelSignal() (error, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusCancelled && j.pendingSignal != nil {
		return j.pendingSignal, true
	}
	return nil, false
}

// Cancel marks the job cancelled and, if the fiber is parked in a
// cancellable wait, resumes it with ErrCancelled.
func (j *Job) Cancel() {
	j.transitionToCancelled(ErrCancelled)
}

// CancelAfter records a deadline after which the job is cancelled with
// ErrTimeout if still running. It is used by WithTimeout.
func (j *Job) CancelAfter(d time.Duration) {
	deadline := time.Now().Add(d)
	j.mu.Lock()
	j.deadline = &deadline
	j.mu.Unlock()
	j.deadlineTimer = j.scheduler.timers.schedule(deadline, func() {
		j.transitionToCancelled(ErrTimeout)
	})
}

// transitionToCancelled implements both Cancel and timeout expiry: it
// sets status to cancelled exactly once, records which signal
// (ErrCancelled or ErrTimeout) the caller/waiters should observe, and
// either prevents the fiber from ever starting or re-enters it via its
// registered parked-cancel hook. Structured concurrency then
// propagates the same signal to children.
func (j *Job) transitionToCancelled(signal error) {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return
	}
	wasNew := j.status == StatusNew && (j.fiber == nil || !j.fiber.IsStarted())
	j.status = StatusCancelled
	j.pendingSignal = signal
	hook := j.parkedCancel
	j.parkedCancel = nil
	children := make([]*Job, 0, len(j.children))
	for _, c := range j.children {
		children = append(children, c)
	}
	j.mu.Unlock()

	switch {
	case wasNew:
		j.terminate(nil, signal, StatusCancelled)
	case hook != nil:
		hook(signal)
	}
	// If neither branch applied, the job is mid-resume (running) or
	// between enqueue and park; settleAfterStep/runEntry consult
	// pendingCancelSignal to override the eventual outcome.

	for _, c := range children {
		c.Cancel()
	}
}

// InvokeOnCompletion schedules cb(job) once the job is terminal. If
// already terminal, cb runs immediately.
func (j *Job) InvokeOnCompletion(cb func(*Job)) {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		cb(j)
		return
	}
	j.completionInvokers = append(j.completionInvokers, func(job *Job) { cb(job) })
	j.mu.Unlock()
}

// Join parks the calling fiber until the job is terminal, then
// re-raises the job's failure if any. Pass a nil Ctx to join from
// outside any fiber (e.g. the top-level driver thread).
func (j *Job) Join(c *Ctx) error {
	j.mu.Lock()
	if j.status.IsTerminal() {
		err := j.err
		j.mu.Unlock()
		return err
	}
	done := make(chan struct{}, 1)
	var wakeOnce sync.Once
	j.joinWaiters = append(j.joinWaiters, func() {
		done <- struct{}{}
		if c != nil {
			wakeOnce.Do(func() { c.scheduler.resumeWithValue(c.job, nil) })
		}
	})
	j.mu.Unlock()

	if c == nil {
		<-done
		j.mu.Lock()
		err := j.err
		j.mu.Unlock()
		return err
	}

	caller := c.job
	caller.setParkedCancel(func(signal error) {
		wakeOnce.Do(func() { j.scheduler.resumeWithError(caller, signal) })
	})
	_, suspendErr := c.Suspend(joinWaitToken{job: j})
	caller.clearParkedCancel()
	if suspendErr != nil {
		return suspendErr
	}
	j.mu.Lock()
	err := j.err
	j.mu.Unlock()
	return err
}

type joinWaitToken struct{ job *Job }

// terminate transitions the job to a terminal status exactly once,
// fires invokers in registration order, then releases join waiters —
// completion invokers always run before any Join call returns.
func (j *Job) terminate(result any, err error, status JobStatus) {
	j.mu.Lock()
	// A job already marked cancelled by transitionToCancelled is still
	// finalized here (once) with StatusCancelled.
	if !j.endTime.IsZero() || (j.status.IsTerminal() && j.status != status) {
		j.mu.Unlock()
		return
	}
	j.status = status
	j.result = result
	j.err = err
	j.endTime = time.Now()
	invokers := j.completionInvokers
	j.completionInvokers = nil
	waiters := j.joinWaiters
	j.joinWaiters = nil
	if j.deadlineTimer != nil {
		j.scheduler.timers.cancel(j.deadlineTimer)
	}
	j.mu.Unlock()

	for _, inv := range invokers {
		inv(j)
	}
	for _, w := range waiters {
		w()
	}

	if j.scheduler != nil && j.scheduler.logger != nil {
		j.scheduler.logger.Debug("job terminated",
			zap.String("job_id", j.id.String()),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
	if j.scheduler != nil && j.scheduler.metrics != nil {
		j.scheduler.metrics.Counter("foroutines_jobs_terminated_total").Add(1)
	}
}

// Result returns the job's raw result and error. Meaningful once
// IsFinal is true.
func (j *Job) Result() (any, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// wrapErr tags err with this job's correlation metadata, using the
// same task-error tagging style as error_tagging.go, generalized to jobs.
func (j *Job) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return newJobTaggedError(err, j.id, j.dispatcher)
}

// String implements fmt.Stringer for debugging/log fields.
func (j *Job) String() string {
	return fmt.Sprintf("Job{id=%s,dispatcher=%s,status=%s}", j.id, j.dispatcher, j.GetStatus())
}
