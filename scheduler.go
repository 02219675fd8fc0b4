package foroutines

import (
	"fmt"
	"sync"
	"time"

	"github.com/vosaka-php/foroutines/asyncio"
	"github.com/vosaka-php/foroutines/metrics"
	"github.com/vosaka-php/foroutines/workerpool"
	"go.uber.org/zap"
)

// readyEntry is one FIFO entry in the Scheduler's ready queue. isStart
// distinguishes a job's first resume (Start) from a subsequent
// re-entry (Resume/Throw).
type readyEntry struct {
	job     *Job
	value   any
	err     error
	isStart bool
}

// Scheduler drives fibers, timers, AsyncIO and the worker pool in one
// cooperative loop. One Scheduler is process-wide per
// runtime instance; Run constructs, owns and tears one down.
type Scheduler struct {
	mu    sync.Mutex
	ready []readyEntry

	timers *timerWheel
	io     asyncio.Poller
	pool   *workerpool.Pool
	main   *mainQueue

	idleBackoff time.Duration
	logger      *zap.Logger
	metrics     metrics.Provider

	closed bool
}

// NewScheduler constructs a Scheduler. Most callers should use Run
// instead, which also handles teardown.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	cfg := defaultSchedulerConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if err := validateSchedulerConfig(&cfg); err != nil {
		panic(fmt.Errorf("foroutines: invalid scheduler config: %w", err))
	}

	s := &Scheduler{
		timers:      newTimerWheel(),
		main:        newMainQueue(int(cfg.MainQueueBuffer)),
		idleBackoff: cfg.IdleBackoff,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if cfg.IO != nil {
		s.io = cfg.IO
	} else {
		s.io = asyncio.NewPoller()
	}
	s.pool = workerpool.New(cfg.WorkerPoolOptions...)
	return s
}

// enqueueStart adds a freshly created job to the ready queue to be
// started on a future tick.
func (s *Scheduler) enqueueStart(j *Job) {
	s.mu.Lock()
	s.ready = append(s.ready, readyEntry{job: j, isStart: true})
	s.mu.Unlock()
}

// resumeWithValue unparks j with a successful wake value.
func (s *Scheduler) resumeWithValue(j *Job, v any) {
	s.mu.Lock()
	s.ready = append(s.ready, readyEntry{job: j, value: v})
	s.mu.Unlock()
}

// resumeWithError unparks j by throwing err at its suspension point.
func (s *Scheduler) resumeWithError(j *Job, err error) {
	s.mu.Lock()
	s.ready = append(s.ready, readyEntry{job: j, err: err})
	s.mu.Unlock()
}

func (s *Scheduler) popReady() (readyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return readyEntry{}, false
	}
	e := s.ready[0]
	s.ready = s.ready[1:]
	return e, true
}

func (s *Scheduler) hasPendingWork() bool {
	s.mu.Lock()
	pending := len(s.ready) > 0
	s.mu.Unlock()
	if pending {
		return true
	}
	if _, ok := s.timers.nextDeadline(); ok {
		return true
	}
	if s.pool.InFlight() > 0 {
		return true
	}
	return s.io.Pending() > 0
}

// Tick performs exactly one unit of work: fire one due
// timer, dispatch one ready I/O watcher, reap one completed worker, or
// resume one runnable job, in that priority order. It returns whether
// any work was done. Tick must never be called from inside a fiber.
func (s *Scheduler) Tick() bool {
	if e, ok := s.timers.popDue(time.Now()); ok {
		e.fire()
		return true
	}

	if ev, ok := s.io.PollOnce(0); ok {
		s.deliverIOEvent(ev)
		return true
	}

	if res, ok := s.pool.ReapOne(); ok {
		s.deliverWorkerResult(res)
		return true
	}

	if entry, ok := s.popReady(); ok {
		s.runEntry(entry)
		return true
	}

	return s.main.drainOne()
}

func (s *Scheduler) deliverIOEvent(ev asyncio.Event) {
	j, ok := ev.Waiter.(*Job)
	if !ok {
		return
	}
	switch ev.Err {
	case nil:
		s.resumeWithValue(j, ev.Value)
	case asyncio.ErrTimeout:
		s.resumeWithError(j, ErrTimeout)
	case asyncio.ErrConflict:
		s.resumeWithError(j, ErrIoFailure)
	default:
		s.resumeWithError(j, ev.Err)
	}
}

func (s *Scheduler) deliverWorkerResult(res workerpool.Result) {
	if res.Err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrWorkerFailure, res.Err)
	}
	switch owner := res.Token.(type) {
	case interface{ deliver(any, error) }:
		owner.deliver(res.Value, res.Err)
	case *Job:
		if res.Err != nil {
			owner.terminate(nil, owner.wrapErr(res.Err), StatusFailed)
		} else {
			owner.terminate(res.Value, nil, StatusCompleted)
		}
	case func(any, error):
		owner(res.Value, res.Err)
	}
}

// runEntry resumes or starts a single job, applying cancellation
// override: if the job was cancelled while parked, it is re-entered
// with its cancellation signal (ErrCancelled, or ErrTimeout for an
// expired deadline) regardless of the entry's original wake value:
// cancelling resumes the fiber at its current suspension point with a
// cancellation signal.
func (s *Scheduler) runEntry(entry readyEntry) {
	j := entry.job

	if entry.isStart {
		j.mu.Lock()
		if j.status == StatusCancelled {
			j.mu.Unlock()
			return // cancel-before-start: never enter the fiber.
		}
		j.status = StatusRunning
		j.startTime = time.Now()
		j.mu.Unlock()

		v, err := j.fiber.Start()
		s.settleAfterStep(j, v, err)
		return
	}

	if j.fiber.Status() != FiberSuspended {
		return // stale entry: already resumed/terminated elsewhere.
	}

	wakeErr := entry.err
	if signal, cancelled := j.pendingCancelSignal(); cancelled {
		wakeErr = signal
	}

	var v any
	var err error
	if wakeErr != nil {
		v, err = j.fiber.Throw(wakeErr)
	} else {
		v, err = j.fiber.Resume(entry.value)
	}
	s.settleAfterStep(j, v, err)
}

// settleAfterStep runs after a Start/Resume/Throw call returns. If the
// fiber terminated, the job becomes cancelled if a cancellation is
// pending, otherwise failed or completed. Otherwise the fiber is now parked in
// whatever wait-list its suspension point registered it into.
func (s *Scheduler) settleAfterStep(j *Job, v any, err error) {
	if !j.fiber.IsTerminated() {
		return
	}
	if signal, cancelled := j.pendingCancelSignal(); cancelled {
		j.terminate(nil, signal, StatusCancelled)
		return
	}
	if err != nil {
		j.terminate(nil, j.wrapErr(err), StatusFailed)
		return
	}
	j.terminate(v, nil, StatusCompleted)
}

// RunUntilIdle drives Tick until a full round finds nothing to do,
// sleeping idleBackoff between idle rounds when pending work remains.
func (s *Scheduler) RunUntilIdle() {
	for {
		didWork := s.Tick()
		if didWork {
			continue
		}
		if !s.hasPendingWork() {
			return
		}
		time.Sleep(s.idleBackoff)
	}
}

// Shutdown tears down the worker pool and AsyncIO watchers.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.io.CancelAll()
	s.pool.Shutdown()
}
