package foroutines

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is a scheduled {deadline, fiber} pair, generalized to an
// arbitrary fire callback so both Delay and Job.CancelAfter can share
// the same heap.
type timerEntry struct {
	deadline  time.Time
	seq       uint64
	fire      func()
	index     int
	cancelled bool
}

// timerHeapImpl implements container/heap.Interface, ordering by
// deadline then registration sequence: ties are broken in registration
// order.
type timerHeapImpl []*timerEntry

func (h timerHeapImpl) Len() int { return len(h) }
func (h timerHeapImpl) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeapImpl) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeapImpl) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeapImpl) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerWheel is the scheduler's timer store: a sorted pending-timer set
// keyed by deadline, implemented as a min-heap.
type timerWheel struct {
	mu  sync.Mutex
	h   timerHeapImpl
	seq uint64
}

func newTimerWheel() *timerWheel {
	return &timerWheel{}
}

func (t *timerWheel) schedule(deadline time.Time, fire func()) *timerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	e := &timerEntry{deadline: deadline, seq: t.seq, fire: fire}
	heap.Push(&t.h, e)
	return e
}

func (t *timerWheel) cancel(e *timerEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.cancelled = true
}

// popDue pops and returns the earliest timer if its deadline has
// passed, skipping (and discarding) any cancelled entries in between.
func (t *timerWheel) popDue(now time.Time) (*timerEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.h.Len() > 0 {
		top := t.h[0]
		if top.cancelled {
			heap.Pop(&t.h)
			continue
		}
		if top.deadline.After(now) {
			return nil, false
		}
		heap.Pop(&t.h)
		return top, true
	}
	return nil, false
}

// nextDeadline returns the next live deadline, if any. The scheduler
// uses it to decide whether timers still count as pending work.
func (t *timerWheel) nextDeadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.h.Len() > 0 {
		top := t.h[0]
		if top.cancelled {
			heap.Pop(&t.h)
			continue
		}
		return top.deadline, true
	}
	return time.Time{}, false
}

// Delay suspends the current fiber for d. It works only inside a fiber:
// with a nil Ctx it panics and does not drive the scheduler.
func Delay(c *Ctx, d time.Duration) error {
	if c == nil {
		panic("foroutines: Delay called with a nil Ctx; Delay works only inside a fiber")
	}
	job := c.job
	sched := c.scheduler

	entry := sched.timers.schedule(time.Now().Add(d), func() {
		sched.resumeWithValue(job, nil)
	})
	job.setParkedCancel(func(signal error) {
		sched.timers.cancel(entry)
		sched.resumeWithError(job, signal)
	})
	_, err := c.Suspend(nil)
	job.clearParkedCancel()
	return err
}

// Pause yields the current fiber back to the scheduler without a
// deadline, letting other ready jobs run before it resumes.
func Pause(c *Ctx) error {
	job := c.job
	sched := c.scheduler
	sched.resumeWithValue(job, nil)
	job.setParkedCancel(func(signal error) {
		sched.resumeWithError(job, signal)
	})
	_, err := c.Suspend(nil)
	job.clearParkedCancel()
	return err
}

// ThreadWait blocks the current fiber until fn returns, running fn on
// a separate goroutine so the scheduler thread is not blocked by
// arbitrary blocking calls. While fn runs, the scheduler counts the
// call as pending work, so RunUntilIdle keeps waiting for it.
func ThreadWait[R any](c *Ctx, fn func() (R, error)) (R, error) {
	var zero R
	job := c.job
	sched := c.scheduler

	// A timer that never comes due keeps hasPendingWork true until the
	// fiber resumes.
	hold := sched.timers.schedule(time.Now().AddDate(100, 0, 0), func() {})

	type result struct {
		v   R
		err error
	}
	go func() {
		v, err := fn()
		sched.resumeWithValue(job, result{v, err})
	}()

	job.setParkedCancel(func(signal error) {
		sched.resumeWithError(job, signal)
	})
	v, err := c.Suspend(nil)
	sched.timers.cancel(hold)
	job.clearParkedCancel()
	if err != nil {
		return zero, err
	}
	r, ok := v.(result)
	if !ok {
		return zero, nil
	}
	return r.v, r.err
}
