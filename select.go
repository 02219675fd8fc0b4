package foroutines

import "sync"

// selectClause is one registered alternative in a SelectBuilder. Only
// one of tryReceive/trySend is set, matching which flavor OnReceive or
// OnSend registered.
type selectClause struct {
	tryReceive   func() (any, bool)
	trySend      func() bool
	registerWait func(onReady func(v any, err error)) func()
	run          func(v any)
}

// SelectBuilder collects clauses for a single-choice multiplexer over
// channel operations. Build one per call to Select; it is not reusable
// across executions.
type SelectBuilder struct {
	clauses    []selectClause
	defaultFn  func()
	hasDefault bool
}

// Select starts building a select expression.
func Select() *SelectBuilder { return &SelectBuilder{} }

// OnReceive registers a receive clause: if ch has a value available
// without suspending, handler runs with it as the winning clause.
func OnReceive[T any](b *SelectBuilder, ch *Channel[T], handler func(v T)) *SelectBuilder {
	b.clauses = append(b.clauses, selectClause{
		tryReceive: func() (any, bool) { return ch.TryReceive() },
		registerWait: func(onReady func(v any, err error)) func() {
			return ch.parkReceiver(onReady)
		},
		run: func(v any) { handler(v.(T)) },
	})
	return b
}

// OnSend registers a send clause: if v can be handed off to ch without
// suspending, handler runs after the value is accepted.
func OnSend[T any](b *SelectBuilder, ch *Channel[T], v T, handler func()) *SelectBuilder {
	b.clauses = append(b.clauses, selectClause{
		trySend: func() bool { return ch.TrySend(v) },
		registerWait: func(onReady func(v any, err error)) func() {
			return ch.parkSender(v, func(err error) { onReady(nil, err) })
		},
		run: func(any) { handler() },
	})
	return b
}

// Default registers the clause that runs if no other clause can
// proceed without suspending.
func (b *SelectBuilder) Default(handler func()) *SelectBuilder {
	b.defaultFn = handler
	b.hasDefault = true
	return b
}

// Execute runs Select's algorithm: scan clauses in registration order
// for one whose non-blocking form succeeds; else run default if
// present; else park on every clause until one becomes
// ready. At most one clause handler ever runs per Execute.
func (b *SelectBuilder) Execute(c *Ctx) error {
	if len(b.clauses) == 0 && !b.hasDefault {
		return ErrSelectNoClause
	}

	for _, cl := range b.clauses {
		if cl.tryReceive != nil {
			if v, ok := cl.tryReceive(); ok {
				cl.run(v)
				return nil
			}
		}
		if cl.trySend != nil {
			if cl.trySend() {
				cl.run(nil)
				return nil
			}
		}
	}

	if b.hasDefault {
		b.defaultFn()
		return nil
	}

	return b.parkOnAll(c)
}

// selectOutcome carries which clause fired and its value across the
// single shared suspension point parkOnAll uses.
type selectOutcome struct {
	idx int
	val any
}

// parkOnAll registers every clause's blocking form against one shared
// winner callback; the first to fire cancels every other registration
// before waking the fiber. All other registrations for this select are
// deregistered atomically so at most one clause ever fires.
func (b *SelectBuilder) parkOnAll(c *Ctx) error {
	job := c.job
	sched := c.scheduler

	var mu sync.Mutex
	fired := false
	cancels := make([]func(), len(b.clauses))

	winner := func(idx int, v any, err error) {
		mu.Lock()
		if fired {
			mu.Unlock()
			return
		}
		fired = true
		mu.Unlock()

		for i, cancel := range cancels {
			if i != idx && cancel != nil {
				cancel()
			}
		}
		if err != nil {
			sched.resumeWithError(job, err)
			return
		}
		sched.resumeWithValue(job, selectOutcome{idx: idx, val: v})
	}

	for i, cl := range b.clauses {
		// A clause can fire while registering (e.g. a closed channel);
		// later clauses are then never registered.
		mu.Lock()
		done := fired
		mu.Unlock()
		if done {
			break
		}
		i, cl := i, cl
		cancels[i] = cl.registerWait(func(v any, err error) { winner(i, v, err) })
	}

	job.setParkedCancel(func(signal error) {
		mu.Lock()
		already := fired
		fired = true
		mu.Unlock()
		if already {
			return
		}
		for _, cancel := range cancels {
			if cancel != nil {
				cancel()
			}
		}
		sched.resumeWithError(job, signal)
	})
	v, err := c.Suspend(nil)
	job.clearParkedCancel()
	if err != nil {
		return err
	}
	outcome, ok := v.(selectOutcome)
	if !ok {
		return ErrInvalidState
	}
	b.clauses[outcome.idx].run(outcome.val)
	return nil
}
