package foroutines

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// SharedFlow is a hot, multicast stream. Unlike Flow, emission happens
// independently of whether anyone is collecting; new collectors first
// replay the most recent values, then observe live emissions in order.
type SharedFlow[T any] struct {
	mu         sync.Mutex
	replay     int
	extra      int
	strategy   BackpressureStrategy
	buf        []T
	collectors map[uuid.UUID]*sharedFlowCollector[T]
}

type sharedFlowCollector[T any] struct {
	ch *Channel[T]
}

// NewSharedFlow constructs a SharedFlow. Total retained capacity is
// replay+extraBufferCapacity.
func NewSharedFlow[T any](replay, extraBufferCapacity int, strategy BackpressureStrategy) *SharedFlow[T] {
	return &SharedFlow[T]{
		replay:     replay,
		extra:      extraBufferCapacity,
		strategy:   strategy,
		collectors: make(map[uuid.UUID]*sharedFlowCollector[T]),
	}
}

func (sf *SharedFlow[T]) pushToRing(v T) {
	sf.buf = append(sf.buf, v)
	capTotal := sf.replay + sf.extra
	if capTotal > 0 && len(sf.buf) > capTotal {
		sf.buf = sf.buf[len(sf.buf)-capTotal:]
	}
}

func (sf *SharedFlow[T]) snapshotCollectors() []*sharedFlowCollector[T] {
	out := make([]*sharedFlowCollector[T], 0, len(sf.collectors))
	for _, col := range sf.collectors {
		out = append(out, col)
	}
	return out
}

// Emit suspends per this SharedFlow's overflow strategy if a collector
// cannot keep up (SUSPEND parks until it frees a slot); DROP_OLDEST,
// DROP_LATEST and ERROR never suspend. SUSPEND parks the emitter on
// each collector in turn until that collector accepts the value; the
// order in which collectors are visited is unspecified (map order).
func (sf *SharedFlow[T]) Emit(c *Ctx, v T) error {
	sf.mu.Lock()
	sf.pushToRing(v)
	collectors := sf.snapshotCollectors()
	sf.mu.Unlock()

	for _, col := range collectors {
		if err := sendWithBackpressure(c, col.ch, v, sf.strategy); err != nil {
			return err
		}
	}
	return nil
}

// TryEmit never suspends; it returns false iff the configured overflow
// strategy would have suspended or raised for at least one collector.
func (sf *SharedFlow[T]) TryEmit(v T) bool {
	sf.mu.Lock()
	sf.pushToRing(v)
	collectors := sf.snapshotCollectors()
	sf.mu.Unlock()

	ok := true
	for _, col := range collectors {
		switch sf.strategy {
		case DROP_OLDEST:
			if !col.ch.TrySend(v) {
				col.ch.dropOldest()
				col.ch.TrySend(v)
			}
		case DROP_LATEST:
			col.ch.TrySend(v)
		default: // SUSPEND, ERROR: both fail TryEmit if the slot isn't free
			if !col.ch.TrySend(v) {
				ok = false
			}
		}
	}
	return ok
}

// Collect subscribes, replays at most the `replay` most-recent values
// held at subscription time, then observes live emissions until
// consumer returns an error or c's fiber is cancelled.
func (sf *SharedFlow[T]) Collect(c *Ctx, consumer func(T) error) error {
	id := uuid.New()
	capacity := sf.extra
	if capacity <= 0 {
		capacity = 1
	}
	col := &sharedFlowCollector[T]{ch: NewChannel[T](capacity)}

	sf.mu.Lock()
	replayWindow := append([]T(nil), sf.buf...)
	if sf.replay >= 0 && len(replayWindow) > sf.replay {
		replayWindow = replayWindow[len(replayWindow)-sf.replay:]
	}
	sf.collectors[id] = col
	sf.mu.Unlock()

	defer func() {
		sf.mu.Lock()
		delete(sf.collectors, id)
		sf.mu.Unlock()
	}()

	for _, v := range replayWindow {
		if err := consumer(v); err != nil {
			return err
		}
	}

	for {
		v, err := col.ch.Receive(c)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) {
				return nil
			}
			return err
		}
		if err := consumer(v); err != nil {
			return err
		}
	}
}
