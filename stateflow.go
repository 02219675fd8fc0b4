package foroutines

import "sync"

// StateFlow is a hot stream that always has a current value. It is
// built on SharedFlow with replay=1, extraBufferCapacity=0, so every
// new collector immediately observes the current value before any
// further updates.
type StateFlow[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	equal   func(a, b T) bool
	shared  *SharedFlow[T]
}

// NewStateFlow constructs a StateFlow for a comparable type, using ==
// as the distinctUntilChanged predicate.
func NewStateFlow[T comparable](initial T) *StateFlow[T] {
	return NewStateFlowWithEqual(initial, func(a, b T) bool { return a == b })
}

// NewStateFlowWithEqual constructs a StateFlow with a custom equality
// predicate, for element types that aren't comparable with ==.
func NewStateFlowWithEqual[T any](initial T, equal func(a, b T) bool) *StateFlow[T] {
	sf := &StateFlow[T]{
		value:  initial,
		equal:  equal,
		shared: NewSharedFlow[T](1, 0, DROP_OLDEST),
	}
	sf.shared.buf = []T{initial}
	return sf
}

// Value returns the current value. Always defined.
func (sf *StateFlow[T]) Value() T {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.value
}

// Version returns how many times the value has actually changed.
// Setting an equal value never bumps it.
func (sf *StateFlow[T]) Version() uint64 {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.version
}

// Set updates the value. Setting an equal value (per the configured
// equality predicate) does not notify collectors.
func (sf *StateFlow[T]) Set(c *Ctx, v T) error {
	sf.mu.Lock()
	if sf.equal(sf.value, v) {
		sf.mu.Unlock()
		return nil
	}
	sf.value = v
	sf.version++
	sf.mu.Unlock()
	return sf.shared.Emit(c, v)
}

// Update atomically replaces the value with fn(current). fn observes a
// consistent snapshot even if other goroutines call Set/Update/
// CompareAndSet concurrently.
func (sf *StateFlow[T]) Update(c *Ctx, fn func(T) T) error {
	sf.mu.Lock()
	next := fn(sf.value)
	if sf.equal(sf.value, next) {
		sf.mu.Unlock()
		return nil
	}
	sf.value = next
	sf.version++
	sf.mu.Unlock()
	return sf.shared.Emit(c, next)
}

// CompareAndSet sets the value to next only if the current value equals
// expected (per the configured equality predicate), returning whether
// the swap happened.
func (sf *StateFlow[T]) CompareAndSet(c *Ctx, expected, next T) (bool, error) {
	sf.mu.Lock()
	if !sf.equal(sf.value, expected) {
		sf.mu.Unlock()
		return false, nil
	}
	if sf.equal(sf.value, next) {
		sf.mu.Unlock()
		return true, nil
	}
	sf.value = next
	sf.version++
	sf.mu.Unlock()
	if err := sf.shared.Emit(c, next); err != nil {
		return false, err
	}
	return true, nil
}

// Collect observes the current value immediately, then every
// subsequent distinct update, until consumer returns an error.
func (sf *StateFlow[T]) Collect(c *Ctx, consumer func(T) error) error {
	return sf.shared.Collect(c, consumer)
}
