package foroutines

import "errors"

// Namespace prefixes every sentinel error so callers can recognize
// runtime-originated failures regardless of which component raised them.
const Namespace = "foroutines"

// Sentinel error kinds. Each is a distinct sentinel so callers can use
// errors.Is, and component-level failures wrap these via fmt.Errorf("%w", ...).
var (
	// ErrCancelled is surfaced to a fiber resumed at a cancellable
	// suspension point after its Job was cancelled.
	ErrCancelled = errors.New(Namespace + ": cancelled")

	// ErrTimeout is raised by WithTimeout on expiry, by Mutex.Acquire
	// when its timeout elapses, and by AsyncIO waits whose deadline
	// elapsed before the handle became ready.
	ErrTimeout = errors.New(Namespace + ": timeout")

	// ErrChannelClosed is returned by send/receive once a Channel has
	// been closed and, for receive, its buffer has drained.
	ErrChannelClosed = errors.New(Namespace + ": channel closed")

	// ErrBufferOverflow is raised by SharedFlow/StateFlow emit under
	// the ERROR backpressure strategy.
	ErrBufferOverflow = errors.New(Namespace + ": buffer overflow")

	// ErrInvalidState covers fiber misuse (suspend outside a fiber,
	// resuming a terminated fiber) and illegal API sequencing.
	ErrInvalidState = errors.New(Namespace + ": invalid state")

	// ErrWorkerFailure wraps an error raised by a block run on the
	// worker pool (IO dispatcher); Job.Join and Deferred.Await return it.
	// Only the original error's message survives the result round trip.
	ErrWorkerFailure = errors.New(Namespace + ": worker failure")

	// ErrIoFailure covers AsyncIO poller, serializer and filesystem
	// errors from the worker pool and cross-process primitives.
	ErrIoFailure = errors.New(Namespace + ": io failure")

	// ErrInvalidArgument covers invalid configuration: values rejected
	// by SchedulerConfig or DriverConfig validation, or an unreadable
	// driver config file.
	ErrInvalidArgument = errors.New(Namespace + ": invalid argument")

	// ErrSelectNoClause is returned by Select.Execute when no clause
	// can ever fire (empty builder) and no default was registered.
	ErrSelectNoClause = errors.New(Namespace + ": select has no clauses")

	// ErrIteratorExhausted is reported by a Channel iterator's Err when
	// Next is called again after it already returned false; iterators
	// are forward-only.
	ErrIteratorExhausted = errors.New(Namespace + ": channel iterator already exhausted")
)
