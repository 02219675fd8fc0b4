// Package foroutines implements a cooperative, structured-concurrency
// runtime: a single-threaded scheduler that multiplexes user tasks
// (fibers) on top of goroutines, coordinates them through channels,
// flows and select, and offloads blocking work to an isolated worker
// pool.
//
// Constructors
//   - Run(cfg, logger, block): top-level driver. Constructs the runtime,
//     drives it to quiescence, tears it down.
//   - Launch/Async: schedule a block on a Dispatcher and return a
//     Job/Deferred handle.
//   - NewChannel[T], Select, NewFlow[T], NewSharedFlow[T], NewStateFlow[T]:
//     the coordination primitives.
//
// Defaults
// Unless overridden via SchedulerOption, a Scheduler uses:
//   - Dispatcher: DEFAULT (single-threaded fiber scheduling)
//   - IdleBackoff: 500 microseconds
//   - Logger: a no-op zap.Logger
//
// The runtime does not close channels or flows automatically; callers
// own that the way a worker pool library leaves Results/Errors channel
// closure to application code.
package foroutines
