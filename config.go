package foroutines

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vosaka-php/foroutines/asyncio"
	"github.com/vosaka-php/foroutines/workerpool"
	"go.uber.org/zap"

	"github.com/vosaka-php/foroutines/metrics"
)

// SchedulerConfig holds tunable Scheduler configuration: idle backoff
// and queue sizing.
type SchedulerConfig struct {
	// IdleBackoff is how long RunUntilIdle/RunBlocking sleep between
	// idle rounds when pending work remains but nothing is ready yet.
	// Default: 500µs.
	IdleBackoff time.Duration `validate:"gt=0"`

	// MainQueueBuffer bounds the MAIN dispatcher's FIFO queue.
	// Default: 1024.
	MainQueueBuffer uint `validate:"gt=0"`

	// Logger receives structured scheduler/job lifecycle events.
	// Default: zap.NewNop().
	Logger *zap.Logger

	// Metrics receives lifecycle counters/histograms.
	// Default: metrics.NoopProvider{}.
	Metrics metrics.Provider

	// IO overrides the AsyncIO poller implementation. Default: a
	// platform poller from asyncio.NewPoller().
	IO asyncio.Poller

	// WorkerPoolOptions is forwarded to workerpool.New for the IO
	// dispatcher's worker pool, whose slots run work on goroutines in
	// this process.
	WorkerPoolOptions []workerpool.Option
}

var configValidator = validator.New()

// defaultSchedulerConfig centralizes default values for SchedulerConfig.
// These defaults are applied by both NewScheduler (when no options are
// given) and the options builder base.
func defaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		IdleBackoff:     500 * time.Microsecond,
		MainQueueBuffer: 1024,
		Logger:          zap.NewNop(),
		Metrics:         metrics.NoopProvider{},
	}
}

// validateSchedulerConfig performs struct-tag validation via
// go-playground/validator, the same ambient validation style used for
// configuration loaded from outside a fiber (e.g. the top-level driver).
func validateSchedulerConfig(cfg *SchedulerConfig) error {
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// SchedulerOption configures a Scheduler built via NewScheduler.
type SchedulerOption func(*SchedulerConfig)

// WithIdleBackoff overrides the idle-round sleep duration.
func WithIdleBackoff(d time.Duration) SchedulerOption {
	return func(c *SchedulerConfig) { c.IdleBackoff = d }
}

// WithMainQueueBuffer overrides the MAIN dispatcher queue capacity.
func WithMainQueueBuffer(n uint) SchedulerOption {
	return func(c *SchedulerConfig) { c.MainQueueBuffer = n }
}

// WithLogger attaches a zap logger for scheduler/job events.
func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(c *SchedulerConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithMetrics attaches a metrics.Provider for lifecycle instrumentation.
func WithMetrics(p metrics.Provider) SchedulerOption {
	return func(c *SchedulerConfig) {
		if p != nil {
			c.Metrics = p
		}
	}
}

// WithIOPoller overrides the AsyncIO poller implementation, primarily
// for tests that substitute a fake poller.
func WithIOPoller(p asyncio.Poller) SchedulerOption {
	return func(c *SchedulerConfig) { c.IO = p }
}

// WithWorkerPoolOptions forwards options to the underlying workerpool.Pool.
func WithWorkerPoolOptions(opts ...workerpool.Option) SchedulerOption {
	return func(c *SchedulerConfig) { c.WorkerPoolOptions = append(c.WorkerPoolOptions, opts...) }
}
