package foroutines

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DriverConfig configures the top-level driver. Values are sourced
// from environment variables (FOROUTINES_ prefix) and, optionally, a
// config file, via spf13/viper.
type DriverConfig struct {
	IdleBackoff     time.Duration `mapstructure:"idle_backoff" validate:"gt=0"`
	MainQueueBuffer uint          `mapstructure:"main_queue_buffer" validate:"gt=0"`
	Verbose         bool          `mapstructure:"verbose"`
}

// LoadDriverConfig builds a DriverConfig from defaults, an optional
// config file (configPath, ignored if empty or missing), and
// FOROUTINES_-prefixed environment variables, in that increasing order
// of precedence.
func LoadDriverConfig(configPath string) (DriverConfig, error) {
	v := viper.New()
	v.SetDefault("idle_backoff", 500*time.Microsecond)
	v.SetDefault("main_queue_buffer", 1024)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix("FOROUTINES")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
				return DriverConfig{}, fmt.Errorf("%w: reading driver config: %v", ErrInvalidArgument, err)
			}
		}
	}

	var cfg DriverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return DriverConfig{}, fmt.Errorf("%w: decoding driver config: %v", ErrInvalidArgument, err)
	}
	if err := configValidator.Struct(&cfg); err != nil {
		return DriverConfig{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return cfg, nil
}

// Run is the top-level entry point: it constructs a Scheduler from
// cfg, runs block to completion via RunBlocking semantics, and always
// tears workers and AsyncIO watchers down on its way out, even if
// block fails.
func Run[R any](cfg DriverConfig, logger *zap.Logger, block func(c *Ctx) (R, error)) (R, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sched := NewScheduler(
		WithIdleBackoff(cfg.IdleBackoff),
		WithMainQueueBuffer(cfg.MainQueueBuffer),
		WithLogger(logger),
	)
	defer sched.Shutdown()

	logger.Debug("foroutines driver starting",
		zap.Duration("idle_backoff", cfg.IdleBackoff),
		zap.Uint("main_queue_buffer", cfg.MainQueueBuffer),
	)

	result, err := RunBlocking(sched, block)
	if err != nil {
		logger.Error("foroutines top-level block failed", zap.Error(err))
	}
	return result, err
}
