package sched

import (
	"fmt"

	"github.com/creasty/defaults"
	"go.uber.org/zap"
)

// Config carries the tunables for a Scheduler instance. Zero values are
// replaced by the struct tag defaults.
type Config struct {
	// Workers is the number of pool goroutines that pull work. Zero is
	// valid: work then runs only on fibers created when attached callers
	// suspend or await.
	Workers int `default:"1"`

	// Policy governs what a worker picks first when both new work and
	// ready fibers are available.
	Policy Policy `default:"new-work-first"`

	// Recorder, when set, observes every fiber context switch.
	Recorder SwitchRecorder

	// Logger defaults to the global sugared logger named "sched".
	Logger *zap.SugaredLogger
}

func (c Config) validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	switch c.Policy {
	case PreferNewWork, PreferReadyFibers:
	default:
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	return nil
}

// Option customizes a Scheduler at construction time.
type Option func(*Config)

// WithWorkers sets the size of the worker pool.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithPolicy selects the dispatch order for new work versus ready fibers.
func WithPolicy(p Policy) Option {
	return func(c *Config) { c.Policy = p }
}

// WithRecorder attaches a context-switch recorder, typically a
// stopwatch.Recorder.
func WithRecorder(rec SwitchRecorder) Option {
	return func(c *Config) { c.Recorder = rec }
}

// WithLogger overrides the scheduler's logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Config) { c.Logger = log }
}

func newConfig(opts ...Option) Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("sched: applying config defaults: %v", err))
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.S().Named("sched")
	}
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("sched: invalid configuration: %v", err))
	}
	return cfg
}
