package config

import (
	"fmt"

	"github.com/creasty/defaults"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ostrem/weft/pkg/sched"
)

// Config carries everything the commands need to stand up a scheduler and
// its logging. Fields map one-to-one onto command-line flags.
type Config struct {
	Workers   int    `default:"4"`
	Policy    string `default:"new-work-first"`
	LogLevel  string `default:"info"`
	LogFormat string `default:"console"`
	TraceFile string `default:""`
}

// New returns a Config populated with defaults.
func New() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		panic(fmt.Errorf("applying config defaults: %w", err))
	}
	return c
}

func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	switch sched.Policy(c.Policy) {
	case sched.PreferNewWork, sched.PreferReadyFibers:
	default:
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	return nil
}

// SchedOptions translates the config into scheduler options.
func (c *Config) SchedOptions() []sched.Option {
	return []sched.Option{
		sched.WithWorkers(c.Workers),
		sched.WithPolicy(sched.Policy(c.Policy)),
	}
}

// BuildLogger constructs the zap logger described by LogLevel and LogFormat.
// The caller owns the logger and should install it with zap.ReplaceGlobals.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	var zc zap.Config
	if c.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}
