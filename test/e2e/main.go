package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ostrem/weft/internal/config"
)

type configuration struct {
	Workers  int
	Policy   string
	Units    int
	Spin     int
	TraceDir string
}

var cfg configuration

func (c configuration) Validate() error {
	if c.Units <= 0 {
		return fmt.Errorf("units must be positive, got %d", c.Units)
	}
	if c.Spin <= 0 {
		return fmt.Errorf("spin must be positive, got %d", c.Spin)
	}
	app := config.New()
	app.Workers = c.Workers
	app.Policy = c.Policy
	return app.Validate()
}

func main() {
	flag.IntVar(&cfg.Workers, "workers", 4, "scheduler worker pool size")
	flag.StringVar(&cfg.Policy, "policy", "new-work-first", "dispatch policy: 'new-work-first' or 'ready-fibers-first'")
	flag.IntVar(&cfg.Units, "units", 64, "work units per pipeline spec")
	flag.IntVar(&cfg.Spin, "spin", 20000, "busy-count units per work unit")
	flag.StringVar(&cfg.TraceDir, "trace-dir", "", "directory for captured traces (default: temp dir)")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("failed to validate configuration: %v", err)
	}

	RegisterFailHandler(Fail)
	if !RunSpecs(&testing.T{}, "E2E Suite") {
		os.Exit(1)
	}
}
