package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ostrem/weft/internal/config"
	"github.com/ostrem/weft/pkg/stopwatch"
)

var (
	flagWorkers   int
	flagPolicy    string
	flagLogLevel  string
	flagLogFormat string
	flagTraceFile string

	cfg *config.Config
)

// NewRootCmd creates the root cobra command for the weft CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "weft",
		Short: "A cooperative fiber scheduler for dependency-ordered work",
		Long: `weft multiplexes units of work over a pool of cooperatively scheduled
fibers. The subcommands run demo workloads, measure throughput, and capture
Chrome traces of the scheduler at work.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.New()
			cfg.Workers = flagWorkers
			cfg.Policy = flagPolicy
			cfg.LogLevel = flagLogLevel
			cfg.LogFormat = flagLogFormat
			cfg.TraceFile = flagTraceFile
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := cfg.BuildLogger()
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			return nil
		},
		SilenceUsage: true,
	}

	defaults := config.New()
	root.PersistentFlags().IntVar(&flagWorkers, "workers", defaults.Workers, "scheduler worker pool size")
	root.PersistentFlags().StringVar(&flagPolicy, "policy", defaults.Policy, "dispatch policy (new-work-first, ready-fibers-first)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", defaults.LogFormat, "log format (console, json)")
	root.PersistentFlags().StringVar(&flagTraceFile, "trace-file", defaults.TraceFile, "write a Chrome trace of the run to this path")

	root.AddCommand(
		newDemoCmd(),
		newBenchCmd(),
		newTraceCmd(),
	)

	return root
}

func writeTrace(out io.Writer, rec *stopwatch.Recorder, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	defer f.Close()

	if err := rec.WriteTrace(f); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s trace events to %s\n",
		humanize.Comma(int64(len(rec.Events()))), color.CyanString(path))
	return nil
}
