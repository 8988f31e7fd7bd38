package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ostrem/weft/internal/util"
	"github.com/ostrem/weft/pkg/sched"
	"github.com/ostrem/weft/pkg/stopwatch"
)

func newBenchCmd() *cobra.Command {
	var units int
	var spin int
	var producers int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure scheduler throughput under cross-submission",
		Long: `bench runs N producer goroutines against one scheduler. Each producer
submits its share of busy-count work units and awaits them; every unit yields
once midway, so the run is heavy on suspension and resumption. Reports wall
time and units per second.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if producers < 1 {
				return fmt.Errorf("producers must be at least 1, got %d", producers)
			}

			opts := cfg.SchedOptions()
			var rec *stopwatch.Recorder
			if cfg.TraceFile != "" {
				rec = stopwatch.NewRecorder()
				opts = append(opts, sched.WithRecorder(rec))
			}
			s := sched.New(opts...)
			defer s.Close()

			per := units / producers
			if per == 0 {
				per = 1
			}
			total := per * producers

			start := time.Now()
			sums := make([]uint64, producers)
			var wg sync.WaitGroup
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctx := s.Attach(context.Background())
					asyncs := make([]*sched.Async[uint64], per)
					for i := range asyncs {
						seed := spin + i%97
						asyncs[i] = sched.Start(ctx, func(wctx context.Context) uint64 {
							n := util.Spin(seed / 2)
							s.Suspend(wctx)
							return n ^ util.Spin(seed-seed/2)
						})
					}
					var sum uint64
					for _, a := range asyncs {
						sum ^= a.Await(ctx)
					}
					sums[p] = sum
				}()
			}
			wg.Wait()
			elapsed := time.Since(start)

			var checksum uint64
			for _, sum := range sums {
				checksum ^= sum
			}

			perSec := float64(total) / elapsed.Seconds()
			fmt.Fprintf(out, "%s units=%s spin=%s producers=%d workers=%d policy=%s\n",
				color.New(color.Bold).Sprint("weft bench"),
				humanize.Comma(int64(total)), humanize.Comma(int64(spin)),
				producers, cfg.Workers, cfg.Policy)
			fmt.Fprintf(out, "  finished in %s (%s units/s) checksum=%016x\n",
				elapsed.Round(time.Microsecond), humanize.CommafWithDigits(perSec, 0), checksum)
			zap.S().Named("bench").Debugw("bench finished",
				"units", total, "producers", producers, "elapsed", elapsed, "per_sec", perSec)

			if rec != nil {
				return writeTrace(out, rec, cfg.TraceFile)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&units, "units", 10000, "work units to submit across all producers")
	cmd.Flags().IntVar(&spin, "spin", 5000, "busy-count units per work unit")
	cmd.Flags().IntVar(&producers, "producers", 4, "concurrent producer goroutines")
	return cmd
}
