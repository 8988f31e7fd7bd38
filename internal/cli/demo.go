package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ostrem/weft/internal/util"
	"github.com/ostrem/weft/pkg/sched"
	"github.com/ostrem/weft/pkg/stopwatch"
)

func newDemoCmd() *cobra.Command {
	var bundles int
	var pieces int
	var spin int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a fan-out/fan-in workload on the scheduler",
		Long: `demo submits a two-level workload: each bundle is one unit of work that
fans out into pieces and awaits them, and the command awaits the bundles in
submission order. Results are checksummed so the work cannot be elided.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			log := zap.S().Named("demo")

			opts := cfg.SchedOptions()
			var rec *stopwatch.Recorder
			if cfg.TraceFile != "" {
				rec = stopwatch.NewRecorder()
				opts = append(opts, sched.WithRecorder(rec))
			}
			s := sched.New(opts...)
			defer s.Close()
			ctx := s.Attach(context.Background())

			bold := color.New(color.Bold)
			bold.Fprintf(out, "weft demo: %d bundles x %d pieces on %d workers (%s)\n",
				bundles, pieces, cfg.Workers, cfg.Policy)

			// Warm the fiber pool before timing starts.
			if err := s.Scope(ctx, func(sctx context.Context) error {
				for i := 0; i < cfg.Workers+1; i++ {
					sched.Start(sctx, func(context.Context) uint64 {
						return util.Spin(1000)
					}).Forget()
				}
				return nil
			}); err != nil {
				return err
			}

			type result struct {
				id   string
				sum  uint64
				took time.Duration
			}

			start := time.Now()
			asyncs := make([]*sched.Async[result], bundles)
			for i := 0; i < bundles; i++ {
				id := uuid.NewString()[:8]
				asyncs[i] = sched.Start(ctx, func(wctx context.Context) result {
					t0 := time.Now()
					parts := make([]*sched.Async[uint64], pieces)
					for j := 0; j < pieces; j++ {
						parts[j] = sched.Start(wctx, func(context.Context) uint64 {
							return util.Spin(spin)
						})
					}
					var sum uint64
					for _, p := range parts {
						sum ^= p.Await(wctx)
					}
					return result{id: id, sum: sum, took: time.Since(t0)}
				})
			}

			for i, a := range asyncs {
				r := a.Await(ctx)
				fmt.Fprintf(out, "  %s %s  pieces=%d checksum=%016x in %s\n",
					color.GreenString("done"), color.CyanString(r.id), pieces, r.sum, r.took)
				log.Debugw("bundle finished", "index", i, "id", r.id, "took", r.took)
			}

			total := int64(bundles) * int64(pieces) * int64(spin)
			fmt.Fprintf(out, "%s %s spins in %s\n",
				bold.Sprint("total:"), humanize.Comma(total), time.Since(start).Round(time.Microsecond))

			if rec != nil {
				return writeTrace(out, rec, cfg.TraceFile)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&bundles, "bundles", 8, "number of bundles to submit")
	cmd.Flags().IntVar(&pieces, "pieces", 16, "pieces per bundle")
	cmd.Flags().IntVar(&spin, "spin", 200000, "busy-count units per piece")
	return cmd
}
