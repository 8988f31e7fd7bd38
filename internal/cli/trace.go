package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ostrem/weft/internal/util"
	"github.com/ostrem/weft/pkg/sched"
	"github.com/ostrem/weft/pkg/stopwatch"
)

func newTraceCmd() *cobra.Command {
	var frames int
	var spin int

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Capture a Chrome trace of a frame-structured workload",
		Long: `trace runs a canned frame loop with the stopwatch recorder attached:
each frame simulates, fans an upload out to another fiber, and awaits it.
The recorded spans and switch arrows are written as Chrome trace JSON for
chrome://tracing or Perfetto.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.TraceFile
			if path == "" {
				path = "weft-trace.json"
			}

			rec := stopwatch.NewRecorder()
			opts := append(cfg.SchedOptions(), sched.WithRecorder(rec))
			s := sched.New(opts...)
			defer s.Close()
			ctx := s.Attach(context.Background())

			for frame := 0; frame < frames; frame++ {
				sp := rec.StartSpan(ctx, fmt.Sprintf("frame-%d", frame))
				a := sched.Start(ctx, func(wctx context.Context) uint64 {
					sim := rec.StartSpan(wctx, "simulate")
					n := util.Spin(spin)
					sim.Stop()

					upload := sched.Start(wctx, func(uctx context.Context) uint64 {
						usp := rec.StartSpan(uctx, "upload")
						defer usp.Stop()
						return util.Spin(spin / 2)
					})
					return n ^ upload.Await(wctx)
				})
				a.Await(ctx)
				sp.Stop()
			}

			return writeTrace(cmd.OutOrStdout(), rec, path)
		},
	}

	cmd.Flags().IntVar(&frames, "frames", 10, "frames to simulate")
	cmd.Flags().IntVar(&spin, "spin", 100000, "busy-count units per frame")
	return cmd
}
