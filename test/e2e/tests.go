package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ostrem/weft/internal/config"
	"github.com/ostrem/weft/internal/util"
	"github.com/ostrem/weft/pkg/sched"
	"github.com/ostrem/weft/pkg/stopwatch"
)

func appConfig() *config.Config {
	c := config.New()
	c.Workers = cfg.Workers
	c.Policy = cfg.Policy
	return c
}

// pipeline fans cfg.Units work units out two levels deep and folds their
// checksums. Each unit spins a different count, so the fold is sensitive to
// lost or duplicated work.
func pipeline(ctx context.Context) uint64 {
	const groups = 4
	per := cfg.Units / groups
	if per == 0 {
		per = 1
	}

	asyncs := make([]*sched.Async[uint64], groups)
	for g := 0; g < groups; g++ {
		asyncs[g] = sched.Start(ctx, func(wctx context.Context) uint64 {
			parts := make([]*sched.Async[uint64], per)
			for i := range parts {
				parts[i] = sched.Start(wctx, func(context.Context) uint64 {
					return util.Spin(cfg.Spin + g*1000 + i)
				})
			}
			var sum uint64
			for _, p := range parts {
				sum ^= p.Await(wctx)
			}
			return sum
		})
	}

	var sum uint64
	for _, a := range asyncs {
		sum ^= a.Await(ctx)
	}
	return sum
}

var _ = Describe("weft end to end", func() {
	It("runs the full pipeline twice with a stable checksum", func() {
		s := sched.New(appConfig().SchedOptions()...)
		defer s.Close()
		ctx := s.Attach(context.Background())

		first := pipeline(ctx)
		second := pipeline(ctx)
		Expect(first).NotTo(BeZero())
		Expect(second).To(Equal(first))
	})

	It("serves many attached goroutines against one scheduler", func() {
		s := sched.New(appConfig().SchedOptions()...)
		defer s.Close()

		const clients = 8
		sums := make([]uint64, clients)
		var wg sync.WaitGroup
		for c := 0; c < clients; c++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				ctx := s.Attach(context.Background())
				sums[c] = pipeline(ctx)
			}()
		}
		wg.Wait()

		for i := 1; i < clients; i++ {
			Expect(sums[i]).To(Equal(sums[0]))
		}
	})

	It("settles every unit started in a scope before the scope returns", func() {
		s := sched.New(appConfig().SchedOptions()...)
		defer s.Close()
		ctx := s.Attach(context.Background())

		var completed atomic.Int64
		err := s.Scope(ctx, func(sctx context.Context) error {
			for i := 0; i < cfg.Units; i++ {
				sched.Start(sctx, func(context.Context) uint64 {
					defer completed.Add(1)
					return util.Spin(cfg.Spin)
				}).Forget()
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(completed.Load()).To(Equal(int64(cfg.Units)))
	})

	It("yields identical results across scheduling policies", func() {
		sums := make(map[string]uint64)
		for _, policy := range []string{"new-work-first", "ready-fibers-first"} {
			c := appConfig()
			c.Policy = policy
			s := sched.New(c.SchedOptions()...)
			ctx := s.Attach(context.Background())
			sums[policy] = pipeline(ctx)
			s.Close()
		}
		Expect(sums["ready-fibers-first"]).To(Equal(sums["new-work-first"]))
	})

	It("captures a balanced trace of a full run", func() {
		dir := cfg.TraceDir
		if dir == "" {
			dir = GinkgoT().TempDir()
		}

		c := appConfig()
		if c.Workers < 1 {
			c.Workers = 1
		}
		rec := stopwatch.NewRecorder()
		opts := append(c.SchedOptions(), sched.WithRecorder(rec))
		s := sched.New(opts...)
		ctx := s.Attach(context.Background())

		sp := rec.StartSpan(ctx, "pipeline")
		pipeline(ctx)

		// A gated pair, so the trace holds at least one suspension whatever
		// the timing of the pipeline was.
		gate := make(chan struct{})
		a := sched.Start(ctx, func(context.Context) uint64 { <-gate; return 1 })
		b := sched.Start(ctx, func(context.Context) uint64 { close(gate); return 2 })
		a.Await(ctx)
		b.Await(ctx)
		sp.Stop()
		s.Close()

		path := filepath.Join(dir, "e2e-trace.json")
		f, err := os.Create(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.WriteTrace(f)).To(Succeed())
		Expect(f.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		var events []stopwatch.Event
		Expect(json.Unmarshal(data, &events)).To(Succeed())

		var begins, ends, flows int
		for _, e := range events {
			switch e.Ph {
			case "B":
				begins++
			case "E":
				ends++
			case "s":
				flows++
			}
		}
		Expect(begins).To(Equal(ends))
		Expect(flows).To(BeNumerically(">", 0))
	})

	It("releases its goroutines after repeated heavy runs", func() {
		before := runtime.NumGoroutine()

		s := sched.New(appConfig().SchedOptions()...)
		ctx := s.Attach(context.Background())
		for r := 0; r < 3; r++ {
			pipeline(ctx)
		}
		s.Close()

		Eventually(runtime.NumGoroutine).
			WithTimeout(5 * time.Second).
			WithPolling(100 * time.Millisecond).
			Should(BeNumerically("<=", before+3))
	})
})
