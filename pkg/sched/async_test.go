package sched_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ostrem/weft/internal/util"
	"github.com/ostrem/weft/pkg/sched"
)

var _ = Describe("Async", func() {
	var s *sched.Scheduler

	AfterEach(func() {
		if s != nil {
			s.Close()
			s = nil
		}
	})

	It("issues unique ids under concurrent submission", func() {
		s = sched.New(sched.WithWorkers(2))

		const n = 200
		ids := make(chan sched.WorkID, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				ctx := s.Attach(context.Background())
				a := sched.Start(ctx, func(context.Context) int {
					return int(util.Spin(100))
				})
				ids <- a.WorkID()
				a.Await(ctx)
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[sched.WorkID]struct{}, n)
		for id := range ids {
			Expect(id).NotTo(BeZero())
			Expect(seen).NotTo(HaveKey(id))
			seen[id] = struct{}{}
		}
		Expect(seen).To(HaveLen(n))
	})

	It("returns immediately when awaiting already-retired work", func() {
		s = sched.New(sched.WithWorkers(1))
		ctx := s.Attach(context.Background())

		a := sched.Start(ctx, func(context.Context) int { return 7 })
		Expect(a.Await(ctx)).To(Equal(7))

		id := a.WorkID()
		returned := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			ctx2 := s.Attach(context.Background())
			id.Await(ctx2)
			sched.AwaitAll(ctx2)
			sched.AwaitAll(ctx2, id, id)
			close(returned)
		}()
		Eventually(returned).WithTimeout(time.Second).Should(BeClosed())
	})

	It("lets go of a forgotten result while the work runs to completion", func() {
		s = sched.New(sched.WithWorkers(1))
		ctx := s.Attach(context.Background())

		release := make(chan struct{})
		var ran atomic.Bool
		a := sched.Start(ctx, func(context.Context) int {
			<-release
			ran.Store(true)
			return 9
		})
		a.Forget()
		close(release)

		Eventually(ran.Load).WithTimeout(2 * time.Second).Should(BeTrue())
	})

	It("readies an N-way join only after the last dependency finishes", func() {
		s = sched.New(sched.WithWorkers(3))
		ctx := s.Attach(context.Background())

		gates := make([]chan struct{}, 3)
		ids := make([]sched.WorkID, 3)
		for i := range gates {
			gates[i] = make(chan struct{})
			a := sched.Start(ctx, func(context.Context) int {
				<-gates[i]
				return i
			})
			ids[i] = a.WorkID()
			a.Forget()
		}

		joined := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			jctx := s.Attach(context.Background())
			sched.AwaitAll(jctx, ids...)
			close(joined)
		}()

		Consistently(joined).WithTimeout(100 * time.Millisecond).ShouldNot(BeClosed())
		close(gates[2])
		Consistently(joined).WithTimeout(100 * time.Millisecond).ShouldNot(BeClosed())
		close(gates[0])
		Consistently(joined).WithTimeout(100 * time.Millisecond).ShouldNot(BeClosed())
		close(gates[1])
		Eventually(joined).WithTimeout(2 * time.Second).Should(BeClosed())
	})

	It("panics when a result is consumed twice", func() {
		s = sched.New()
		ctx := s.Attach(context.Background())

		a := sched.Start(ctx, func(context.Context) int { return 1 })
		Expect(a.Await(ctx)).To(Equal(1))
		Expect(func() { a.Await(ctx) }).To(PanicWith(ContainSubstring("already consumed")))

		b := sched.Start(ctx, func(context.Context) int { return 2 })
		b.Forget()
		Expect(func() { b.Await(ctx) }).To(PanicWith(ContainSubstring("already consumed")))
	})
})

var _ = Describe("Scope", func() {
	var s *sched.Scheduler

	AfterEach(func() {
		if s != nil {
			s.Close()
			s = nil
		}
	})

	It("waits at scope exit for work that was never awaited", func() {
		s = sched.New(sched.WithWorkers(1))

		release := make(chan struct{})
		var done atomic.Bool
		scopeDone := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			ctx := s.Attach(context.Background())
			err := s.Scope(ctx, func(sctx context.Context) error {
				sched.Start(sctx, func(context.Context) int {
					<-release
					done.Store(true)
					return 1
				})
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			close(scopeDone)
		}()

		Consistently(scopeDone).WithTimeout(150 * time.Millisecond).ShouldNot(BeClosed())
		close(release)
		Eventually(scopeDone).WithTimeout(2 * time.Second).Should(BeClosed())
		Expect(done.Load()).To(BeTrue())
	})

	It("still settles outstanding work when the callback errors", func() {
		s = sched.New(sched.WithWorkers(1))
		ctx := s.Attach(context.Background())

		errBoom := errors.New("weave failed")
		var ran atomic.Bool
		err := s.Scope(ctx, func(sctx context.Context) error {
			sched.Start(sctx, func(context.Context) int {
				util.Spin(50000)
				ran.Store(true)
				return 0
			})
			return errBoom
		})
		Expect(err).To(MatchError(errBoom))
		Expect(ran.Load()).To(BeTrue())
	})

	It("does not re-wait work already settled inside the scope", func() {
		s = sched.New(sched.WithWorkers(1))
		ctx := s.Attach(context.Background())

		err := s.Scope(ctx, func(sctx context.Context) error {
			a := sched.Start(sctx, func(context.Context) int { return 5 })
			Expect(a.Await(sctx)).To(Equal(5))

			b := sched.Start(sctx, func(context.Context) int { return 6 })
			b.Forget()
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
	})
})
