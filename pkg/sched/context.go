package sched

import (
	"context"

	"github.com/ostrem/weft/pkg/fiber"
)

type (
	schedulerKey struct{}
	fiberKey     struct{}
	scopeKey     struct{}
)

// FromContext returns the Scheduler carried by ctx. It panics if ctx does
// not carry one; every context handed out by Attach, Scope, or a work
// closure does.
func FromContext(ctx context.Context) *Scheduler {
	s, ok := ctx.Value(schedulerKey{}).(*Scheduler)
	if !ok {
		panic("sched: context does not carry a scheduler; use Scheduler.Attach")
	}
	return s
}

// CurrentFiber returns the fiber the calling code runs on, or nil if ctx
// does not carry one.
func CurrentFiber(ctx context.Context) *fiber.Fiber {
	f, _ := ctx.Value(fiberKey{}).(*fiber.Fiber)
	return f
}

func mustFiber(ctx context.Context) *fiber.Fiber {
	f := CurrentFiber(ctx)
	if f == nil {
		panic("sched: context does not carry a fiber; use Scheduler.Attach or run inside started work")
	}
	return f
}

func scopeFrom(ctx context.Context) *scope {
	sc, _ := ctx.Value(scopeKey{}).(*scope)
	return sc
}

func (s *Scheduler) contextFor(parent context.Context, f *fiber.Fiber) context.Context {
	ctx := context.WithValue(parent, schedulerKey{}, s)
	return context.WithValue(ctx, fiberKey{}, f)
}
