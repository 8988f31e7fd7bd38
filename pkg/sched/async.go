package sched

import (
	"context"
	"fmt"
)

// Async represents the result of one unit of work started with Start. It
// wraps the work's id and a capacity-1 result channel on which the work
// closure sends exactly one value.
//
// An Async belongs to the caller that received it and is not safe for
// concurrent use. It must end in exactly one of Await or Forget; inside a
// Scope, un-awaited handles are awaited for you when the scope exits.
type Async[T any] struct {
	id       WorkID
	result   chan T
	sc       *scope
	consumed bool
}

// Start enqueues fn as a new unit of work and returns its Async handle. It
// never fails: the work is queued under the scheduler lock and one sleeping
// worker is woken.
//
// fn runs on whichever fiber dequeues it, with a context carrying the
// scheduler and that fiber. The caller's context supplies the scheduler (and
// scope, if any); its values and cancellation do not propagate into fn.
// Start is a free function because Go methods cannot introduce type
// parameters.
func Start[T any](ctx context.Context, fn func(context.Context) T) *Async[T] {
	s := FromContext(ctx)

	result := make(chan T, 1)
	w := &work{
		id: newID(),
		fn: func(wctx context.Context) {
			result <- fn(wctx)
		},
	}

	a := &Async[T]{id: w.id, result: result}
	if sc := scopeFrom(ctx); sc != nil {
		sc.register(w.id)
		a.sc = sc
	}

	s.scheduleWork(w)
	return a
}

// Await consumes the handle: it suspends the calling fiber until the work
// completes, then returns the produced value. If the work already finished,
// Await returns without suspending.
//
// The receive never blocks: the closure sends its result before the
// scheduler retires the work's id, so by the time the id is no longer in
// flight the value is already in the channel. An empty channel here is a
// scheduler invariant violation and panics.
func (a *Async[T]) Await(ctx context.Context) T {
	a.consume()
	a.id.Await(ctx)

	select {
	case v := <-a.result:
		return v
	default:
		panic(fmt.Sprintf("sched: work %d finished without sending a result", a.id))
	}
}

// Forget discards the result without waiting. The work keeps running to
// completion unobserved, and the enclosing scope, if any, will not wait for
// it either.
func (a *Async[T]) Forget() {
	a.consume()
}

// WorkID returns the id of the underlying work unit, usable with
// WorkID.Await and AwaitAll.
func (a *Async[T]) WorkID() WorkID {
	return a.id
}

func (a *Async[T]) consume() {
	if a.consumed {
		panic(fmt.Sprintf("sched: result of work %d was already consumed", a.id))
	}
	a.consumed = true
	if a.sc != nil {
		a.sc.deregister(a.id)
	}
}

// AwaitAll suspends the calling fiber until every listed work unit has
// completed. Ids still in flight are registered under one lock acquisition,
// so the fiber parks at most once and becomes ready when the last of them
// finishes, whatever order they finish in.
func AwaitAll(ctx context.Context, ids ...WorkID) {
	if len(ids) == 0 {
		return
	}
	s := FromContext(ctx)
	self := mustFiber(ctx)
	if s.addDependencies(self, ids...) {
		s.park(self)
	}
}
