package sched

import (
	"context"
	"sync"
)

// scope collects the ids of work started through a Scope context so the
// scope can wait for whatever was neither awaited nor forgotten.
type scope struct {
	mu      sync.Mutex
	pending map[WorkID]struct{}
}

func (sc *scope) register(id WorkID) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.pending == nil {
		sc.pending = make(map[WorkID]struct{})
	}
	sc.pending[id] = struct{}{}
}

func (sc *scope) deregister(id WorkID) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.pending, id)
}

func (sc *scope) drain() []WorkID {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	ids := make([]WorkID, 0, len(sc.pending))
	for id := range sc.pending {
		ids = append(ids, id)
	}
	sc.pending = nil
	return ids
}

// Scope runs fn and, when it returns, blocks until every unit of work
// started through fn's context has been awaited, forgotten, or finished.
// Work never outlives the scope that started it, so closures may safely
// capture data owned by the caller's frame.
//
// fn's error is returned unchanged after the wait.
func (s *Scheduler) Scope(ctx context.Context, fn func(context.Context) error) error {
	self := mustFiber(ctx)

	sc := &scope{}
	ctx = context.WithValue(s.contextFor(ctx, self), scopeKey{}, sc)
	err := fn(ctx)
	AwaitAll(ctx, sc.drain()...)
	return err
}
