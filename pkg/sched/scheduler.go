package sched

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ostrem/weft/pkg/fiber"
)

type queue[T any] []T

func (q *queue[T]) Len() int { return len(*q) }

func (q *queue[T]) Pop() T {
	old := *q
	x := old[0]
	*q = old[1:]
	return x
}

func (q *queue[T]) Push(t T) {
	*q = append(*q, t)
}

// depEntry tracks a fiber blocked on one or more work units. fib stays nil
// until the fiber has fully suspended; it is filled exactly once. The wait
// set can empty out while the fiber is still mid-switch; the entry then
// stays behind so handleSuspended can ready the fiber the moment it lands.
type depEntry struct {
	fib   *fiber.Fiber
	waits map[WorkID]struct{}
}

// Scheduler multiplexes units of work over a pool of fibers. All bookkeeping
// lives behind one mutex with an associated condition variable; the mutex is
// never held across a fiber switch.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	// quiet is broadcast on every transition to quiescence. Close drains
	// on it rather than on cond: a Close co-waiting on cond could consume
	// a Signal meant to hand a worker new work or a ready fiber.
	quiet *sync.Cond

	currentWork  map[WorkID]struct{}
	fiberWork    map[fiber.ID]WorkID
	newWork      *queue[*work]
	readyFibers  *queue[*fiber.Fiber]
	dependencies map[fiber.ID]*depEntry
	finished     *queue[*fiber.Fiber]

	// suspending counts fibers committed to parking whose resting state has
	// not yet been finalized by handleSuspended. Close may not proceed while
	// any switch is still in flight.
	suspending int
	stopping   bool

	policy Policy
	rec    SwitchRecorder
	log    *zap.SugaredLogger

	baseCtx context.Context
	wg      sync.WaitGroup
	once    sync.Once
}

// New constructs a scheduler and spawns its worker pool. Instances are
// independent; several can coexist in one process.
func New(opts ...Option) *Scheduler {
	cfg := newConfig(opts...)

	s := &Scheduler{
		currentWork:  make(map[WorkID]struct{}),
		fiberWork:    make(map[fiber.ID]WorkID),
		newWork:      &queue[*work]{},
		readyFibers:  &queue[*fiber.Fiber]{},
		dependencies: make(map[fiber.ID]*depEntry),
		finished:     &queue[*fiber.Fiber]{},
		policy:       cfg.Policy,
		rec:          cfg.Recorder,
		log:          cfg.Logger,
		baseCtx:      context.Background(),
	}
	s.cond = sync.NewCond(&s.mu)
	s.quiet = sync.NewCond(&s.mu)

	for range cfg.Workers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fiberRoutine(fiber.Adopt())
		}()
	}

	s.log.Debugw("scheduler started", "workers", cfg.Workers, "policy", cfg.Policy)
	return s
}

// Attach adopts the calling goroutine as a fiber and returns a context
// carrying the scheduler and that fiber. It must be called once per
// goroutine before that goroutine uses Start, Await, Suspend, or Scope.
func (s *Scheduler) Attach(ctx context.Context) context.Context {
	return s.contextFor(ctx, fiber.Adopt())
}

// Suspend voluntarily yields the processor to other ready work. Long-running
// synchronous code can call this to avoid starving other work. A fiber with
// assigned work is requeued as ready; a fiber with none donates its context
// to the reuse pool and resumes when the pool is next drawn from. On a
// draining scheduler Suspend returns without yielding.
func (s *Scheduler) Suspend(ctx context.Context) {
	self := mustFiber(ctx)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.suspending++
	next := s.nextFiberLocked()
	s.mu.Unlock()

	s.switchTo(self, next)
}

// Close drains the scheduler and releases every goroutine it owns: it waits
// until no queued, running, or awaited work remains, then unwinds the worker
// pool and the pooled fibers. Idempotent. Start must not be called once
// Close has begun; fibers parked in the reuse pool are resumed one last time
// so their callers can unwind.
func (s *Scheduler) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		for !s.quiescentLocked() {
			s.quiet.Wait()
		}
		s.stopping = true
		pool := make([]*fiber.Fiber, 0, s.finished.Len())
		for s.finished.Len() > 0 {
			pool = append(pool, s.finished.Pop())
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		for _, f := range pool {
			f.Release()
		}
		s.wg.Wait()
		s.log.Debugw("scheduler closed")
	})
	return nil
}

// park suspends self after a dependency has been registered for it. The
// caller must already have committed the suspension (via addDependencies).
func (s *Scheduler) park(self *fiber.Fiber) {
	s.mu.Lock()
	next := s.nextFiberLocked()
	s.mu.Unlock()

	s.switchTo(self, next)
}

// switchTo resumes next outside the lock, then finalizes whichever fiber
// that resume suspended. A nil predecessor means self was released during
// teardown and there is nothing to finalize.
func (s *Scheduler) switchTo(self, next *fiber.Fiber) {
	prev := self.Switch(next)
	if prev == nil {
		return
	}
	if s.rec != nil {
		s.rec.SwitchContext(prev.ID(), self.ID())
	}
	s.mu.Lock()
	s.handleSuspendedLocked(prev)
	s.mu.Unlock()
}

// fiberRoutine is the worker loop every pool fiber and every created fiber
// ends up in once it has no directly-assigned work: execute new work, resume
// ready fibers, or sleep on the condition variable until either appears.
func (s *Scheduler) fiberRoutine(self *fiber.Fiber) {
	ctx := s.contextFor(s.baseCtx, self)
	for {
		s.mu.Lock()
		var w *work
		var next *fiber.Fiber
		for {
			if s.stopping {
				s.mu.Unlock()
				return
			}
			w, next = s.nextLocked()
			if w != nil || next != nil {
				break
			}
			s.cond.Wait()
		}

		if w != nil {
			s.startWorkLocked(self, w.id)
			s.mu.Unlock()
			w.fn(ctx)
			s.finishWork(self, w.id)
			continue
		}

		s.mu.Unlock()
		s.switchTo(self, next)
	}
}

// scheduleWork registers w as in flight and queues it, then wakes one
// sleeper. One unit of work needs one worker, so Signal, never Broadcast.
func (s *Scheduler) scheduleWork(w *work) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		panic("sched: Start called on a closed scheduler")
	}
	if _, dup := s.currentWork[w.id]; dup {
		panic(fmt.Sprintf("sched: work %d is already in the current work set", w.id))
	}
	s.currentWork[w.id] = struct{}{}
	s.newWork.Push(w)
	s.cond.Signal()
}

// addDependency records that fib must wait for id. It returns true if the
// work is still in flight and fib must now park, false if the work already
// finished and fib may proceed.
func (s *Scheduler) addDependency(fib *fiber.Fiber, id WorkID) bool {
	return s.addDependencies(fib, id)
}

// addDependencies is the multi-id form: every id still in flight is
// registered under the same single lock acquisition, so the fiber parks at
// most once no matter how many of the ids are outstanding.
func (s *Scheduler) addDependencies(fib *fiber.Fiber, ids ...WorkID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	waits := make(map[WorkID]struct{}, len(ids))
	for _, id := range ids {
		if _, inFlight := s.currentWork[id]; inFlight {
			waits[id] = struct{}{}
		}
	}
	if len(waits) == 0 {
		return false
	}

	if _, dup := s.dependencies[fib.ID()]; dup {
		panic(fmt.Sprintf("sched: %v already has a pending dependency entry", fib))
	}
	s.dependencies[fib.ID()] = &depEntry{waits: waits}
	s.suspending++
	return true
}

func (s *Scheduler) startWorkLocked(fib *fiber.Fiber, id WorkID) {
	if _, ok := s.currentWork[id]; !ok {
		panic(fmt.Sprintf("sched: work %d is not in the current work set", id))
	}
	s.fiberWork[fib.ID()] = id
}

// finishWork retires id after its closure has run. Dependency entries that
// empty out and already hold their fiber handle become ready, one Signal
// each. An entry that empties while its fiber is still mid-switch stays in
// the map; handleSuspended readies it when the fiber lands.
func (s *Scheduler) finishWork(fib *fiber.Fiber, id WorkID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for fid, e := range s.dependencies {
		delete(e.waits, id)
		if len(e.waits) > 0 || e.fib == nil {
			continue
		}
		delete(s.dependencies, fid)
		s.readyFibers.Push(e.fib)
		s.cond.Signal()
	}

	if _, ok := s.currentWork[id]; !ok {
		panic(fmt.Sprintf("sched: work %d finished but was not in the current work set", id))
	}
	delete(s.currentWork, id)

	assigned, ok := s.fiberWork[fib.ID()]
	if !ok || assigned != id {
		panic(fmt.Sprintf("sched: %v finished work %d without it being assigned", fib, id))
	}
	delete(s.fiberWork, fib.ID())

	if s.quiescentLocked() {
		s.quiet.Broadcast()
	}
}

// handleSuspendedLocked finalizes the resting state of a fiber that was just
// switched away from. Exactly one branch applies: record the handle on its
// pending dependency entry (readying it at once if the waits emptied during
// the switch), requeue it as ready if it still has assigned work, or return
// it to the reuse pool. This runs after every switch; a missed call leaks
// the fiber.
func (s *Scheduler) handleSuspendedLocked(prev *fiber.Fiber) {
	s.suspending--

	if e, ok := s.dependencies[prev.ID()]; ok {
		if e.fib != nil {
			panic(fmt.Sprintf("sched: %v suspended but its handle was already recorded", prev))
		}
		e.fib = prev
		if len(e.waits) == 0 {
			delete(s.dependencies, prev.ID())
			s.readyFibers.Push(prev)
			s.cond.Signal()
		}
	} else if _, ok := s.fiberWork[prev.ID()]; ok {
		// The fiber that resumed us may leave the scheduler entirely, so a
		// sleeping worker has to hear about the requeue.
		s.readyFibers.Push(prev)
		s.cond.Signal()
	} else {
		s.finished.Push(prev)
	}

	if s.quiescentLocked() {
		s.quiet.Broadcast()
	}
}

// nextFiberLocked returns something to switch into: a ready fiber, a pooled
// one, or a brand-new fiber whose proc finalizes its predecessor and enters
// the worker loop. The three-tier fallback is what lets a suspending fiber
// always find a successor.
func (s *Scheduler) nextFiberLocked() *fiber.Fiber {
	if s.readyFibers.Len() > 0 {
		return s.readyFibers.Pop()
	}
	if s.finished.Len() > 0 {
		return s.finished.Pop()
	}

	s.wg.Add(1)
	return fiber.New(func(self, from *fiber.Fiber) {
		defer s.wg.Done()
		if s.rec != nil {
			s.rec.SwitchContext(from.ID(), self.ID())
		}
		s.mu.Lock()
		s.handleSuspendedLocked(from)
		s.mu.Unlock()
		s.fiberRoutine(self)
	})
}

// nextLocked is the worker loop's "give me something to do" query. Order is
// governed by the policy; the default starts new work before resuming ready
// fibers.
func (s *Scheduler) nextLocked() (*work, *fiber.Fiber) {
	if s.policy == PreferReadyFibers {
		if s.readyFibers.Len() > 0 {
			s.suspending++
			return nil, s.readyFibers.Pop()
		}
		if s.newWork.Len() > 0 {
			return s.newWork.Pop(), nil
		}
		return nil, nil
	}

	if s.newWork.Len() > 0 {
		return s.newWork.Pop(), nil
	}
	if s.readyFibers.Len() > 0 {
		s.suspending++
		return nil, s.readyFibers.Pop()
	}
	return nil, nil
}

func (s *Scheduler) quiescentLocked() bool {
	return len(s.currentWork) == 0 &&
		len(s.fiberWork) == 0 &&
		len(s.dependencies) == 0 &&
		s.newWork.Len() == 0 &&
		s.readyFibers.Len() == 0 &&
		s.suspending == 0
}
