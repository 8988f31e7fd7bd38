package sched

import (
	"context"
	"sync/atomic"

	"github.com/ostrem/weft/pkg/fiber"
)

var workCounter atomic.Uint64

// WorkID names one pending or in-flight unit of asynchronous work. IDs come
// from an atomic counter starting at one; zero is never issued and no value
// is ever reused for the lifetime of the process.
type WorkID uint64

func newID() WorkID {
	return WorkID(workCounter.Add(1))
}

// Await suspends the calling fiber until this work unit has completed. If
// the work already finished, Await returns immediately without suspending.
// The check and the dependency registration happen under one lock
// acquisition, so a completion can never slip between them.
func (id WorkID) Await(ctx context.Context) {
	s := FromContext(ctx)
	self := mustFiber(ctx)
	if s.addDependency(self, id) {
		s.park(self)
	}
}

// work is a one-shot closure plus its id. It is consumed exactly once by the
// fiber that dequeues it; only the id survives in the scheduler's bookkeeping.
type work struct {
	id WorkID
	fn func(context.Context)
}

// Policy selects what next() hands a worker first when both new work and
// ready fibers are available.
type Policy string

const (
	// PreferNewWork hands out queued work before resuming ready fibers.
	// Under a continuous stream of submissions, ready fibers can wait
	// indefinitely.
	PreferNewWork Policy = "new-work-first"

	// PreferReadyFibers resumes ready fibers before starting queued work,
	// bounding how long a fiber with resolved dependencies can sit behind
	// a stream of new submissions.
	PreferReadyFibers Policy = "ready-fibers-first"
)

// SwitchRecorder observes fiber context switches. The scheduler reports
// every switch landing as (suspended, nowActive); pkg/stopwatch provides a
// Chrome-trace implementation.
type SwitchRecorder interface {
	SwitchContext(from, to fiber.ID)
}
