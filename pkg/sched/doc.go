// Package sched implements a cooperative task scheduler over fibers.
//
// Work submitted with Start is executed by a pool of fibers (pkg/fiber:
// goroutines switched through rendezvous channels). A fiber that awaits the
// result of other work suspends and hands its execution context to a ready
// fiber, a pooled one, or a brand-new one; it resumes once the last of its
// dependencies finishes. Suspension is always voluntary: Await, AwaitAll,
// and Suspend are the only points where a fiber gives up control.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                            Scheduler                                │
//	│                     (one mutex + one condvar)                       │
//	│                                                                     │
//	│  currentWork   {W1, W2, W4}          in-flight work ids             │
//	│  newWork       [work4]               submitted, not yet picked up   │
//	│  fiberWork     {F2→W1, F5→W2}        who is running what            │
//	│  dependencies  {F3→(handle, {W2})}   suspended, waiting on work     │
//	│  readyFibers   [F7]                  suspended, nothing left to wait │
//	│  finished      [F4, F6]              idle stacks kept for reuse     │
//	│                                                                     │
//	│        ▲                ▲                    ▲                      │
//	│        │ Start          │ Await/AwaitAll     │ Suspend              │
//	└────────┼────────────────┼────────────────────┼──────────────────────┘
//	         │                │                    │
//	     application fibers and worker fibers (pkg/fiber)
//
// Every fiber the scheduler knows about is, at any instant, in exactly one
// place: actively running, in readyFibers, in dependencies, or in finished.
// A fiber in two places at once is a bug and panics.
//
// # Execution Flow
//
//  1. Start(ctx, fn) assigns a fresh WorkID, wraps fn so its value lands in
//     a capacity-1 channel, queues the work, and wakes one sleeping worker.
//  2. A worker fiber picks the work: it records itself in fiberWork, runs
//     the closure outside the lock, then retires the id.
//  3. Await on the handle either returns at once (work already finished) or
//     registers a dependency and suspends the calling fiber.
//  4. When the last dependency of a suspended fiber finishes, the fiber
//     moves to readyFibers and one sleeper is woken to resume it.
//  5. The non-blocking receive inside Await then yields the result: the
//     closure sends before the id is retired, so the value is always there.
//
// # Suspension
//
// A suspending fiber picks its successor while holding the lock, releases
// the lock, and only then performs the switch; the lock is never held
// across a switch. The successor is a ready fiber if one exists, else a
// pooled finished fiber, else a brand-new fiber that enters the worker loop.
// Whoever gains control finalizes the fiber that was just switched away
// from: fill in the handle of its dependency entry, requeue it as ready if
// it still has assigned work, or return it to the reuse pool.
//
// The dependency entry's handle starts out empty and is only filled once
// the fiber has fully parked. Work that finishes in between does not ready
// a half-parked fiber: the emptied entry stays put, and whoever fills in
// the handle readies the fiber on the spot. Symmetrically, Await checks for
// completion and registers the dependency under one lock acquisition, so a
// finish can never slip between "is it done?" and "wait for it".
//
// # The Worker Loop
//
// Idle fibers all converge on the same loop: take new work if any, else
// resume a ready fiber, else sleep on the condition variable until either
// appears. Wakeups are always Signal, one per queued unit or readied fiber,
// never Broadcast. Which branch wins when both queues are non-empty is the
// scheduler's Policy: by default new work goes first; PreferReadyFibers
// inverts the order so that resumed fibers are not starved by a continuous
// stream of submissions.
//
// # Error Handling
//
// There are no recoverable errors. Every detectable misuse or bookkeeping
// violation (double-scheduled id, double-consumed Async, a fiber in two
// places, a missing result) panics with the offending work id or fiber in
// the message. Expected conditions, like awaiting work that already
// finished, are ordinary control flow.
//
// # Shutdown
//
// Close waits until the scheduler is quiescent (no queued, running, or
// awaited work and no switch in flight), then stops the worker loops and
// unwinds the pooled fibers. Fibers parked in the reuse pool are resumed
// one final time so their callers can unwind; a Suspend that races with
// Close returns without yielding. Every goroutine the scheduler spawned
// has exited by the time Close returns, which keeps goroutine-leak checks
// in tests honest. Schedulers are independent instances; tests run several
// side by side.
//
// # Usage
//
//	s := sched.New(sched.WithWorkers(4))
//	defer s.Close()
//
//	ctx := s.Attach(context.Background())
//
//	a := sched.Start(ctx, func(ctx context.Context) int {
//	    b := sched.Start(ctx, func(context.Context) int { return 21 })
//	    return 2 * b.Await(ctx)
//	})
//	fmt.Println(a.Await(ctx)) // 42
//
// Borrowed data is safe inside a Scope, which waits for any work the
// closure did not explicitly await or forget:
//
//	buf := make([]byte, 1024)
//	_ = s.Scope(ctx, func(ctx context.Context) error {
//	    sched.Start(ctx, func(context.Context) int { return fill(buf) })
//	    return nil
//	}) // buf is not touched after Scope returns
package sched
