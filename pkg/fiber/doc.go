// Package fiber provides cooperatively-scheduled execution contexts built on
// goroutines and rendezvous channels.
//
// A Fiber pairs a goroutine with an unbuffered "gate" channel. A parked fiber
// is a goroutine blocked receiving on its own gate; resuming it means sending
// on that gate. Because the gate is unbuffered, every switch is a rendezvous:
// exactly one goroutine parks and exactly one unparks, so the number of
// runnable contexts is conserved across a switch.
//
//	            g.Switch(to)
//	   ┌─────────────────────────────┐
//	   │ running g                   │
//	   │   to.gate <- g   ───────────┼──► to unparks, sees g as predecessor
//	   │   <-g.gate       (parks)    │
//	   │                             │
//	   │ ... later, someone switches │
//	   │ back to g ──────────────────┼──► Switch returns that predecessor
//	   └─────────────────────────────┘
//
// The value carried through the gate is the predecessor fiber: the context
// that was active immediately before the resume. Callers use it to finalize
// the suspended fiber's bookkeeping after every switch.
//
// Fibers are created two ways:
//
//   - New spawns a goroutine that parks until first resumed, then runs the
//     supplied proc with its predecessor.
//   - Adopt converts the calling goroutine into a fiber so it can take part
//     in switches. The adopter is already running, so it parks only when it
//     switches away.
//
// The package knows nothing about work, dependencies, or scheduling policy;
// that lives in pkg/sched.
package fiber
