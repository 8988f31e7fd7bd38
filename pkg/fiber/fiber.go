package fiber

import (
	"fmt"
	"sync/atomic"
)

var idCounter atomic.Uint64

// ID identifies a fiber for the lifetime of the process. IDs are assigned
// from an atomic counter starting at one; zero is never a valid ID and no
// value is ever reused.
type ID uint64

// Proc is the body of a created fiber. It receives the fiber itself and the
// fiber that was active immediately before the first resume. A Proc normally
// never returns; returning ends the fiber's goroutine.
type Proc func(self, resumedFrom *Fiber)

// Fiber is one cooperatively-scheduled execution context.
type Fiber struct {
	id   ID
	gate chan *Fiber
}

// New creates a fiber whose goroutine stays parked until first resumed via
// Switch. On first resume, proc runs with the resuming fiber as resumedFrom.
func New(proc Proc) *Fiber {
	f := &Fiber{
		id:   ID(idCounter.Add(1)),
		gate: make(chan *Fiber),
	}
	go func() {
		from := <-f.gate
		proc(f, from)
	}()
	return f
}

// Adopt converts the calling goroutine into a fiber. The returned fiber is
// considered running; it parks the goroutine only when it switches away.
// Each goroutine must adopt at most once.
func Adopt() *Fiber {
	return &Fiber{
		id:   ID(idCounter.Add(1)),
		gate: make(chan *Fiber),
	}
}

// Switch suspends the calling fiber g and runs to. It returns when something
// later resumes g, and the return value is the fiber that was active
// immediately before that resume. A nil return means g was released via
// Release rather than resumed by another fiber.
//
// Switch must be called from the goroutine that owns g.
func (g *Fiber) Switch(to *Fiber) *Fiber {
	if to == nil {
		panic("fiber: switch to nil fiber")
	}
	if to == g {
		panic(fmt.Sprintf("fiber: %v cannot switch to itself", g))
	}
	to.gate <- g
	return <-g.gate
}

// Release unparks a suspended fiber without handing it a predecessor: its
// pending Switch returns nil. Used to unwind pooled fibers at teardown.
func (f *Fiber) Release() {
	f.gate <- nil
}

// ID returns the fiber's process-unique identity.
func (f *Fiber) ID() ID {
	return f.id
}

func (f *Fiber) String() string {
	return fmt.Sprintf("fiber-%d", f.id)
}
