// Package stopwatch records named spans of fiber execution and emits them in
// the Chrome trace event format (chrome://tracing, Perfetto).
//
// Each fiber carries a stack of open spans. When the scheduler switches
// fibers, the recorder closes the suspended fiber's open spans and reopens
// the resumed fiber's, joining the two sides with a flow event. The result
// is a trace where each fiber is a lane showing only its actual on-fiber
// time, with arrows following execution across lanes.
package stopwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ostrem/weft/pkg/fiber"
	"github.com/ostrem/weft/pkg/sched"
)

// Event is one Chrome trace event. Ph is the phase: "B"/"E" bracket a span,
// "s"/"f" are the start and finish of a flow arrow.
type Event struct {
	Name string `json:"name"`
	Cat  string `json:"cat,omitempty"`
	Ph   string `json:"ph"`
	Ts   int64  `json:"ts"`
	Pid  int    `json:"pid"`
	Tid  uint64 `json:"tid"`
	ID   uint64 `json:"id,omitempty"`
	BP   string `json:"bp,omitempty"`
}

// Recorder collects events from any number of fibers. It satisfies
// sched.SwitchRecorder, so it can be wired into a scheduler with
// sched.WithRecorder. The zero value is not usable; call NewRecorder.
type Recorder struct {
	mu     sync.Mutex
	start  time.Time
	pid    int
	events []Event
	stacks map[fiber.ID][]string
	flow   uint64
}

func NewRecorder() *Recorder {
	return &Recorder{
		start:  time.Now(),
		pid:    os.Getpid(),
		stacks: make(map[fiber.ID][]string),
	}
}

// Span is an open interval on one fiber's stack. Spans on the same fiber
// must stop in LIFO order.
type Span struct {
	r    *Recorder
	fid  fiber.ID
	name string
}

// Begin opens a named span on fid's stack and returns it.
func (r *Recorder) Begin(fid fiber.ID, name string) Span {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stacks[fid] = append(r.stacks[fid], name)
	r.emit(Event{Name: name, Ph: "B", Ts: r.since(), Pid: r.pid, Tid: uint64(fid)})
	return Span{r: r, fid: fid, name: name}
}

// StartSpan opens a named span on the fiber carried by ctx. It is the
// ctx-level form of Begin for code running inside Attach or started work.
func (r *Recorder) StartSpan(ctx context.Context, name string) Span {
	f := sched.CurrentFiber(ctx)
	if f == nil {
		panic("stopwatch: context does not carry a fiber; use Scheduler.Attach or run inside started work")
	}
	return r.Begin(f.ID(), name)
}

// Stop closes the span.
func (sp Span) Stop() {
	r := sp.r
	r.mu.Lock()
	defer r.mu.Unlock()

	stack := r.stacks[sp.fid]
	if len(stack) == 0 || stack[len(stack)-1] != sp.name {
		panic(fmt.Sprintf("stopwatch: span %q stopped out of order on fiber %d", sp.name, sp.fid))
	}
	r.stacks[sp.fid] = stack[:len(stack)-1]
	r.emit(Event{Name: sp.name, Ph: "E", Ts: r.since(), Pid: r.pid, Tid: uint64(sp.fid)})
}

// SwitchContext records a fiber switch: from was suspended, to is now
// active. The suspended fiber's open spans are closed in the trace and the
// resumed fiber's are reopened, so suspension shows up as a gap in the
// fiber's lane. A flow arrow links the two sides of the switch.
func (r *Recorder) SwitchContext(from, to fiber.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.since()

	out := r.stacks[from]
	for i := len(out) - 1; i >= 0; i-- {
		r.emit(Event{Name: out[i], Ph: "E", Ts: ts, Pid: r.pid, Tid: uint64(from)})
	}

	r.flow++
	r.emit(Event{Name: "switch", Cat: "fiber", Ph: "s", Ts: ts, Pid: r.pid, Tid: uint64(from), ID: r.flow})
	r.emit(Event{Name: "switch", Cat: "fiber", Ph: "f", BP: "e", Ts: ts, Pid: r.pid, Tid: uint64(to), ID: r.flow})

	in := r.stacks[to]
	for _, name := range in {
		r.emit(Event{Name: name, Ph: "B", Ts: ts, Pid: r.pid, Tid: uint64(to)})
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// WriteTrace serializes the recorded events as a Chrome trace JSON array.
func (r *Recorder) WriteTrace(w io.Writer) error {
	events := r.Events()

	enc := json.NewEncoder(w)
	if err := enc.Encode(events); err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	return nil
}

func (r *Recorder) since() int64 {
	return time.Since(r.start).Microseconds()
}

func (r *Recorder) emit(e Event) {
	r.events = append(r.events, e)
}
