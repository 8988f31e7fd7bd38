package stopwatch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ostrem/weft/pkg/fiber"
	"github.com/ostrem/weft/pkg/sched"
	"github.com/ostrem/weft/pkg/stopwatch"
)

func TestStopwatch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stopwatch Suite")
}

var _ = Describe("Recorder", func() {
	var r *stopwatch.Recorder

	BeforeEach(func() {
		r = stopwatch.NewRecorder()
	})

	It("brackets a span with begin and end events on the fiber's lane", func() {
		sp := r.Begin(fiber.ID(7), "load")
		sp.Stop()

		evs := r.Events()
		Expect(evs).To(HaveLen(2))
		Expect(evs[0].Name).To(Equal("load"))
		Expect(evs[0].Ph).To(Equal("B"))
		Expect(evs[0].Tid).To(Equal(uint64(7)))
		Expect(evs[1].Name).To(Equal("load"))
		Expect(evs[1].Ph).To(Equal("E"))
		Expect(evs[1].Ts).To(BeNumerically(">=", evs[0].Ts))
	})

	It("closes nested spans innermost first", func() {
		outer := r.Begin(fiber.ID(1), "frame")
		inner := r.Begin(fiber.ID(1), "physics")
		inner.Stop()
		outer.Stop()

		phases := make([]string, 0, 4)
		for _, e := range r.Events() {
			phases = append(phases, e.Ph+":"+e.Name)
		}
		Expect(phases).To(Equal([]string{"B:frame", "B:physics", "E:physics", "E:frame"}))
	})

	It("panics when spans stop out of order", func() {
		outer := r.Begin(fiber.ID(1), "frame")
		r.Begin(fiber.ID(1), "physics")

		Expect(func() { outer.Stop() }).To(PanicWith(ContainSubstring("stopped out of order")))
	})

	It("opens spans on the fiber carried by the context", func() {
		s := sched.New(sched.WithWorkers(1))
		defer s.Close()

		ctx := s.Attach(context.Background())
		fid := sched.CurrentFiber(ctx).ID()
		r.StartSpan(ctx, "frame").Stop()

		evs := r.Events()
		Expect(evs).To(HaveLen(2))
		Expect(evs[0].Name).To(Equal("frame"))
		Expect(evs[0].Ph).To(Equal("B"))
		Expect(evs[0].Tid).To(Equal(uint64(fid)))
	})

	It("panics when the context carries no fiber", func() {
		Expect(func() { r.StartSpan(context.Background(), "frame") }).
			To(PanicWith(ContainSubstring("does not carry a fiber")))
	})

	It("suspends and resumes open spans across a fiber switch", func() {
		r.Begin(fiber.ID(1), "frame")
		r.Begin(fiber.ID(1), "render")
		r.Begin(fiber.ID(2), "upload")

		r.SwitchContext(fiber.ID(1), fiber.ID(2))

		evs := r.Events()[3:]
		Expect(evs).To(HaveLen(5))

		Expect(evs[0].Ph).To(Equal("E"))
		Expect(evs[0].Name).To(Equal("render"))
		Expect(evs[1].Ph).To(Equal("E"))
		Expect(evs[1].Name).To(Equal("frame"))

		Expect(evs[2].Ph).To(Equal("s"))
		Expect(evs[2].Tid).To(Equal(uint64(1)))
		Expect(evs[3].Ph).To(Equal("f"))
		Expect(evs[3].Tid).To(Equal(uint64(2)))
		Expect(evs[3].BP).To(Equal("e"))
		Expect(evs[3].ID).To(Equal(evs[2].ID))
		Expect(evs[3].Ts).To(Equal(evs[2].Ts))

		Expect(evs[4].Ph).To(Equal("B"))
		Expect(evs[4].Name).To(Equal("upload"))
		Expect(evs[4].Tid).To(Equal(uint64(2)))
	})

	It("gives each switch its own flow arrow", func() {
		r.SwitchContext(fiber.ID(1), fiber.ID(2))
		r.SwitchContext(fiber.ID(2), fiber.ID(1))

		evs := r.Events()
		Expect(evs).To(HaveLen(4))
		Expect(evs[0].ID).To(Equal(evs[1].ID))
		Expect(evs[2].ID).To(Equal(evs[3].ID))
		Expect(evs[2].ID).NotTo(Equal(evs[0].ID))
	})

	It("serializes recorded events as a Chrome trace array", func() {
		sp := r.Begin(fiber.ID(3), "decode")
		sp.Stop()

		var buf bytes.Buffer
		Expect(r.WriteTrace(&buf)).To(Succeed())

		var decoded []stopwatch.Event
		Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
		Expect(decoded).To(HaveLen(2))
		Expect(decoded[0].Name).To(Equal("decode"))
		Expect(decoded[0].Ph).To(Equal("B"))
	})

	It("plugs into a scheduler as its switch recorder", func() {
		s := sched.New(sched.WithWorkers(1), sched.WithRecorder(r))
		defer s.Close()

		ctx := s.Attach(context.Background())
		a := sched.Start(ctx, func(wctx context.Context) int {
			b := sched.Start(wctx, func(context.Context) int { return 21 })
			return 2 * b.Await(wctx)
		})
		Expect(a.Await(ctx)).To(Equal(42))

		var flows int
		for _, e := range r.Events() {
			if e.Ph == "s" {
				flows++
			}
		}
		Expect(flows).To(BeNumerically(">", 0))
	})
})
