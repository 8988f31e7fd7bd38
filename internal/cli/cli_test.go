package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCLI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CLI Suite")
}

func run(args ...string) (string, error) {
	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

var _ = Describe("weft commands", func() {
	It("runs the demo workload to completion", func() {
		out, err := run("demo", "--bundles", "2", "--pieces", "3", "--spin", "1000", "--workers", "2")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("weft demo"))
		Expect(strings.Count(out, "done")).To(Equal(2))
		Expect(out).To(ContainSubstring("total:"))
	})

	It("measures throughput across producers", func() {
		out, err := run("bench", "--units", "60", "--spin", "100", "--producers", "2", "--workers", "2")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("weft bench"))
		Expect(out).To(ContainSubstring("producers=2"))
		Expect(out).To(ContainSubstring("units/s"))
	})

	It("rejects a producer count below one", func() {
		_, err := run("bench", "--producers", "0", "--units", "1")
		Expect(err).To(MatchError(ContainSubstring("producers")))
	})

	It("captures a Chrome trace of the frame loop", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace.json")
		out, err := run("trace", "--frames", "3", "--spin", "1000", "--workers", "1", "--trace-file", path)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("trace events"))

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		var events []map[string]any
		Expect(json.Unmarshal(data, &events)).To(Succeed())
		Expect(events).NotTo(BeEmpty())

		phases := map[string]bool{}
		for _, e := range events {
			if ph, ok := e["ph"].(string); ok {
				phases[ph] = true
			}
		}
		Expect(phases).To(HaveKey("B"))
		Expect(phases).To(HaveKey("E"))
		Expect(phases).To(HaveKey("s"))
	})

	It("rejects an unknown policy", func() {
		_, err := run("bench", "--policy", "sideways", "--units", "1")
		Expect(err).To(MatchError(ContainSubstring("policy")))
	})
})
