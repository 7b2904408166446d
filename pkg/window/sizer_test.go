package window

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/fragment"
)

// every indicator at once: a long message with a code fence, error
// markers, technical vocabulary, and a question mark.
var loadedText = strings.Repeat("x", 1100) +
	"\n```go\nfunc main() {}\n```\npanic: the goroutine failed, why?"

func loadedFragments(n int) []*fragment.Fragment {
	frags := make([]*fragment.Fragment, n)
	for i := range frags {
		frags[i] = fragment.New([]byte(loadedText), fragment.TypeConversationalTurn)
	}
	return frags
}

func plainFragments(n int) []*fragment.Fragment {
	frags := make([]*fragment.Fragment, n)
	for i := range frags {
		frags[i] = fragment.New([]byte("nice weather today"), fragment.TypeConversationalTurn)
	}
	return frags
}

var _ = Describe("Complexity", func() {
	It("should score an empty history as zero", func() {
		Expect(Complexity(nil)).To(BeZero())
	})

	It("should score plain conversation as zero", func() {
		Expect(Complexity(plainFragments(5))).To(BeZero())
	})

	It("should score fully loaded fragments as one", func() {
		Expect(Complexity(loadedFragments(5))).To(BeNumerically("==", 1.0))
	})

	It("should average across the considered fragments", func() {
		mixed := append(plainFragments(1), loadedFragments(1)...)
		Expect(Complexity(mixed)).To(BeNumerically("~", 0.5, 0.001))
	})

	It("should only consider the most recent ten fragments", func() {
		history := append(loadedFragments(20), plainFragments(10)...)
		Expect(Complexity(history)).To(BeZero())
	})
})

var _ = Describe("RecommendBudget", func() {
	DescribeTable("stepping toward the target",
		func(recent []*fragment.Fragment, base int, multiplier float64, prev, expected int) {
			Expect(RecommendBudget(recent, base, multiplier, prev)).To(Equal(expected))
		},
		Entry("idle history shrinks by at most a quarter step", plainFragments(5), 1000, 1.0, 1000, 750),
		Entry("idle history settles at half the base", plainFragments(5), 1000, 1.0, 750, 500),
		Entry("idle history never shrinks below half", plainFragments(5), 1000, 1.0, 500, 500),
		Entry("complex history grows by at most a quarter step", loadedFragments(5), 1000, 1.0, 1000, 1250),
		Entry("complex history keeps stepping toward three times the base", loadedFragments(5), 1000, 1.0, 2900, 3000),
		Entry("multiplier raises the ceiling but the clamp holds", loadedFragments(5), 1000, 2.0, 3900, 4000),
		Entry("zero previous budget starts from the base", plainFragments(5), 1000, 1.0, 0, 750),
		Entry("non-positive multiplier defaults to one", plainFragments(5), 1000, -1.0, 1000, 750),
	)

	It("should return the previous budget when the base is not positive", func() {
		Expect(RecommendBudget(nil, 0, 1.0, 1234)).To(Equal(1234))
	})

	It("should converge on the clamped target after enough cycles", func() {
		budget := 1000
		for range 12 {
			budget = RecommendBudget(loadedFragments(5), 1000, 1.0, budget)
		}
		Expect(budget).To(Equal(3000))
	})
})
