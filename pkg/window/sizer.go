package window

import (
	"strings"

	"github.com/papercomputeco/engram/pkg/fragment"
)

const (
	// complexityWindow is how many recent fragments inform the score.
	complexityWindow = 10

	// longMessageBytes is the length past which a message counts as long.
	longMessageBytes = 1024
)

var codeMarkers = []string{"```", "func ", "def ", "class "}

var errorMarkers = []string{"error", "panic", "exception", "traceback", "failed"}

var technicalTerms = []string{
	"goroutine", "mutex", "database", "compiler", "algorithm",
	"latency", "schema", "concurrency", "pointer", "regex",
	"buffer", "kernel",
}

// RecommendBudget derives a window token budget from recent conversational
// complexity. The target is base * taskMultiplier * (0.5 + complexity * 2.5)
// clamped to [base/2, base*4]; the move from prev toward the target is
// capped at base/4 per call to keep the window from oscillating.
func RecommendBudget(recent []*fragment.Fragment, base int, taskMultiplier float64, prev int) int {
	if base <= 0 {
		return prev
	}
	if taskMultiplier <= 0 {
		taskMultiplier = 1
	}
	if prev <= 0 {
		prev = base
	}

	target := int(float64(base) * taskMultiplier * (0.5 + Complexity(recent)*2.5))

	if minBudget := base / 2; target < minBudget {
		target = minBudget
	}
	if maxBudget := base * 4; target > maxBudget {
		target = maxBudget
	}

	step := base / 4
	switch {
	case target > prev+step:
		return prev + step
	case target < prev-step:
		return prev - step
	default:
		return target
	}
}

// Complexity scores the last few fragments in [0, 1] by counting
// complexity indicators: code blocks, error markers, long messages,
// technical vocabulary, and question marks.
func Complexity(recent []*fragment.Fragment) float64 {
	if len(recent) > complexityWindow {
		recent = recent[len(recent)-complexityWindow:]
	}
	if len(recent) == 0 {
		return 0
	}

	indicators := 0
	for _, frag := range recent {
		text := string(frag.RawContent)
		lower := strings.ToLower(text)

		if containsAny(text, codeMarkers) {
			indicators++
		}
		if containsAny(lower, errorMarkers) {
			indicators++
		}
		if len(frag.RawContent) > longMessageBytes {
			indicators++
		}
		if containsAny(lower, technicalTerms) {
			indicators++
		}
		if strings.Contains(text, "?") {
			indicators++
		}
	}

	return float64(indicators) / float64(5*len(recent))
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
