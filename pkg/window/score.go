package window

import (
	"math"
	"time"

	"github.com/papercomputeco/engram/pkg/fragment"
)

// recencyHalfLife is how long it takes the recency term to halve.
const recencyHalfLife = 24 * time.Hour

const (
	recencyWeight = 0.3
	queryWeight   = 0.4
)

// tagBonuses are summed when a fragment carries multiple flags.
var tagBonuses = map[fragment.Tag]float64{
	fragment.TagUserMarked: 0.8,
	fragment.TagError:      0.6,
	fragment.TagCode:       0.4,
	fragment.TagQuestion:   0.2,
}

// typeBiases nudge scores by content kind.
var typeBiases = map[fragment.ContentType]float64{
	fragment.TypeConversationalTurn: 0.05,
	fragment.TypeDerivedSummary:     0.04,
	fragment.TypeFileSnapshot:       0.02,
	fragment.TypeEnvironmentState:   0.01,
}

// Relevance scores an item at the given instant. The score combines
// recency decay, importance-tag bonuses, similarity to the active query,
// and a content-type bias, clipped to [0, 1].
func Relevance(createdAt, now time.Time, tags []fragment.Tag, contentType fragment.ContentType, querySim float64) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-float64(age) / float64(recencyHalfLife))

	score := recencyWeight*recency + queryWeight*querySim + typeBiases[contentType]
	for _, tag := range tags {
		score += tagBonuses[tag]
	}
	return clip01(score)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
