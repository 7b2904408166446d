// Package window maintains the bounded, relevance-ordered set of fragments
// assembled into each model prompt.
package window

import (
	"time"

	"github.com/papercomputeco/engram/pkg/fragment"
)

// Item is a fragment admitted into the context window. It references its
// stored entry by hash and never duplicates the entry's bytes; content is
// fetched from the store only when a prompt is rendered.
type Item struct {
	// Hash identifies the stored entry backing this item.
	Hash string

	// ContentType is the fragment's kind.
	ContentType fragment.ContentType

	// Tags holds the fragment's importance flags.
	Tags []fragment.Tag

	// CreatedAt is when the fragment was recorded, used for recency decay.
	CreatedAt time.Time

	// AdmittedAt is when the item entered the window.
	AdmittedAt time.Time

	// TokenCount approximates the item's prompt cost.
	TokenCount int

	// Relevance is the score from the most recent scoring pass.
	Relevance float64

	// seq orders admissions for deterministic tie-breaking.
	seq uint64
}

// HasTag reports whether the item carries the given importance tag.
func (i *Item) HasTag(t fragment.Tag) bool {
	for _, tag := range i.Tags {
		if tag == t {
			return true
		}
	}
	return false
}
