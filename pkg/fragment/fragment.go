// Package fragment defines the immutable unit of recorded context and its
// content-addressed hashing rules.
package fragment

import (
	"time"
)

// ContentType identifies the kind of context a fragment carries.
type ContentType string

const (
	// TypeConversationalTurn is a single message exchanged with the model.
	TypeConversationalTurn ContentType = "conversational-turn"

	// TypeFileSnapshot is the captured contents of a file at a point in time.
	TypeFileSnapshot ContentType = "file-snapshot"

	// TypeEnvironmentState is a snapshot of the agent's environment.
	TypeEnvironmentState ContentType = "environment-state"

	// TypeDerivedSummary is model-generated summary content fed back in.
	TypeDerivedSummary ContentType = "derived-summary"
)

// Tag is an importance flag attached to a fragment at creation time.
type Tag string

const (
	// TagUserMarked marks content the user explicitly pinned.
	TagUserMarked Tag = "user-marked"

	// TagError marks content recording a failure.
	TagError Tag = "error"

	// TagCode marks content containing source code.
	TagCode Tag = "code"

	// TagQuestion marks content containing a direct question.
	TagQuestion Tag = "question"
)

// BytesPerToken is the deterministic token approximation used by every
// component: one token per four bytes of content.
const BytesPerToken = 4

// Fragment is an immutable unit of context produced by the event log.
// Only reference counts and tier location of its stored entry change over
// its life; the fragment itself is never mutated.
type Fragment struct {
	// RawContent is the opaque payload as produced by the collaborator.
	RawContent []byte `json:"raw_content"`

	// ContentType identifies the kind of content.
	ContentType ContentType `json:"content_type"`

	// CreatedAt is when the fragment was recorded.
	CreatedAt time.Time `json:"created_at"`

	// Tags holds the importance flags set at creation.
	Tags []Tag `json:"tags,omitempty"`
}

// Meta contains optional fragment attributes supplied at construction.
type Meta struct {
	CreatedAt time.Time
	Tags      []Tag
}

// New creates a fragment for the given content and type. The optional Meta
// parameter sets the creation time and importance tags; when omitted the
// fragment is stamped with the current time and carries no tags.
func New(content []byte, contentType ContentType, metas ...Meta) *Fragment {
	f := &Fragment{
		RawContent:  content,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}

	if len(metas) > 0 {
		if !metas[0].CreatedAt.IsZero() {
			f.CreatedAt = metas[0].CreatedAt
		}
		f.Tags = metas[0].Tags
	}

	return f
}

// HasTag reports whether the fragment carries the given importance tag.
func (f *Fragment) HasTag(t Tag) bool {
	for _, tag := range f.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

// TokenCount approximates the token cost of the raw content.
func (f *Fragment) TokenCount() int {
	return TokenEstimate(len(f.RawContent))
}

// Normalized returns the canonical bytes used for hashing and storage.
func (f *Fragment) Normalized() []byte {
	return Normalize(f.RawContent)
}

// Hash returns the content-addressed identifier for the fragment.
func (f *Fragment) Hash() string {
	return HashContent(f.Normalized())
}

// TokenEstimate converts a byte length into an approximate token count.
func TokenEstimate(byteLen int) int {
	if byteLen <= 0 {
		return 0
	}
	return byteLen / BytesPerToken
}

// ValidContentType reports whether s names a known content type.
func ValidContentType(s string) bool {
	switch ContentType(s) {
	case TypeConversationalTurn, TypeFileSnapshot, TypeEnvironmentState, TypeDerivedSummary:
		return true
	}
	return false
}

// ValidTag reports whether s names a known importance tag.
func ValidTag(s string) bool {
	switch Tag(s) {
	case TagUserMarked, TagError, TagCode, TagQuestion:
		return true
	}
	return false
}
