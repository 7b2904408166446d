// Package contentstore provides content-addressed, deduplicated storage of
// fragments with reference counting and hot/warm/cold tier placement.
package contentstore

import (
	"time"

	"github.com/papercomputeco/engram/pkg/fragment"
)

// Tier is a storage tier.
type Tier string

const (
	// TierHot holds recently stored entries, raw or lightly compressed.
	TierHot Tier = "hot"

	// TierWarm holds aging entries, compressed at the default level.
	TierWarm Tier = "warm"

	// TierCold holds old entries, compressed at the maximum level.
	TierCold Tier = "cold"
)

// Compression identifies how an entry's payload is encoded at rest.
type Compression string

const (
	// CompressionNone stores the payload raw.
	CompressionNone Compression = "none"

	// CompressionZstd is the default zstd level, used for Hot and Warm.
	CompressionZstd Compression = "zstd"

	// CompressionZstdMax is the best-ratio zstd level, used for Cold.
	CompressionZstdMax Compression = "zstd-max"
)

// Entry is the stored record for one content hash. The payload is either
// the (possibly compressed) normalized content, or a compressed structural
// delta against BaseHash when the entry was stored incrementally.
type Entry struct {
	// Hash is the content-addressed identifier.
	Hash string `json:"hash"`

	// Payload is the bytes at rest.
	Payload []byte `json:"payload"`

	// OriginalSize is the normalized content length before compression.
	OriginalSize int64 `json:"original_size"`

	// Compression is the payload encoding.
	Compression Compression `json:"compression"`

	// Tier is the current storage tier.
	Tier Tier `json:"tier"`

	// BaseHash points at the entry this payload is a delta against.
	// Nil for full entries.
	BaseHash *string `json:"base_hash,omitempty"`

	// ReferenceCount tracks how many live references cite this entry.
	// Never negative; zero makes the entry eligible for grace-period GC.
	ReferenceCount int `json:"reference_count"`

	// ContentType is the kind of content stored.
	ContentType fragment.ContentType `json:"content_type"`

	// Tags carries the importance flags from the first fragment stored
	// under this hash. The tier manager's preservation rules read them.
	Tags []fragment.Tag `json:"tags,omitempty"`

	// CreatedAt is when the entry was first stored.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessed is updated on every read and drives eviction order.
	LastAccessed time.Time `json:"last_accessed"`

	// ReleasedAt is set when ReferenceCount drops to zero and cleared
	// when a new reference arrives. GC deletes only after the grace
	// period past this instant.
	ReleasedAt *time.Time `json:"released_at,omitempty"`

	// Quarantined marks an entry whose payload failed its integrity
	// check. Quarantined entries are never served.
	Quarantined bool `json:"quarantined"`
}

// HasTag reports whether the entry carries the given importance tag.
func (e *Entry) HasTag(t fragment.Tag) bool {
	for _, tag := range e.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

// Age returns the entry's age relative to now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Clone returns a deep copy so drivers can hand out entries without
// aliasing their internal state.
func (e *Entry) Clone() *Entry {
	out := *e

	out.Payload = make([]byte, len(e.Payload))
	copy(out.Payload, e.Payload)

	if e.Tags != nil {
		out.Tags = make([]fragment.Tag, len(e.Tags))
		copy(out.Tags, e.Tags)
	}

	if e.BaseHash != nil {
		base := *e.BaseHash
		out.BaseHash = &base
	}

	if e.ReleasedAt != nil {
		released := *e.ReleasedAt
		out.ReleasedAt = &released
	}

	return &out
}
