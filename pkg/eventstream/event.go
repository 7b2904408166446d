package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeFragmentStored is emitted after a fragment is stored.
	EventTypeFragmentStored = "engram.fragment.stored"

	// EventTypeTierMigrated is emitted after a tier migration cycle completes.
	EventTypeTierMigrated = "engram.tier.migrated"

	// EventTypeEntryDeleted is emitted after a fragment reference is released.
	EventTypeEntryDeleted = "engram.entry.deleted"
)

// Header carries the fields common to every event payload.
type Header struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
}

// EventSource identifies the engine instance the event originated from.
type EventSource struct {
	Project string `json:"project,omitempty"`
	Session string `json:"session,omitempty"`
}

// FragmentStoredEvent is a transport-neutral event payload for a stored fragment.
type FragmentStoredEvent struct {
	Header
	Fragment FragmentMeta `json:"fragment"`
}

// FragmentMeta captures storage metadata for the stored fragment.
type FragmentMeta struct {
	Hash         string   `json:"hash"`
	ContentType  string   `json:"content_type"`
	Tags         []string `json:"tags,omitempty"`
	TokenCount   int      `json:"token_count"`
	Tier         string   `json:"tier"`
	RefCount     int      `json:"ref_count"`
	Deduplicated bool     `json:"deduplicated"`
}

// TierMigratedEvent is a transport-neutral event payload for a completed
// migration cycle.
type TierMigratedEvent struct {
	Header
	Migration MigrationMeta `json:"migration"`
}

// MigrationMeta captures the outcome of one migration cycle.
type MigrationMeta struct {
	HotToWarm      int   `json:"hot_to_warm"`
	WarmToCold     int   `json:"warm_to_cold"`
	Reindexed      int   `json:"reindexed"`
	Deleted        int   `json:"deleted"`
	BytesReclaimed int64 `json:"bytes_reclaimed"`
	DurationMs     int64 `json:"duration_ms"`
}

// EntryDeletedEvent is a transport-neutral event payload for a released
// fragment reference.
type EntryDeletedEvent struct {
	Header
	Deletion DeletionMeta `json:"deletion"`
}

// DeletionMeta captures the reference state after a release.
type DeletionMeta struct {
	Hash          string `json:"hash"`
	Tier          string `json:"tier"`
	RemainingRefs int    `json:"remaining_refs"`
}

// NewHeader stamps a fresh header for the given event type.
func NewHeader(eventType string, source EventSource) Header {
	return Header{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.New().String(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
	}
}

// NewFragmentStoredEvent builds a fragment.stored event for the given metadata.
func NewFragmentStoredEvent(source EventSource, meta FragmentMeta) *FragmentStoredEvent {
	return &FragmentStoredEvent{
		Header:   NewHeader(EventTypeFragmentStored, source),
		Fragment: meta,
	}
}

// NewTierMigratedEvent builds a tier.migrated event for the given cycle outcome.
func NewTierMigratedEvent(source EventSource, meta MigrationMeta) *TierMigratedEvent {
	return &TierMigratedEvent{
		Header:    NewHeader(EventTypeTierMigrated, source),
		Migration: meta,
	}
}

// NewEntryDeletedEvent builds an entry.deleted event for the given release.
func NewEntryDeletedEvent(source EventSource, meta DeletionMeta) *EntryDeletedEvent {
	return &EntryDeletedEvent{
		Header:   NewHeader(EventTypeEntryDeleted, source),
		Deletion: meta,
	}
}
