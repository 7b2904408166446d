package contentstore

import (
	"context"
	"time"
)

// Driver defines the interface for persisting and retrieving entries in a
// storage backend. The Driver handles raw record access; deduplication,
// compression, and integrity checking live in Store on top of it.
type Driver interface {
	// Put stores an entry. Returns true if the entry was newly inserted,
	// false if the hash already exists. If the hash already exists, this
	// is a no-op: content-addressing makes inserts idempotent.
	Put(ctx context.Context, entry *Entry) (bool, error)

	// Get retrieves an entry by its hash.
	Get(ctx context.Context, hash string) (*Entry, error)

	// Has checks if an entry exists by its hash.
	Has(ctx context.Context, hash string) (bool, error)

	// Update overwrites a stored entry's mutable fields.
	Update(ctx context.Context, entry *Entry) error

	// Touch records an access at the given instant.
	Touch(ctx context.Context, hash string, at time.Time) error

	// AdjustRefCount atomically adds delta to the entry's reference count
	// and returns the new count. When the count reaches zero the release
	// instant is recorded; a positive adjustment clears it.
	AdjustRefCount(ctx context.Context, hash string, delta int, at time.Time) (int, error)

	// Delete removes an entry permanently.
	Delete(ctx context.Context, hash string) error

	// List returns all entries in the store.
	List(ctx context.Context) ([]*Entry, error)

	// ListByTier returns all entries in the given tier.
	ListByTier(ctx context.Context, tier Tier) ([]*Entry, error)

	// SizeOfTier returns the total payload bytes at rest in the given tier.
	SizeOfTier(ctx context.Context, tier Tier) (int64, error)

	// Close closes the store and releases any resources.
	Close() error
}
