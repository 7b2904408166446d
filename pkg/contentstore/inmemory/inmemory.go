// Package inmemory implements the contentstore Driver with a map. It is
// the default backend for tests and throwaway sessions.
package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/papercomputeco/engram/pkg/contentstore"
)

// Driver implements contentstore.Driver using an in-memory map.
type Driver struct {
	// mu guards the entries map and the records behind it
	mu sync.RWMutex

	// entries maps content hash to its stored record
	entries map[string]*contentstore.Entry
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		entries: make(map[string]*contentstore.Entry),
	}
}

// Put stores an entry. Returns true if the entry was newly inserted,
// false if it already existed (no-op due to content-addressing).
func (d *Driver) Put(_ context.Context, entry *contentstore.Entry) (bool, error) {
	if entry == nil {
		return false, errors.New("cannot store nil entry")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.entries[entry.Hash]
	if ok {
		return false, nil
	}

	d.entries[entry.Hash] = entry.Clone()
	return true, nil
}

// Get retrieves an entry by its hash.
func (d *Driver) Get(_ context.Context, hash string) (*contentstore.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.entries[hash]
	if !ok {
		return nil, contentstore.NotFoundError{Hash: hash}
	}

	return entry.Clone(), nil
}

// Has checks if an entry exists by its hash.
func (d *Driver) Has(_ context.Context, hash string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.entries[hash]
	return ok, nil
}

// Update overwrites a stored entry's record.
func (d *Driver) Update(_ context.Context, entry *contentstore.Entry) error {
	if entry == nil {
		return errors.New("cannot update nil entry")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[entry.Hash]; !ok {
		return contentstore.NotFoundError{Hash: entry.Hash}
	}

	d.entries[entry.Hash] = entry.Clone()
	return nil
}

// Touch records an access at the given instant.
func (d *Driver) Touch(_ context.Context, hash string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[hash]
	if !ok {
		return contentstore.NotFoundError{Hash: hash}
	}

	entry.LastAccessed = at
	return nil
}

// AdjustRefCount atomically adds delta to the reference count and returns
// the new count, stamping or clearing the release instant as it crosses
// zero.
func (d *Driver) AdjustRefCount(_ context.Context, hash string, delta int, at time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[hash]
	if !ok {
		return 0, contentstore.NotFoundError{Hash: hash}
	}

	entry.ReferenceCount += delta
	switch {
	case entry.ReferenceCount == 0:
		released := at
		entry.ReleasedAt = &released
	case entry.ReferenceCount > 0:
		entry.ReleasedAt = nil
	}

	return entry.ReferenceCount, nil
}

// Delete removes an entry permanently.
func (d *Driver) Delete(_ context.Context, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[hash]; !ok {
		return contentstore.NotFoundError{Hash: hash}
	}

	delete(d.entries, hash)
	return nil
}

// List returns all entries in the store.
func (d *Driver) List(_ context.Context) ([]*contentstore.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries := make([]*contentstore.Entry, 0, len(d.entries))
	for _, entry := range d.entries {
		entries = append(entries, entry.Clone())
	}

	return entries, nil
}

// ListByTier returns all entries in the given tier.
func (d *Driver) ListByTier(_ context.Context, tier contentstore.Tier) ([]*contentstore.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var entries []*contentstore.Entry
	for _, entry := range d.entries {
		if entry.Tier == tier {
			entries = append(entries, entry.Clone())
		}
	}

	return entries, nil
}

// SizeOfTier returns the total payload bytes at rest in the given tier.
func (d *Driver) SizeOfTier(_ context.Context, tier contentstore.Tier) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var size int64
	for _, entry := range d.entries {
		if entry.Tier == tier {
			size += int64(len(entry.Payload))
		}
	}

	return size, nil
}

// Count returns the number of entries in the in-memory store.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
