package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

// MockPublisher is a capturing eventstream publisher for tests.
type MockPublisher struct {
	mu sync.Mutex

	// Err, when set, is returned by every publish call.
	Err error

	stored   []*eventstream.FragmentStoredEvent
	migrated []*eventstream.TierMigratedEvent
	deleted  []*eventstream.EntryDeletedEvent
	closed   bool
}

// NewMockPublisher creates a new capturing publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishFragmentStored records the event.
func (p *MockPublisher) PublishFragmentStored(_ context.Context, event *eventstream.FragmentStoredEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}

	p.stored = append(p.stored, event)
	return nil
}

// PublishTierMigrated records the event.
func (p *MockPublisher) PublishTierMigrated(_ context.Context, event *eventstream.TierMigratedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}

	p.migrated = append(p.migrated, event)
	return nil
}

// PublishEntryDeleted records the event.
func (p *MockPublisher) PublishEntryDeleted(_ context.Context, event *eventstream.EntryDeletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}

	p.deleted = append(p.deleted, event)
	return nil
}

// Close marks the publisher closed.
func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}

// StoredEvents returns a snapshot of captured fragment.stored events.
func (p *MockPublisher) StoredEvents() []*eventstream.FragmentStoredEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*eventstream.FragmentStoredEvent, len(p.stored))
	copy(out, p.stored)
	return out
}

// MigratedEvents returns a snapshot of captured tier.migrated events.
func (p *MockPublisher) MigratedEvents() []*eventstream.TierMigratedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*eventstream.TierMigratedEvent, len(p.migrated))
	copy(out, p.migrated)
	return out
}

// DeletedEvents returns a snapshot of captured entry.deleted events.
func (p *MockPublisher) DeletedEvents() []*eventstream.EntryDeletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*eventstream.EntryDeletedEvent, len(p.deleted))
	copy(out, p.deleted)
	return out
}

// Closed reports whether Close was called.
func (p *MockPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Ensure MockPublisher implements eventstream.Publisher
var _ eventstream.Publisher = (*MockPublisher)(nil)
