package nop

import (
	"context"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishFragmentStored validates input and otherwise does nothing.
func (p *Publisher) PublishFragmentStored(_ context.Context, event *eventstream.FragmentStoredEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// PublishTierMigrated validates input and otherwise does nothing.
func (p *Publisher) PublishTierMigrated(_ context.Context, event *eventstream.TierMigratedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// PublishEntryDeleted validates input and otherwise does nothing.
func (p *Publisher) PublishEntryDeleted(_ context.Context, event *eventstream.EntryDeletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
