package eventstream

import "context"

// Publisher publishes memory lifecycle events to an event stream backend.
type Publisher interface {
	PublishFragmentStored(ctx context.Context, event *FragmentStoredEvent) error
	PublishTierMigrated(ctx context.Context, event *TierMigratedEvent) error
	PublishEntryDeleted(ctx context.Context, event *EntryDeletedEvent) error
	Close() error
}
