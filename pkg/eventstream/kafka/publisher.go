// Package kafka provides an eventstream publisher backed by a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

// DefaultTopic is the topic events are published to when none is configured.
const DefaultTopic = "engram.events"

// Config is the configuration options for the Kafka publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the topic to publish events to (defaults to engram.events).
	Topic string

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Publisher publishes events to a Kafka topic, keyed by content hash so
// events for the same entry land on the same partition.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher creates a new Kafka eventstream publisher.
func NewPublisher(c *Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	if c.Topic == "" {
		c.Topic = DefaultTopic
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		ErrorLogger:  kafka.LoggerFunc(logger.Sugar().Errorf),
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishFragmentStored publishes a fragment.stored event keyed by its hash.
func (p *Publisher) PublishFragmentStored(ctx context.Context, event *eventstream.FragmentStoredEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return p.publish(ctx, event.Fragment.Hash, event)
}

// PublishTierMigrated publishes a tier.migrated event keyed by its event ID.
func (p *Publisher) PublishTierMigrated(ctx context.Context, event *eventstream.TierMigratedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return p.publish(ctx, event.EventID, event)
}

// PublishEntryDeleted publishes an entry.deleted event keyed by its hash.
func (p *Publisher) PublishEntryDeleted(ctx context.Context, event *eventstream.EntryDeletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return p.publish(ctx, event.Deletion.Hash, event)
}

func (p *Publisher) publish(ctx context.Context, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
	)

	return nil
}

// Close flushes pending messages and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Ensure Publisher implements eventstream.Publisher
var _ eventstream.Publisher = (*Publisher)(nil)
