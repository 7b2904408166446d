package kafka_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/eventstream/kafka"
)

var _ = Describe("Publisher", func() {
	Describe("NewPublisher", func() {
		It("returns an error when no brokers are configured", func() {
			_, err := kafka.NewPublisher(&kafka.Config{})
			Expect(err).To(MatchError(ContainSubstring("at least one broker is required")))
		})

		It("applies the default topic", func() {
			c := &kafka.Config{Brokers: []string{"localhost:9092"}}
			p, err := kafka.NewPublisher(c)
			Expect(err).ToNot(HaveOccurred())
			defer p.Close()

			Expect(c.Topic).To(Equal(kafka.DefaultTopic))
		})
	})

	Describe("Publish", func() {
		It("rejects nil events without touching the writer", func() {
			p, err := kafka.NewPublisher(&kafka.Config{Brokers: []string{"localhost:9092"}})
			Expect(err).ToNot(HaveOccurred())
			defer p.Close()

			ctx := context.Background()
			Expect(p.PublishFragmentStored(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
			Expect(p.PublishTierMigrated(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
			Expect(p.PublishEntryDeleted(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
		})
	})

	Describe("Close", func() {
		It("closes an idle publisher", func() {
			p, err := kafka.NewPublisher(&kafka.Config{Brokers: []string{"localhost:9092"}})
			Expect(err).ToNot(HaveOccurred())

			Expect(p.Close()).To(Succeed())
		})
	})
})
