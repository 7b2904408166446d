package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("creates a non-nil publisher", func() {
		p := nop.NewPublisher()
		Expect(p).NotTo(BeNil())
	})

	It("returns ErrNilEvent for nil events", func() {
		p := nop.NewPublisher()
		Expect(p.PublishFragmentStored(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(p.PublishTierMigrated(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(p.PublishEntryDeleted(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("succeeds for non-nil events", func() {
		p := nop.NewPublisher()
		Expect(p.PublishFragmentStored(context.Background(), &eventstream.FragmentStoredEvent{})).To(Succeed())
		Expect(p.PublishTierMigrated(context.Background(), &eventstream.TierMigratedEvent{})).To(Succeed())
		Expect(p.PublishEntryDeleted(context.Background(), &eventstream.EntryDeletedEvent{})).To(Succeed())
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
