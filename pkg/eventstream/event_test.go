package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals FragmentStoredEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.FragmentStoredEvent{
			Header: eventstream.Header{
				SchemaVersion: eventstream.SchemaVersionV1,
				EventType:     eventstream.EventTypeFragmentStored,
				EventID:       "evt_123",
				EmittedAt:     now,
				Source: eventstream.EventSource{
					Project: "my-project",
					Session: "session-1",
				},
			},
			Fragment: eventstream.FragmentMeta{
				Hash:         "abc123",
				ContentType:  "turn",
				Tags:         []string{"user-marked"},
				TokenCount:   42,
				Tier:         "hot",
				RefCount:     1,
				Deduplicated: false,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("fragment"))

		fragment, ok := got["fragment"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(fragment).To(HaveKeyWithValue("hash", "abc123"))
		Expect(fragment).To(HaveKeyWithValue("tier", "hot"))
	})

	It("marshals TierMigratedEvent with its migration section", func() {
		event := eventstream.NewTierMigratedEvent(eventstream.EventSource{}, eventstream.MigrationMeta{
			HotToWarm:      3,
			WarmToCold:     1,
			BytesReclaimed: 2048,
			DurationMs:     15,
		})

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("migration"))
		migration, ok := got["migration"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(migration).To(HaveKeyWithValue("hot_to_warm", float64(3)))
		Expect(migration).To(HaveKeyWithValue("bytes_reclaimed", float64(2048)))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeFragmentStored).To(Equal("engram.fragment.stored"))
		Expect(eventstream.EventTypeTierMigrated).To(Equal("engram.tier.migrated"))
		Expect(eventstream.EventTypeEntryDeleted).To(Equal("engram.entry.deleted"))
	})

	It("stamps fresh headers from the constructors", func() {
		before := time.Now().UTC()
		event := eventstream.NewFragmentStoredEvent(
			eventstream.EventSource{Project: "my-project"},
			eventstream.FragmentMeta{Hash: "abc123"},
		)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeFragmentStored))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.EmittedAt).To(BeTemporally(">=", before))
		Expect(event.Source.Project).To(Equal("my-project"))
		Expect(event.Fragment.Hash).To(Equal("abc123"))

		other := eventstream.NewEntryDeletedEvent(eventstream.EventSource{}, eventstream.DeletionMeta{Hash: "abc123"})
		Expect(other.EventID).NotTo(Equal(event.EventID))
		Expect(other.EventType).To(Equal(eventstream.EventTypeEntryDeleted))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilEvent).To(MatchError("nil event"))
	})
})
