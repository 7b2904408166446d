package contentstore

import "context"

// TierStats summarizes the entries resting in one tier.
type TierStats struct {
	Entries       int   `json:"entries"`
	StoredBytes   int64 `json:"stored_bytes"`
	OriginalBytes int64 `json:"original_bytes"`
}

// Stats summarizes the whole store.
type Stats struct {
	Entries     int                `json:"entries"`
	References  int                `json:"references"`
	Quarantined int                `json:"quarantined"`
	Releasing   int                `json:"releasing"`
	Tiers       map[Tier]TierStats `json:"tiers"`
}

// Stats walks the store and aggregates per-tier counts and sizes.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	entries, err := s.driver.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Tiers: make(map[Tier]TierStats)}
	for _, entry := range entries {
		stats.Entries++
		stats.References += entry.ReferenceCount
		if entry.Quarantined {
			stats.Quarantined++
		}
		if entry.ReleasedAt != nil {
			stats.Releasing++
		}

		tier := stats.Tiers[entry.Tier]
		tier.Entries++
		tier.StoredBytes += int64(len(entry.Payload))
		tier.OriginalBytes += entry.OriginalSize
		stats.Tiers[entry.Tier] = tier
	}

	return stats, nil
}
