package tier

import (
	"fmt"
	"time"
)

// MigrationStats contains statistics from a single migration cycle.
type MigrationStats struct {
	// HotToWarm is the number of entries migrated from Hot to Warm.
	HotToWarm int

	// WarmToCold is the number of entries migrated from Warm to Cold.
	WarmToCold int

	// Reindexed is the number of entries whose embeddings were refreshed
	// during Warm to Cold migration.
	Reindexed int

	// Deleted is the number of entries garbage-collected.
	Deleted int

	// BytesReclaimed is the stored bytes freed by recompression and deletion.
	BytesReclaimed int64

	// Duration is the wall-clock time the cycle took.
	Duration time.Duration

	// Cancelled reports whether the cycle stopped early because its
	// context was cancelled.
	Cancelled bool
}

// Summary returns a human-readable summary of the migration cycle.
func (s *MigrationStats) Summary() string {
	suffix := ""
	if s.Cancelled {
		suffix = " (cancelled)"
	}
	return fmt.Sprintf(
		"Migration cycle complete in %s%s: %d hot->warm, %d warm->cold, %d reindexed, %d deleted, %d bytes reclaimed",
		s.Duration.Round(time.Millisecond), suffix,
		s.HotToWarm, s.WarmToCold, s.Reindexed, s.Deleted, s.BytesReclaimed,
	)
}
