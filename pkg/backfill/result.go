package backfill

import (
	"fmt"
	"time"
)

// Result contains statistics from a backfill run.
type Result struct {
	// Scanned is the number of store entries examined.
	Scanned int

	// Indexed counts entries that already had an embedding.
	Indexed int

	// Embedded counts entries newly embedded this run.
	Embedded int

	// Skipped counts quarantined and empty entries.
	Skipped int

	// Failed counts entries that could not be embedded or indexed.
	Failed int

	// Cancelled reports whether the run stopped early.
	Cancelled bool

	// Duration is the wall-clock run time.
	Duration time.Duration
}

// Summary returns a human-readable summary of the backfill result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Backfill complete: %d embedded, %d already indexed, %d skipped, %d failed\n"+
			"Scanned %d entries in %s",
		r.Embedded, r.Indexed, r.Skipped, r.Failed,
		r.Scanned, r.Duration.Round(time.Millisecond),
	)
}
