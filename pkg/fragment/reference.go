package fragment

import "time"

// Reference is a lightweight pointer to stored content. It never owns the
// underlying bytes. Previous optionally points at the prior version of the
// same logical fragment, which lets the content store persist a structural
// delta instead of a full copy.
type Reference struct {
	// ContentHash identifies the stored entry.
	ContentHash string `json:"content_hash"`

	// ContentType is the kind of content referenced.
	ContentType ContentType `json:"content_type"`

	// SnapshotTime is when this version was captured.
	SnapshotTime time.Time `json:"snapshot_time"`

	// Previous links to the prior version, nil for the first.
	Previous *Reference `json:"previous,omitempty"`
}

// NewReference creates a reference to a stored entry, optionally chained to
// the previous version of the same logical fragment.
func NewReference(hash string, contentType ContentType, snapshotTime time.Time, previous *Reference) *Reference {
	return &Reference{
		ContentHash:  hash,
		ContentType:  contentType,
		SnapshotTime: snapshotTime,
		Previous:     previous,
	}
}

// Depth returns the number of versions in the chain, this one included.
func (r *Reference) Depth() int {
	depth := 0
	for cur := r; cur != nil; cur = cur.Previous {
		depth++
	}
	return depth
}
