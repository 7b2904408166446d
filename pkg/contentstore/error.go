package contentstore

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a hash has no servable entry.
type NotFoundError struct {
	Hash string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("entry %s not found", e.Hash)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var notFound NotFoundError
	return errors.As(err, &notFound)
}

// CorruptedEntryError is returned when a payload fails its integrity
// check on read. The entry is quarantined before this is returned.
type CorruptedEntryError struct {
	Hash   string
	Reason string
}

func (e CorruptedEntryError) Error() string {
	return fmt.Sprintf("entry %s corrupted: %s", e.Hash, e.Reason)
}

// IsCorrupted reports whether err wraps a CorruptedEntryError.
func IsCorrupted(err error) bool {
	var corrupted CorruptedEntryError
	return errors.As(err, &corrupted)
}
