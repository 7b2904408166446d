package memory

import "errors"

// ErrNilFragment is returned when a nil fragment is passed to Ingest.
var ErrNilFragment = errors.New("nil fragment")
