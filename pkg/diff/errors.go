package diff

import "errors"

var (
	// ErrNotStructured indicates a payload that is not valid JSON and so
	// cannot participate in structural diffing.
	ErrNotStructured = errors.New("content is not structured")

	// ErrMalformedDelta indicates a delta that does not fit the base value
	// it is being applied to.
	ErrMalformedDelta = errors.New("malformed delta")
)
