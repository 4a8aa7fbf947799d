package attrs

import "errors"

var (
	// ErrNotFound is returned when no CURRENT pointer exists.
	ErrNotFound = errors.New("attributes not found")

	// ErrCorrupt is returned when a record fails validation.
	ErrCorrupt = errors.New("corrupt attributes")
)
