package storage

import "errors"

var (
	// ErrNotFound is returned by Open when the location does not exist.
	ErrNotFound = errors.New("backend not found")
	// ErrAlreadyExists is returned by Create when the location is occupied.
	ErrAlreadyExists = errors.New("backend already exists")
	// ErrCorrupt is returned when persisted data fails validation.
	ErrCorrupt = errors.New("corrupt backend")
	// ErrInvalidIndex is returned for episode ids outside [0, total_episodes).
	ErrInvalidIndex = errors.New("invalid episode index")
	// ErrClosed is returned after Close or Delete.
	ErrClosed = errors.New("backend closed")
	// ErrInvalidEpisode is returned when an episode cannot be stored under
	// the backend's spaces.
	ErrInvalidEpisode = errors.New("invalid episode")
	// ErrReadOnly is returned by writes on a read-only backend.
	ErrReadOnly = errors.New("backend is read-only")
)
