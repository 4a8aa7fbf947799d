package episodb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/episodb/internal/attrs"
	"github.com/hupe1980/episodb/internal/ingest"
	"github.com/hupe1980/episodb/internal/storage"
	"github.com/hupe1980/episodb/internal/view"
)

var (
	// ErrNotFound is returned when a dataset location does not exist.
	ErrNotFound = errors.New("dataset not found")

	// ErrAlreadyExists is returned when creating a dataset at an occupied location.
	ErrAlreadyExists = errors.New("dataset already exists")

	// ErrCorruptFormat is returned when persisted data is missing or malformed.
	ErrCorruptFormat = errors.New("corrupt dataset format")

	// ErrInvalidIndex is returned for episode ids that are not stored, or not
	// visible through the dataset's view.
	ErrInvalidIndex = errors.New("invalid episode id")

	// ErrIndexOutOfRange is returned by Get for positions outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrSchemaMismatch is returned when a buffer does not fit the dataset
	// schema. The error can be unwrapped to a *SchemaMismatchError.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrIncompatibleSchema is returned by Combine when inputs differ in
	// format version, environment spec, spaces or flatten flags.
	ErrIncompatibleSchema = errors.New("incompatible datasets")

	// ErrSamplingError is returned when more episodes are requested than the
	// view holds.
	ErrSamplingError = errors.New("cannot sample episodes")

	// ErrUnsupportedVersion is returned when a dataset was written by an
	// incompatible format version.
	ErrUnsupportedVersion = errors.New("unsupported format version")

	// ErrClosed is returned by operations on a closed or deleted dataset.
	ErrClosed = errors.New("dataset closed")

	// ErrReadOnly is returned by writes on a dataset opened read-only.
	ErrReadOnly = errors.New("dataset is read-only")
)

// SchemaMismatchError reports which buffer and field failed validation.
//
// errors.Is(err, ErrSchemaMismatch) holds for every SchemaMismatchError.
type SchemaMismatchError struct {
	// Episode is the position of the offending buffer in the submitted batch.
	Episode int
	Field   string
	Reason  string
	cause   error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: buffer %d: %s: %s", e.Episode, e.Field, e.Reason)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

func (e *SchemaMismatchError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var me *ingest.MismatchError
	if errors.As(err, &me) {
		return &SchemaMismatchError{Episode: me.Episode, Field: me.Field, Reason: me.Reason, cause: err}
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, storage.ErrCorrupt), errors.Is(err, attrs.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorruptFormat, err)
	case errors.Is(err, storage.ErrInvalidIndex):
		return fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	case errors.Is(err, storage.ErrInvalidEpisode):
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	case errors.Is(err, storage.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, storage.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	case errors.Is(err, view.ErrOutOfRange):
		return fmt.Errorf("%w: %w", ErrIndexOutOfRange, err)
	case errors.Is(err, view.ErrSampleSize):
		return fmt.Errorf("%w: %w", ErrSamplingError, err)
	}
	return err
}
