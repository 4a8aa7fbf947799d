// Package ingest validates raw collector buffers and converts them into
// canonical episode records.
package ingest

import (
	"errors"
	"fmt"

	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/space"
)

// ErrSchemaMismatch is the sentinel wrapped by every MismatchError.
var ErrSchemaMismatch = errors.New("schema mismatch")

// MismatchError describes why a buffer does not fit the dataset schema.
type MismatchError struct {
	// Episode is the position of the buffer in the submitted batch.
	Episode int
	Field   string
	Reason  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: buffer %d: %s: %s", e.Episode, e.Field, e.Reason)
}

func (e *MismatchError) Unwrap() error { return ErrSchemaMismatch }

// Schema is what a buffer is validated against.
type Schema struct {
	Observation         space.Space
	Action              space.Space
	FlattenObservations bool
	FlattenActions      bool
}

// Ingest validates b and returns the episode to write. pos identifies the
// buffer in error messages.
func Ingest(pos int, b episode.Buffer, s Schema) (*episode.Episode, error) {
	mismatch := func(field, format string, args ...any) error {
		return &MismatchError{Episode: pos, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	steps := len(b.Rewards)
	if len(b.Terminations) != steps {
		return nil, mismatch("terminations", "%d entries for %d rewards", len(b.Terminations), steps)
	}
	if len(b.Truncations) != steps {
		return nil, mismatch("truncations", "%d entries for %d rewards", len(b.Truncations), steps)
	}
	if len(b.Observations) != steps+1 {
		return nil, mismatch("observations", "%d entries for %d steps, want %d", len(b.Observations), steps, steps+1)
	}
	if len(b.Actions) != steps {
		return nil, mismatch("actions", "%d entries for %d steps", len(b.Actions), steps)
	}
	if steps > 0 && b.Terminations[steps-1] && b.Truncations[steps-1] {
		return nil, mismatch("terminations", "final step is both terminated and truncated")
	}

	obs, err := convert(b.Observations, s.Observation, s.FlattenObservations)
	if err != nil {
		return nil, mismatch("observations", "%v", err)
	}
	act, err := convert(b.Actions, s.Action, s.FlattenActions)
	if err != nil {
		return nil, mismatch("actions", "%v", err)
	}

	return &episode.Episode{
		Seed:         b.Seed,
		TotalSteps:   steps,
		Observations: obs,
		Actions:      act,
		Rewards:      cloneOrEmpty(b.Rewards),
		Terminations: cloneOrEmpty(b.Terminations),
		Truncations:  cloneOrEmpty(b.Truncations),
	}, nil
}

func convert(values []space.Value, s space.Space, flatten bool) ([]space.Value, error) {
	if s == nil {
		return nil, errors.New("no space declared")
	}
	var flat *space.Box
	if flatten {
		flat = space.FlattenSpace(s)
	}

	out := make([]space.Value, len(values))
	for i, v := range values {
		c, err := s.Canonicalize(v)
		if err == nil {
			if flatten {
				x, err := s.Flatten(c)
				if err != nil {
					return nil, fmt.Errorf("step %d: %w", i, err)
				}
				c = x
			}
			out[i] = c
			continue
		}
		// Already-flat vectors are accepted when flattening.
		if flatten {
			if fc, ferr := flat.Canonicalize(v); ferr == nil {
				out[i] = fc
				continue
			}
		}
		return nil, fmt.Errorf("step %d: %w", i, err)
	}
	return out, nil
}

func cloneOrEmpty[T any](x []T) []T {
	return append(make([]T, 0, len(x)), x...)
}
