// Package collector records environment interaction into raw episode
// buffers that a dataset can ingest.
package collector

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/space"
)

var (
	// ErrNotReset is returned by Step before the first Reset or after the
	// current episode ended.
	ErrNotReset = errors.New("step without reset")
	// ErrInvalidValue is returned when a value is not a member of the
	// configured space.
	ErrInvalidValue = errors.New("value outside space")
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithSpaces validates every recorded observation and action against the
// given spaces.
func WithSpaces(obs, act space.Space) Option {
	return func(r *Recorder) {
		r.obsSpace, r.actSpace = obs, act
	}
}

// Recorder accumulates episodes step by step.
//
// Completed episodes are returned by Drain. An episode still in progress
// stays in the recorder until it ends, is truncated by the next Reset, or
// is flushed with Flush.
type Recorder struct {
	mu sync.Mutex

	obsSpace space.Space
	actSpace space.Space

	current   *episode.Buffer
	completed []episode.Buffer
}

// New returns an empty Recorder.
func New(optFns ...Option) *Recorder {
	r := &Recorder{}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// Reset starts a new episode with the observation returned by the
// environment reset. An episode in progress with at least one step is
// completed as truncated; one with no steps is discarded.
func (r *Recorder) Reset(obs space.Value, seed *int64) error {
	if r.obsSpace != nil && !space.Contains(r.obsSpace, obs) {
		return fmt.Errorf("%w: reset observation", ErrInvalidValue)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.truncateCurrent()
	r.current = &episode.Buffer{
		Seed:         seed,
		Observations: []space.Value{obs},
	}
	return nil
}

// Step records one transition. The episode completes when terminated or
// truncated is set. A step may not set both.
func (r *Recorder) Step(action, obs space.Value, reward float64, terminated, truncated bool) error {
	if terminated && truncated {
		return fmt.Errorf("%w: step is both terminated and truncated", ErrInvalidValue)
	}
	if r.actSpace != nil && !space.Contains(r.actSpace, action) {
		return fmt.Errorf("%w: action", ErrInvalidValue)
	}
	if r.obsSpace != nil && !space.Contains(r.obsSpace, obs) {
		return fmt.Errorf("%w: observation", ErrInvalidValue)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.current
	if b == nil {
		return ErrNotReset
	}
	b.Actions = append(b.Actions, action)
	b.Observations = append(b.Observations, obs)
	b.Rewards = append(b.Rewards, reward)
	b.Terminations = append(b.Terminations, terminated)
	b.Truncations = append(b.Truncations, truncated)

	if terminated || truncated {
		r.completed = append(r.completed, *b)
		r.current = nil
	}
	return nil
}

// Flush completes the episode in progress as truncated, if it has steps.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.truncateCurrent()
}

func (r *Recorder) truncateCurrent() {
	b := r.current
	r.current = nil
	if b == nil || len(b.Rewards) == 0 {
		return
	}
	b.Truncations[len(b.Truncations)-1] = true
	r.completed = append(r.completed, *b)
}

// Drain returns the completed episodes and removes them from the recorder.
func (r *Recorder) Drain() []episode.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.completed
	r.completed = nil
	return out
}

// Completed returns the number of completed episodes not yet drained.
func (r *Recorder) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}

// InProgress reports whether an episode is being recorded, and its steps.
func (r *Recorder) InProgress() (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return false, 0
	}
	return true, len(r.current.Rewards)
}

// Peek returns a copy of the episode in progress.
func (r *Recorder) Peek() (episode.Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return episode.Buffer{}, false
	}
	b := *r.current
	b.Observations = slices.Clone(b.Observations)
	b.Actions = slices.Clone(b.Actions)
	b.Rewards = slices.Clone(b.Rewards)
	b.Terminations = slices.Clone(b.Terminations)
	b.Truncations = slices.Clone(b.Truncations)
	return b, true
}
