// Package episode defines the canonical episode record and the raw buffer
// entries produced by a data collector.
package episode

import (
	"fmt"

	"github.com/hupe1980/episodb/space"
)

// Episode is one recorded trajectory.
//
// Observations hold TotalSteps+1 entries: the observation returned by the
// environment reset followed by one per step. Actions, Rewards,
// Terminations and Truncations hold TotalSteps entries.
type Episode struct {
	ID           uint64
	Seed         *int64
	TotalSteps   int
	Observations []space.Value
	Actions      []space.Value
	Rewards      []float64
	Terminations []bool
	Truncations  []bool
}

func (e *Episode) String() string {
	seed := "None"
	if e.Seed != nil {
		seed = fmt.Sprint(*e.Seed)
	}
	return fmt.Sprintf("Episode(id=%d, seed=%s, total_steps=%d)", e.ID, seed, e.TotalSteps)
}

// Terminated reports whether the final step ended the episode by termination.
func (e *Episode) Terminated() bool {
	return len(e.Terminations) > 0 && e.Terminations[len(e.Terminations)-1]
}

// Truncated reports whether the final step ended the episode by truncation.
func (e *Episode) Truncated() bool {
	return len(e.Truncations) > 0 && e.Truncations[len(e.Truncations)-1]
}

// Return is the undiscounted sum of rewards.
func (e *Episode) Return() float64 {
	var sum float64
	for _, r := range e.Rewards {
		sum += r
	}
	return sum
}

// Buffer is a raw, unvalidated episode entry as produced by a collector.
type Buffer struct {
	Seed         *int64
	Observations []space.Value
	Actions      []space.Value
	Rewards      []float64
	Terminations []bool
	Truncations  []bool
}

// Done reports whether the buffered episode reached a terminal step.
func (b *Buffer) Done() bool {
	n := len(b.Rewards)
	if n == 0 || len(b.Terminations) < n || len(b.Truncations) < n {
		return false
	}
	return b.Terminations[n-1] || b.Truncations[n-1]
}

// Seed returns a pointer to s, for filling the optional Seed fields.
func Seed(s int64) *int64 { return &s }
