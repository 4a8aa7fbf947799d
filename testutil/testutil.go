package testutil

import (
	"math/rand/v2"
	"sync"

	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/space"
)

// RNG is a seeded, thread-safe random source for fixtures.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG with the specified seed.
func NewRNG(seed uint64) *RNG {
	r := &RNG{seed: seed}
	r.Reset()
	return r
}

// Reset restarts the sequence from the initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed^0x9e3779b97f4a7c15))
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 { return r.seed }

// IntN returns a pseudo-random number in [0,n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Sample draws a member of s.
func (r *RNG) Sample(s space.Space) space.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.Sample(r.rand)
}

// BoxObservations is a Box(-1, 1, dim) observation space.
func BoxObservations(dim int) space.Space {
	return space.NewBox(-1, 1, dim)
}

// TwoActions is a Discrete(2) action space.
func TwoActions() space.Space {
	return space.NewDiscrete(2)
}

// DictObservations is a nested observation space covering every variant.
func DictObservations() space.Space {
	return space.NewDict(map[string]space.Space{
		"position": space.NewBox(-10, 10, 2),
		"mode":     space.NewDiscrete(3),
		"sensors":  space.NewTuple(space.NewMultiBinary(4), space.NewMultiDiscrete(2, 5)),
	})
}

// Buffer generates a completed raw buffer with the given number of steps.
// The last step terminates the episode.
func (r *RNG) Buffer(steps int, obs, act space.Space) episode.Buffer {
	b := episode.Buffer{
		Observations: make([]space.Value, 0, steps+1),
		Actions:      make([]space.Value, 0, steps),
		Rewards:      make([]float64, steps),
		Terminations: make([]bool, steps),
		Truncations:  make([]bool, steps),
	}
	b.Observations = append(b.Observations, r.Sample(obs))
	for i := range steps {
		b.Actions = append(b.Actions, r.Sample(act))
		b.Observations = append(b.Observations, r.Sample(obs))
		b.Rewards[i] = r.Float64()
	}
	if steps > 0 {
		b.Terminations[steps-1] = true
	}
	return b
}

// Buffers generates n buffers of steps steps each, seeded 0..n-1.
func (r *RNG) Buffers(n, steps int, obs, act space.Space) []episode.Buffer {
	out := make([]episode.Buffer, n)
	for i := range out {
		out[i] = r.Buffer(steps, obs, act)
		out[i].Seed = episode.Seed(int64(i))
	}
	return out
}

// Episode generates a valid episode. Values are canonical members of the
// given spaces.
func (r *RNG) Episode(steps int, obs, act space.Space) *episode.Episode {
	b := r.Buffer(steps, obs, act)
	return &episode.Episode{
		Seed:         b.Seed,
		TotalSteps:   steps,
		Observations: b.Observations,
		Actions:      b.Actions,
		Rewards:      b.Rewards,
		Terminations: b.Terminations,
		Truncations:  b.Truncations,
	}
}
