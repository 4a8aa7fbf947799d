package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/episodb/space"
)

func TestBuffer_Shape(t *testing.T) {
	rng := NewRNG(4711)
	obs, act := DictObservations(), TwoActions()

	b := rng.Buffer(5, obs, act)
	assert.Len(t, b.Observations, 6)
	assert.Len(t, b.Actions, 5)
	assert.Len(t, b.Rewards, 5)
	assert.True(t, b.Done())
	for _, o := range b.Observations {
		assert.True(t, space.Contains(obs, o))
	}
}

func TestRNG_Reset(t *testing.T) {
	rng := NewRNG(1)
	a := rng.Episode(3, BoxObservations(2), TwoActions())
	rng.Reset()
	b := rng.Episode(3, BoxObservations(2), TwoActions())
	assert.Equal(t, a, b)
}

func TestBuffers_Seeds(t *testing.T) {
	bufs := NewRNG(2).Buffers(3, 2, BoxObservations(1), TwoActions())
	for i, b := range bufs {
		assert.Equal(t, int64(i), *b.Seed)
	}
}
