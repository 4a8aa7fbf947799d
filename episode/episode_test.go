package episode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/testutil"
)

func TestEpisode_Summary(t *testing.T) {
	ep := &episode.Episode{
		ID:           3,
		TotalSteps:   3,
		Rewards:      []float64{1, 0.5, -0.25},
		Terminations: []bool{false, false, false},
		Truncations:  []bool{false, false, true},
	}
	assert.InDelta(t, 1.25, ep.Return(), 1e-12)
	assert.False(t, ep.Terminated())
	assert.True(t, ep.Truncated())
	assert.Equal(t, "Episode(id=3, seed=None, total_steps=3)", ep.String())

	ep.Seed = episode.Seed(42)
	assert.Equal(t, "Episode(id=3, seed=42, total_steps=3)", ep.String())
	assert.False(t, (&episode.Episode{}).Terminated())
}

func TestBuffer_Done(t *testing.T) {
	b := episode.Buffer{}
	assert.False(t, b.Done())

	b.Rewards = []float64{0, 1}
	b.Terminations = []bool{false}
	b.Truncations = []bool{false, false}
	assert.False(t, b.Done(), "short terminations")

	b.Terminations = []bool{false, true}
	assert.True(t, b.Done())
}

func TestPayload_RoundTrip(t *testing.T) {
	obs, act := testutil.DictObservations(), testutil.TwoActions()
	ep := testutil.NewRNG(5).Episode(6, obs, act)
	ep.Seed = episode.Seed(7)

	p, err := episode.Encode(ep, obs, act)
	require.NoError(t, err)
	assert.Equal(t, ep.Rewards, p.Rewards)

	got, err := episode.Decode(11, p, obs, act)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), got.ID)
	assert.Equal(t, 6, got.TotalSteps)
	assert.Equal(t, ep.Seed, got.Seed)
	assert.Equal(t, ep.Observations, got.Observations)
	assert.Equal(t, ep.Actions, got.Actions)
	assert.Equal(t, ep.Terminations, got.Terminations)
}

func TestPayload_EmptyEpisode(t *testing.T) {
	obs, act := testutil.BoxObservations(2), testutil.TwoActions()
	ep := testutil.NewRNG(1).Episode(0, obs, act)

	p, err := episode.Encode(ep, obs, act)
	require.NoError(t, err)
	got, err := episode.Decode(0, p, obs, act)
	require.NoError(t, err)
	assert.Zero(t, got.TotalSteps)
	assert.NotNil(t, got.Rewards)
	assert.NotNil(t, got.Terminations)
	assert.Len(t, got.Observations, 1)
}

func TestEncode_RejectsForeignValues(t *testing.T) {
	obs, act := testutil.BoxObservations(2), testutil.TwoActions()
	ep := testutil.NewRNG(1).Episode(2, obs, act)
	ep.Actions[0] = "left"

	_, err := episode.Encode(ep, obs, act)
	assert.Error(t, err)
}
