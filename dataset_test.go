package episodb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/internal/attrs"
	"github.com/hupe1980/episodb/internal/fs"
	"github.com/hupe1980/episodb/space"
	"github.com/hupe1980/episodb/testutil"
)

func testMetadata(name string) Metadata {
	return Metadata{
		Name:             name,
		EnvSpec:          "CartPole-v1",
		ObservationSpace: testutil.BoxObservations(4),
		ActionSpace:      testutil.TwoActions(),
	}
}

// newTestDataset creates a dataset holding n episodes of 5 steps each.
func newTestDataset(t *testing.T, md Metadata, n int, optFns ...Option) *Dataset {
	t.Helper()
	ctx := context.Background()

	ds, err := Create(ctx, filepath.Join(t.TempDir(), "data"), md, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	if n > 0 {
		buffers := testutil.NewRNG(1).Buffers(n, 5, md.ObservationSpace, md.ActionSpace)
		require.NoError(t, ds.UpdateDatasetFromBuffer(ctx, buffers))
	}
	return ds
}

func idsUpTo(max uint64) func(*episode.Episode) bool {
	return func(ep *episode.Episode) bool { return ep.ID <= max }
}

func TestDataset_FilterThenUpdate(t *testing.T) {
	ctx := context.Background()
	md := testMetadata("cartpole-test-v0")
	ds := newTestDataset(t, md, 10)
	rng := testutil.NewRNG(2)

	assert.Equal(t, 10, ds.Len())
	assert.Equal(t, uint64(50), ds.TotalSteps())

	filtered, err := ds.FilterEpisodes(ctx, idsUpTo(6))
	require.NoError(t, err)
	defer filtered.Close()
	assert.Equal(t, 7, filtered.Len())
	assert.Equal(t, uint64(35), filtered.TotalSteps())

	require.NoError(t, filtered.UpdateDatasetFromBuffer(ctx, rng.Buffers(10, 5, md.ObservationSpace, md.ActionSpace)))
	assert.Equal(t, uint64(17), filtered.TotalEpisodes())
	assert.Equal(t, uint64(85), filtered.TotalSteps())
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, filtered.EpisodeIndices())
	assert.Equal(t, uint64(20), ds.backend.TotalEpisodes())

	require.NoError(t, filtered.UpdateDatasetFromBuffer(ctx, rng.Buffers(10, 5, md.ObservationSpace, md.ActionSpace)))
	assert.Equal(t, uint64(27), filtered.TotalEpisodes())
	assert.Equal(t, uint64(135), filtered.TotalSteps())
	assert.Equal(t, uint64(30), ds.backend.TotalEpisodes())

	// The parent handle keeps its own view.
	assert.Equal(t, 10, ds.Len())
	assert.Equal(t, uint64(50), ds.TotalSteps())
	assert.Equal(t, uint64(10), ds.Spec().TotalEpisodes)

	reopened, err := Open(ctx, ds.Dir(), WithReadOnly(true))
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 30, reopened.Len())
	assert.Equal(t, uint64(150), reopened.TotalSteps())
}

func TestDataset_SiblingsDoNotSeeAppends(t *testing.T) {
	ctx := context.Background()
	md := testMetadata("siblings-v0")
	ds := newTestDataset(t, md, 4)

	a, err := ds.FilterEpisodes(ctx, idsUpTo(1))
	require.NoError(t, err)
	defer a.Close()
	b, err := ds.FilterEpisodes(ctx, idsUpTo(2))
	require.NoError(t, err)
	defer b.Close()

	before := b.EpisodeIndices()
	require.NoError(t, a.UpdateDatasetFromBuffer(ctx, testutil.NewRNG(3).Buffers(2, 5, md.ObservationSpace, md.ActionSpace)))

	assert.Equal(t, []uint64{0, 1, 4, 5}, a.EpisodeIndices())
	assert.Equal(t, before, b.EpisodeIndices())
	assert.Equal(t, 4, ds.Len())
}

func TestDataset_GetAndIterate(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t, testMetadata("iterate-v0"), 6)

	odd, err := ds.FilterEpisodes(ctx, func(ep *episode.Episode) bool { return ep.ID%2 == 1 })
	require.NoError(t, err)
	defer odd.Close()

	for i, id := range odd.EpisodeIndices() {
		ep, err := odd.Get(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, id, ep.ID)
	}

	_, err = odd.Get(ctx, 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = odd.Get(ctx, -1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	seq := odd.IterateEpisodes(ctx)
	for range 2 {
		var got []uint64
		for ep, err := range seq {
			require.NoError(t, err)
			got = append(got, ep.ID)
		}
		assert.Equal(t, []uint64{1, 3, 5}, got)
	}

	var explicit []uint64
	for ep, err := range odd.IterateEpisodes(ctx, 5, 1) {
		require.NoError(t, err)
		explicit = append(explicit, ep.ID)
	}
	assert.Equal(t, []uint64{5, 1}, explicit)

	var last error
	for _, err := range odd.IterateEpisodes(ctx, 1, 2, 3) {
		last = err
	}
	assert.ErrorIs(t, last, ErrInvalidIndex)
}

func TestDataset_RoundTrip(t *testing.T) {
	ctx := context.Background()
	md := Metadata{
		Name:             "dict-v0",
		ObservationSpace: testutil.DictObservations(),
		ActionSpace:      space.NewBox(-1, 1, 3),
	}
	ds, err := Create(ctx, filepath.Join(t.TempDir(), "data"), md, WithCompression(CompressionZSTD))
	require.NoError(t, err)
	defer ds.Close()

	buffers := testutil.NewRNG(4).Buffers(3, 7, md.ObservationSpace, md.ActionSpace)
	require.NoError(t, ds.UpdateDatasetFromBuffer(ctx, buffers))

	for i, buf := range buffers {
		ep, err := ds.Get(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), ep.ID)
		assert.Equal(t, 7, ep.TotalSteps)
		assert.Equal(t, buf.Seed, ep.Seed)
		assert.Equal(t, buf.Observations, ep.Observations)
		assert.Equal(t, buf.Actions, ep.Actions)
		assert.Equal(t, buf.Rewards, ep.Rewards)
		assert.Equal(t, buf.Terminations, ep.Terminations)
		assert.Equal(t, buf.Truncations, ep.Truncations)
	}
	assert.True(t, space.Equal(md.ObservationSpace, ds.ObservationSpace()))
}

func TestDataset_CachedReads(t *testing.T) {
	ctx := context.Background()
	md := testMetadata("cached-v0")
	ds := newTestDataset(t, md, 6, WithCacheSize(1<<20), WithCompression(CompressionLZ4))

	even, err := ds.FilterEpisodes(ctx, func(ep *episode.Episode) bool { return ep.ID%2 == 0 })
	require.NoError(t, err)
	defer even.Close()

	for pass := range 2 {
		for i := range even.Len() {
			ep, err := even.Get(ctx, i)
			require.NoError(t, err, "pass %d", pass)
			want, err := ds.Get(ctx, int(ep.ID))
			require.NoError(t, err)
			assert.Equal(t, want, ep)
		}
	}
}

func TestDataset_FlattenedStorage(t *testing.T) {
	ctx := context.Background()
	md := Metadata{
		Name:                "flat-v0",
		ObservationSpace:    testutil.DictObservations(),
		ActionSpace:         testutil.TwoActions(),
		FlattenObservations: true,
	}
	ds := newTestDataset(t, md, 2)

	ep, err := ds.Get(ctx, 0)
	require.NoError(t, err)
	for _, o := range ep.Observations {
		flat, ok := o.([]float64)
		require.True(t, ok, "observation should be a flat vector, got %T", o)
		assert.Len(t, flat, md.ObservationSpace.FlatDim())
	}
	assert.True(t, ds.Spec().FlattenObservations)
	assert.Equal(t, space.KindDict, ds.ObservationSpace().Kind())
}

func TestDataset_SampleEpisodes(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t, testMetadata("sample-v0"), 8, WithSeed(7))

	filtered, err := ds.FilterEpisodes(ctx, idsUpTo(4))
	require.NoError(t, err)
	defer filtered.Close()

	eps, err := filtered.SampleEpisodes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, eps, 3)
	seen := map[uint64]bool{}
	for _, ep := range eps {
		assert.LessOrEqual(t, ep.ID, uint64(4))
		assert.False(t, seen[ep.ID], "duplicate id %d", ep.ID)
		seen[ep.ID] = true
	}

	all, err := filtered.SampleEpisodes(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = filtered.SampleEpisodes(ctx, 6)
	assert.ErrorIs(t, err, ErrSamplingError)
	_, err = filtered.SampleEpisodes(ctx, -1)
	assert.ErrorIs(t, err, ErrSamplingError)

	none, err := filtered.SampleEpisodes(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDataset_SampleIsReproducible(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t, testMetadata("seeded-v0"), 20)

	sampleIDs := func() []uint64 {
		eps, err := ds.SampleEpisodes(ctx, 5)
		require.NoError(t, err)
		ids := make([]uint64, len(eps))
		for i, ep := range eps {
			ids[i] = ep.ID
		}
		return ids
	}

	ds.SetSeed(42)
	first := sampleIDs()
	ds.SetSeed(42)
	assert.Equal(t, first, sampleIDs())
}

func TestDataset_SchemaMismatchKeepsWrittenEpisodes(t *testing.T) {
	ctx := context.Background()
	md := testMetadata("mismatch-v0")
	ds := newTestDataset(t, md, 2)

	buffers := testutil.NewRNG(5).Buffers(3, 4, md.ObservationSpace, md.ActionSpace)
	buffers[1].Actions[0] = int64(7)

	err := ds.UpdateDatasetFromBuffer(ctx, buffers)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	var sme *SchemaMismatchError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, 1, sme.Episode)
	assert.Equal(t, "actions", sme.Field)

	assert.Equal(t, []uint64{0, 1, 2}, ds.EpisodeIndices())
	assert.Equal(t, uint64(14), ds.TotalSteps())
	assert.Equal(t, uint64(3), ds.backend.TotalEpisodes())
}

func TestDataset_FailedCommitIsNotVisible(t *testing.T) {
	ctx := context.Background()
	md := testMetadata("crash-v0")
	faulty := fs.NewFaultyFS(nil)
	ds := newTestDataset(t, md, 2, withFS(faulty))
	rng := testutil.NewRNG(6)

	faulty.AddRule(attrs.CurrentFileName, fs.Fault{FailRename: true, FailAfterBytes: -1})
	err := ds.UpdateDatasetFromBuffer(ctx, rng.Buffers(1, 9, md.ObservationSpace, md.ActionSpace))
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, uint64(10), ds.TotalSteps())

	faulty.ClearRules()
	require.NoError(t, ds.UpdateDatasetFromBuffer(ctx, rng.Buffers(1, 3, md.ObservationSpace, md.ActionSpace)))
	require.NoError(t, ds.Close())

	reopened, err := Open(ctx, ds.Dir())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []uint64{0, 1, 2}, reopened.EpisodeIndices())
	assert.Equal(t, uint64(13), reopened.TotalSteps())

	ep, err := reopened.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, ep.TotalSteps)
}

func TestDataset_OpenErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Open(ctx, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	ds := newTestDataset(t, testMetadata("occupied-v0"), 0)
	_, err = Create(ctx, ds.Dir(), testMetadata("occupied-v0"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	corrupt := filepath.Join(dir, "corrupt")
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, "episodes.dat"), []byte("garbage"), 0o644))
	_, err = Open(ctx, corrupt)
	assert.ErrorIs(t, err, ErrCorruptFormat)

	_, err = Create(ctx, filepath.Join(dir, "nospace"), Metadata{Name: "x"})
	assert.Error(t, err)
}

func TestDataset_ReadOnly(t *testing.T) {
	ctx := context.Background()
	md := testMetadata("readonly-v0")
	ds := newTestDataset(t, md, 1)

	ro, err := Open(ctx, ds.Dir(), WithReadOnly(true))
	require.NoError(t, err)
	defer ro.Close()

	err = ro.UpdateDatasetFromBuffer(ctx, testutil.NewRNG(1).Buffers(1, 2, md.ObservationSpace, md.ActionSpace))
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, ro.Delete(ctx), ErrReadOnly)
}

func TestDataset_CloseSharesBackend(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t, testMetadata("close-v0"), 3)

	child, err := ds.FilterEpisodes(ctx, idsUpTo(1))
	require.NoError(t, err)

	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())
	_, err = ds.Get(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)

	ep, err := child.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ep.ID)
	require.NoError(t, child.Close())

	_, err = child.SampleEpisodes(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDataset_Delete(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t, testMetadata("delete-v0"), 2)
	child, err := ds.FilterEpisodes(ctx, idsUpTo(0))
	require.NoError(t, err)
	defer child.Close()

	require.NoError(t, ds.Delete(ctx))
	_, err = os.Stat(ds.Dir())
	assert.True(t, os.IsNotExist(err))

	_, err = child.Get(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

type sliceCollector struct {
	buffers []episode.Buffer
}

func (c *sliceCollector) Drain() []episode.Buffer {
	out := c.buffers
	c.buffers = nil
	return out
}

func TestDataset_UpdateFromCollector(t *testing.T) {
	ctx := context.Background()
	md := testMetadata("collector-v0")
	ds := newTestDataset(t, md, 0)

	c := &sliceCollector{buffers: testutil.NewRNG(8).Buffers(3, 2, md.ObservationSpace, md.ActionSpace)}
	require.NoError(t, ds.UpdateDatasetFromCollector(ctx, c))
	assert.Equal(t, 3, ds.Len())

	require.NoError(t, ds.UpdateDatasetFromCollector(ctx, c))
	assert.Equal(t, 3, ds.Len())
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t, testMetadata("apply-v0"), 4)

	steps, err := Apply(ctx, ds, func(ep *episode.Episode) int { return ep.TotalSteps })
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 5, 5}, steps)

	ids, err := Apply(ctx, ds, func(ep *episode.Episode) uint64 { return ep.ID }, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 0}, ids)

	_, err = Apply(ctx, ds, func(ep *episode.Episode) uint64 { return ep.ID }, 9)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestDataset_Spec(t *testing.T) {
	md := testMetadata("spec-v0")
	md.Author = "someone"
	md.CodeURL = "https://example.com/code"
	ds := newTestDataset(t, md, 2)

	spec := ds.Spec()
	assert.Equal(t, "spec-v0", spec.Name)
	assert.Equal(t, "CartPole-v1", spec.EnvSpec)
	assert.Equal(t, FormatVersion, spec.FormatVersion)
	assert.Equal(t, uint64(2), spec.TotalEpisodes)
	assert.Equal(t, uint64(10), spec.TotalSteps)
	assert.Equal(t, "someone", spec.Author)
	assert.False(t, spec.CreatedAt.IsZero())
	assert.Equal(t, "CartPole-v1", ds.RecoverEnvSpec())
	assert.True(t, slices.Equal([]uint64{0, 1}, ds.EpisodeIndices()))
}
