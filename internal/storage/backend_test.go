package storage

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/internal/attrs"
	"github.com/hupe1980/episodb/internal/compress"
	"github.com/hupe1980/episodb/internal/fs"
	"github.com/hupe1980/episodb/space"
	"github.com/hupe1980/episodb/testutil"
)

func testAttributes(t *testing.T, obs, act space.Space) *Attributes {
	t.Helper()
	o, err := space.Marshal(obs)
	require.NoError(t, err)
	a, err := space.Marshal(act)
	require.NoError(t, err)
	return &Attributes{
		DatasetName:      "test-v0",
		EnvSpec:          `{"id":"Test-v0"}`,
		FormatVersion:    "v1.0.0",
		ObservationSpace: o,
		ActionSpace:      a,
	}
}

func newBackend(t *testing.T, optFns ...Option) *Backend {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "ds")
	b, err := Create(context.Background(), dir, testAttributes(t, testutil.BoxObservations(3), testutil.TwoActions()), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_WriteRead(t *testing.T) {
	for _, ct := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(ct.String(), func(t *testing.T) {
			ctx := context.Background()
			b := newBackend(t, WithCompression(ct))
			rng := testutil.NewRNG(1)

			var written []*episode.Episode
			for i := range 5 {
				ep := rng.Episode(i+1, b.ObservationSpace(), b.ActionSpace())
				ep.Seed = episode.Seed(int64(100 + i))
				id, err := b.WriteEpisode(ctx, ep)
				require.NoError(t, err)
				assert.Equal(t, uint64(i), id)
				assert.Equal(t, id, ep.ID)
				written = append(written, ep)
			}

			a := b.Attributes()
			assert.Equal(t, uint64(5), a.TotalEpisodes)
			assert.Equal(t, uint64(1+2+3+4+5), a.TotalSteps)
			assert.Equal(t, ct.String(), a.Compression)

			for _, want := range written {
				got, err := b.ReadEpisode(ctx, want.ID)
				require.NoError(t, err)
				assert.Equal(t, want, got)

				steps, err := b.StepCount(want.ID)
				require.NoError(t, err)
				assert.Equal(t, want.TotalSteps, steps)
			}
		})
	}
}

func TestBackend_RecordCache(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, WithCompression(compress.ZSTD), WithCacheSize(1<<20))
	rng := testutil.NewRNG(4)

	ep := rng.Episode(8, b.ObservationSpace(), b.ActionSpace())
	id, err := b.WriteEpisode(ctx, ep)
	require.NoError(t, err)

	first, err := b.ReadEpisode(ctx, id)
	require.NoError(t, err)
	second, err := b.ReadEpisode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, ep, second)

	hits, misses := b.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	// Decoded episodes are not shared between reads.
	second.Rewards[0] += 1
	third, err := b.ReadEpisode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ep.Rewards, third.Rewards)
}

func TestBackend_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ds")
	obs := testutil.DictObservations()
	b, err := Create(ctx, dir, testAttributes(t, obs, testutil.TwoActions()))
	require.NoError(t, err)

	ep := testutil.NewRNG(2).Episode(4, obs, testutil.TwoActions())
	_, err = b.WriteEpisode(ctx, ep)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = b.ReadEpisode(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)

	b, err = Open(ctx, dir, WithReadOnly(true))
	require.NoError(t, err)
	defer b.Close()

	got, err := b.ReadEpisode(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ep, got)
	assert.True(t, space.Equal(obs, b.ObservationSpace()))

	_, err = b.WriteEpisode(ctx, ep)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestBackend_InvalidIndex(t *testing.T) {
	b := newBackend(t)
	_, err := b.ReadEpisode(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidIndex)
	_, err = b.StepCount(3)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestBackend_CreateOccupied(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	_, err := Create(ctx, b.Dir(), testAttributes(t, testutil.BoxObservations(1), testutil.TwoActions()))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestBackend_OpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	empty := t.TempDir()
	_, err = Open(ctx, empty)
	assert.ErrorIs(t, err, ErrCorrupt)

	b := newBackend(t)
	require.NoError(t, b.Close())
	require.NoError(t, os.WriteFile(filepath.Join(b.Dir(), dataFileName), []byte("not a data file!"), 0o644))
	_, err = Open(ctx, b.Dir())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBackend_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	ep := testutil.NewRNG(3).Episode(3, b.ObservationSpace(), b.ActionSpace())
	_, err := b.WriteEpisode(ctx, ep)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	path := filepath.Join(b.Dir(), dataFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	b, err = Open(ctx, b.Dir())
	require.NoError(t, err)
	defer b.Close()
	_, err = b.ReadEpisode(ctx, 0)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBackend_RejectsInvalidEpisode(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	ep := testutil.NewRNG(4).Episode(2, b.ObservationSpace(), b.ActionSpace())
	ep.Actions[0] = []float64{1, 2}

	_, err := b.WriteEpisode(ctx, ep)
	assert.ErrorIs(t, err, ErrInvalidEpisode)
	assert.Zero(t, b.TotalEpisodes())

	ep = testutil.NewRNG(4).Episode(2, b.ObservationSpace(), b.ActionSpace())
	ep.TotalSteps = 7
	_, err = b.WriteEpisode(ctx, ep)
	assert.ErrorIs(t, err, ErrInvalidEpisode)
}

func TestBackend_RejectsOversizedRecord(t *testing.T) {
	limit := maxFrameBody
	maxFrameBody = 64
	t.Cleanup(func() { maxFrameBody = limit })

	ctx := context.Background()
	b := newBackend(t)
	rng := testutil.NewRNG(6)

	big := rng.Episode(50, b.ObservationSpace(), b.ActionSpace())
	_, err := b.WriteEpisode(ctx, big)
	require.ErrorIs(t, err, ErrInvalidEpisode)
	assert.Zero(t, b.TotalEpisodes())

	maxFrameBody = limit
	small := rng.Episode(2, b.ObservationSpace(), b.ActionSpace())
	id, err := b.WriteEpisode(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	got, err := b.ReadEpisode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, small, got)
}

func TestBackend_FailedCommitLeavesTotals(t *testing.T) {
	ctx := context.Background()
	faulty := fs.NewFaultyFS(nil)
	b := newBackend(t, WithFS(faulty))
	rng := testutil.NewRNG(5)

	first := rng.Episode(3, b.ObservationSpace(), b.ActionSpace())
	_, err := b.WriteEpisode(ctx, first)
	require.NoError(t, err)

	faulty.AddRule(attrs.CurrentFileName, fs.Fault{FailRename: true, FailAfterBytes: -1})
	orphan := rng.Episode(9, b.ObservationSpace(), b.ActionSpace())
	_, err = b.WriteEpisode(ctx, orphan)
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, uint64(1), b.TotalEpisodes())
	assert.Equal(t, uint64(3), b.Attributes().TotalSteps)

	_, err = b.ReadEpisode(ctx, 1)
	assert.ErrorIs(t, err, ErrInvalidIndex)

	faulty.ClearRules()
	second := rng.Episode(2, b.ObservationSpace(), b.ActionSpace())
	id, err := b.WriteEpisode(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	require.NoError(t, b.Close())
	b, err = Open(ctx, b.Dir())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, uint64(2), b.TotalEpisodes())
	assert.Equal(t, uint64(5), b.Attributes().TotalSteps)
	got, err := b.ReadEpisode(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestBackend_FailedDataWrite(t *testing.T) {
	ctx := context.Background()
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule(dataFileName, fs.Fault{FailWrites: true})
	dir := filepath.Join(t.TempDir(), "ds")

	b, err := Create(ctx, dir, testAttributes(t, testutil.BoxObservations(3), testutil.TwoActions()))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = Open(ctx, dir, WithFS(faulty))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.WriteEpisode(ctx, testutil.NewRNG(6).Episode(2, b.ObservationSpace(), b.ActionSpace()))
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Zero(t, b.TotalEpisodes())
}

func TestBackend_Refresh(t *testing.T) {
	ctx := context.Background()
	writer := newBackend(t)
	reader, err := Open(ctx, writer.Dir(), WithReadOnly(true))
	require.NoError(t, err)
	defer reader.Close()

	_, err = writer.WriteEpisode(ctx, testutil.NewRNG(7).Episode(4, writer.ObservationSpace(), writer.ActionSpace()))
	require.NoError(t, err)

	assert.Zero(t, reader.TotalEpisodes())
	require.NoError(t, reader.Refresh(ctx))
	assert.Equal(t, uint64(1), reader.TotalEpisodes())

	steps, err := reader.StepCount(0)
	require.NoError(t, err)
	assert.Equal(t, 4, steps)
}

func TestBackend_Delete(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	require.NoError(t, b.Delete(ctx))

	exists, err := Exists(nil, b.Dir())
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = b.WriteEpisode(ctx, testutil.NewRNG(8).Episode(1, b.ObservationSpace(), b.ActionSpace()))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBackend_DeleteAfterClose(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Delete(context.Background()), ErrClosed)

	exists, err := Exists(nil, b.Dir())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBackend_DirectoryRemovedUnderneath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("open files cannot be removed on windows")
	}
	ctx := context.Background()
	b := newBackend(t)
	rng := testutil.NewRNG(9)
	_, err := b.WriteEpisode(ctx, rng.Episode(2, b.ObservationSpace(), b.ActionSpace()))
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(b.Dir()))

	_, err = b.WriteEpisode(ctx, rng.Episode(2, b.ObservationSpace(), b.ActionSpace()))
	require.ErrorIs(t, err, ErrClosed)
	_, statErr := os.Stat(b.Dir())
	assert.True(t, os.IsNotExist(statErr), "a write must not recreate the directory")

	_, err = b.ReadEpisode(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBackend_FlattenedColumns(t *testing.T) {
	ctx := context.Background()
	obs := testutil.DictObservations()
	a := testAttributes(t, obs, testutil.TwoActions())
	a.FlattenObservations = true

	b, err := Create(ctx, filepath.Join(t.TempDir(), "flat"), a)
	require.NoError(t, err)
	defer b.Close()

	rng := testutil.NewRNG(9)
	ep := rng.Episode(2, obs, testutil.TwoActions())
	for i, o := range ep.Observations {
		flat, err := obs.Flatten(o)
		require.NoError(t, err)
		ep.Observations[i] = flat
	}
	_, err = b.WriteEpisode(ctx, ep)
	require.NoError(t, err)

	got, err := b.ReadEpisode(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ep.Observations, got.Observations)
	assert.Len(t, got.Observations[0], obs.FlatDim())
}
