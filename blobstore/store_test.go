package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/episodb/internal/fs"
)

func storesUnderTest(t *testing.T) map[string]BlobStore {
	t.Helper()
	return map[string]BlobStore{
		"local":  NewLocalStore(nil, t.TempDir()),
		"memory": NewMemoryStore(),
	}
}

func TestStores_PutOpenList(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "b/two", []byte("second")))
			require.NoError(t, store.Put(ctx, "a", []byte("hello world")))
			require.NoError(t, store.Put(ctx, "b/one", []byte("first")))

			names, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b/one", "b/two"}, names)

			names, err = store.List(ctx, "b/")
			require.NoError(t, err)
			assert.Equal(t, []string{"b/one", "b/two"}, names)

			blob, err := store.Open(ctx, "a")
			require.NoError(t, err)
			defer blob.Close()
			assert.Equal(t, int64(11), blob.Size())

			buf := make([]byte, 5)
			n, err := blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			assert.Equal(t, "world", string(buf[:n]))

			rc, err := blob.ReadRange(ctx, 0, 5)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "hello", string(got))
		})
	}
}

func TestStores_CreateAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			w, err := store.Create(ctx, "streamed")
			require.NoError(t, err)
			_, err = w.Write([]byte("part1-"))
			require.NoError(t, err)
			_, err = w.Write([]byte("part2"))
			require.NoError(t, err)
			require.NoError(t, w.Sync())
			require.NoError(t, w.Close())

			data, err := ReadAll(ctx, store, "streamed")
			require.NoError(t, err)
			assert.Equal(t, "part1-part2", string(data))

			require.NoError(t, store.Delete(ctx, "streamed"))
			require.NoError(t, store.Delete(ctx, "streamed"))

			_, err = store.Open(ctx, "streamed")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_PutReplaces(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "x", []byte("old content")))
			require.NoError(t, store.Put(ctx, "x", []byte("new")))

			data, err := ReadAll(ctx, store, "x")
			require.NoError(t, err)
			assert.Equal(t, "new", string(data))
		})
	}
}

func TestLocalStore_FailedRenameKeepsOldContent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	faulty := fs.NewFaultyFS(nil)
	store := NewLocalStore(faulty, dir)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("v1")))

	faulty.AddRule("CURRENT", fs.Fault{FailRename: true, FailAfterBytes: -1})
	err := store.Put(ctx, "CURRENT", []byte("v2"))
	require.ErrorIs(t, err, fs.ErrInjected)

	data, err := ReadAll(ctx, store, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	exists, err := fs.Exists(fs.Default, filepath.Join(dir, "CURRENT"+tmpSuffix))
	require.NoError(t, err)
	assert.False(t, exists, "temporary file must be cleaned up")

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CURRENT"}, names)
}

func TestLocalStore_FixedRootIsNotRecreated(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	store := NewLocalStore(nil, dir, WithFixedRoot())

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("v1")))
	require.NoError(t, os.RemoveAll(dir))

	err := store.Put(ctx, "CURRENT", []byte("v2"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "root must stay deleted")
}

func TestLocalStore_MissingRootListsEmpty(t *testing.T) {
	store := NewLocalStore(nil, filepath.Join(t.TempDir(), "missing"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
