package s3

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/episodb/blobstore"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	store, err := New(ctx, bucket, WithPrefix(fmt.Sprintf("test-episodb-%d/", time.Now().UnixNano())))
	require.NoError(t, err)

	data := make([]byte, 1<<20)
	_, _ = rand.Read(data)

	w, err := store.Create(ctx, "episodes.dat")
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "episodes.dat")

	got, err := blobstore.ReadAll(ctx, store, "episodes.dat")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Delete(ctx, "episodes.dat"))
	_, err = store.Open(ctx, "episodes.dat")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
