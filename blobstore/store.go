package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// BlobStore stores named, immutable blobs. Implementations must be safe for
// concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a blob for streaming writes. The blob becomes visible
	// when the returned writer is closed.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a blob.
type Blob interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	Size() int64
	io.Closer
}

// WritableBlob is a streaming writer for a new blob.
type WritableBlob interface {
	io.Writer
	io.Closer
	Sync() error
}

// Aborter is implemented by writable blobs that can discard a partial
// write without making it visible.
type Aborter interface {
	Abort() error
}

// Abort discards w if it supports it and closes it otherwise.
func Abort(w WritableBlob) error {
	if a, ok := w.(Aborter); ok {
		return a.Abort()
	}
	return w.Close()
}

// ReadAll reads a whole blob.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
