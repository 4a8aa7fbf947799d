package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hupe1980/episodb/internal/fs"
)

const tmpSuffix = ".tmp"

// LocalStore implements BlobStore on a local directory.
//
// Put and Create write to a temporary file, fsync it and rename it into
// place, so a reader sees either the old or the new content.
type LocalStore struct {
	fs   fs.FileSystem
	root string

	fixedRoot bool
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFixedRoot makes writes fail with os.ErrNotExist once the root
// directory is gone, instead of recreating it.
func WithFixedRoot() LocalOption {
	return func(s *LocalStore) { s.fixedRoot = true }
}

// NewLocalStore creates a LocalStore rooted at root.
// A nil fsys uses the local filesystem.
func NewLocalStore(fsys fs.FileSystem, root string, optFns ...LocalOption) *LocalStore {
	if fsys == nil {
		fsys = fs.Default
	}
	s := &LocalStore{fs: fsys, root: root}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Root returns the directory the store is rooted at.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	f, err := s.fs.OpenFile(s.path(name), os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &localBlob{f: f, size: info.Size()}, nil
}

// Create creates a blob for streaming writes.
func (s *LocalStore) Create(_ context.Context, name string) (WritableBlob, error) {
	target := s.path(name)
	if s.fixedRoot {
		if _, err := s.fs.Stat(s.root); err != nil {
			return nil, err
		}
	}
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}
	f, err := s.fs.OpenFile(target+tmpSuffix, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &localWritableBlob{fs: s.fs, f: f, target: target}, nil
}

// Put writes a blob atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.(*localWritableBlob).Abort()
		return err
	}
	return w.Close()
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := s.fs.Remove(s.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns all blobs under root whose slash-separated name starts with prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	var walk func(dir, rel string) error
	walk = func(dir, rel string) error {
		entries, err := s.fs.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			name := e.Name()
			if rel != "" {
				name = rel + "/" + name
			}
			if e.IsDir() {
				if err := walk(filepath.Join(dir, e.Name()), name); err != nil {
					return err
				}
				continue
			}
			if strings.HasSuffix(name, tmpSuffix) {
				continue
			}
			if strings.HasPrefix(name, prefix) {
				names = append(names, name)
			}
		}
		return nil
	}
	if err := walk(s.root, ""); err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

type localBlob struct {
	f    fs.File
	size int64
}

func (b *localBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.f.ReadAt(p, off)
}

func (b *localBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	return io.NopCloser(io.NewSectionReader(b.f, off, length)), nil
}

func (b *localBlob) Size() int64  { return b.size }
func (b *localBlob) Close() error { return b.f.Close() }

type localWritableBlob struct {
	fs     fs.FileSystem
	f      fs.File
	target string
	closed bool
}

func (w *localWritableBlob) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *localWritableBlob) Sync() error { return w.f.Sync() }

// Close syncs the temporary file and renames it over the target.
func (w *localWritableBlob) Close() error {
	if w.closed {
		return os.ErrClosed
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = w.fs.Remove(w.target + tmpSuffix)
		return err
	}
	if err := w.f.Close(); err != nil {
		_ = w.fs.Remove(w.target + tmpSuffix)
		return err
	}
	if err := w.fs.Rename(w.target+tmpSuffix, w.target); err != nil {
		_ = w.fs.Remove(w.target + tmpSuffix)
		return err
	}
	return nil
}

// Abort discards the temporary file. The target is left unchanged.
func (w *localWritableBlob) Abort() error {
	w.closed = true
	_ = w.f.Close()
	return w.fs.Remove(w.target + tmpSuffix)
}
