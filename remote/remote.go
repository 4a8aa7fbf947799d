// Package remote copies dataset directories to and from blob stores.
//
// A pushed dataset lives under "<name>/" in the store: one blob per file of
// the dataset directory plus a manifest listing every file with its size and
// BLAKE3 hash. The manifest is written last, so a dataset without one is
// incomplete and is never pulled.
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("datasets"))
//	_, err := remote.Push(ctx, store, registry.DataPath("cartpole-v0"), "cartpole-v0")
//	...
//	_, err = remote.Pull(ctx, store, "cartpole-v0", registry.DataPath("cartpole-v0"))
package remote

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/episodb/blobstore"
	"github.com/hupe1980/episodb/codec"
	"github.com/hupe1980/episodb/internal/attrs"
	"github.com/hupe1980/episodb/internal/fs"
	"github.com/hupe1980/episodb/internal/resource"
)

// ManifestName is the blob name of the manifest inside a dataset prefix.
const ManifestName = "MANIFEST.json"

// manifestVersion is the version of the manifest format.
const manifestVersion = 1

var (
	// ErrNotFound is returned when the store holds no complete dataset
	// under the given name.
	ErrNotFound = errors.New("remote dataset not found")
	// ErrExists is returned when pulling into a non-empty directory.
	ErrExists = errors.New("destination not empty")
	// ErrChecksum is returned when transferred content does not match the
	// manifest.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrIncomplete is returned when the dataset directory has no
	// committed attributes.
	ErrIncomplete = errors.New("dataset incomplete")
)

// Manifest describes a pushed dataset.
type Manifest struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Files     []File    `json:"files"`
}

// File is one transferred file.
type File struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	BLAKE3 string `json:"blake3"`
}

// TotalSize returns the sum of file sizes.
func (m *Manifest) TotalSize() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}
	return n
}

// Options configures transfers.
type Options struct {
	// Concurrency is the number of files transferred in parallel. Default: 4.
	Concurrency int
	// BytesPerSec limits throughput. Zero means unlimited.
	BytesPerSec int64
	// Logger receives progress records. Default: discard.
	Logger *slog.Logger
	// FS is the local file system. Default: the OS file system.
	FS fs.FileSystem
}

// Option mutates Options.
type Option func(*Options)

// WithConcurrency sets the number of parallel file transfers.
func WithConcurrency(n int) Option { return func(o *Options) { o.Concurrency = n } }

// WithBandwidth limits transfer throughput in bytes per second.
func WithBandwidth(bytesPerSec int64) Option { return func(o *Options) { o.BytesPerSec = bytesPerSec } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithFS sets the local file system.
func WithFS(fsys fs.FileSystem) Option { return func(o *Options) { o.FS = fsys } }

func applyOptions(optFns []Option) Options {
	o := Options{Concurrency: 4}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	return o
}

func (o Options) controller() *resource.Controller {
	return resource.NewController(resource.Config{
		MaxTransfers: int64(o.Concurrency),
		BytesPerSec:  o.BytesPerSec,
	})
}

// Push uploads the dataset in localDir to store under name and returns the
// written manifest. The dataset must not be written to during the push.
func Push(ctx context.Context, store blobstore.BlobStore, localDir, name string, optFns ...Option) (*Manifest, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	o := applyOptions(optFns)
	local := blobstore.NewLocalStore(o.FS, localDir)

	names, err := local.List(ctx, "")
	if err != nil {
		return nil, err
	}
	files := pushable(names)
	if !hasAttributes(files) {
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, localDir)
	}

	// An existing manifest would describe the old content until rewritten.
	if err := store.Delete(ctx, manifestKey(name)); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := transfer(ctx, o, files, local, identity, store, func(f string) string { return path.Join(name, f) }, nil)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Version: manifestVersion, Name: name, CreatedAt: time.Now().UTC(), Files: out}
	data, err := codec.GoJSON{}.MarshalIndent(m)
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, manifestKey(name), data); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	o.Logger.InfoContext(ctx, "dataset pushed",
		"name", name,
		"files", len(out),
		"bytes", m.TotalSize(),
		"duration", time.Since(start),
	)
	return m, nil
}

// Pull downloads the dataset name from store into localDir, which must be
// missing or empty. Every file is verified against the manifest; on any
// failure localDir is removed.
func Pull(ctx context.Context, store blobstore.BlobStore, name, localDir string, optFns ...Option) (_ *Manifest, err error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	o := applyOptions(optFns)

	m, err := ReadManifest(ctx, store, name)
	if err != nil {
		return nil, err
	}

	entries, err := o.FS.ReadDir(localDir)
	if err == nil && len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrExists, localDir)
	}
	if err := o.FS.MkdirAll(localDir, 0o755); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = o.FS.RemoveAll(localDir)
		}
	}()

	files := make([]string, len(m.Files))
	expected := make(map[string]File, len(m.Files))
	for i, f := range m.Files {
		if err := validateFilePath(f.Path); err != nil {
			return nil, err
		}
		files[i] = f.Path
		expected[f.Path] = f
	}

	start := time.Now()
	local := blobstore.NewLocalStore(o.FS, localDir)
	if _, err := transfer(ctx, o, files, store, func(f string) string { return path.Join(name, f) }, local, identity, expected); err != nil {
		return nil, err
	}

	o.Logger.InfoContext(ctx, "dataset pulled",
		"name", name,
		"files", len(m.Files),
		"bytes", m.TotalSize(),
		"duration", time.Since(start),
	)
	return m, nil
}

// ReadManifest loads the manifest of a pushed dataset.
func ReadManifest(ctx context.Context, store blobstore.BlobStore, name string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, store, manifestKey(name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	var m Manifest
	if err := (codec.GoJSON{}).Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", name, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("manifest %s: unsupported version %d", name, m.Version)
	}
	return &m, nil
}

// List returns the names of complete datasets in store.
func List(ctx context.Context, store blobstore.BlobStore) ([]string, error) {
	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, k := range keys {
		dir, file := path.Split(k)
		if file == ManifestName && dir != "" && !strings.Contains(strings.TrimSuffix(dir, "/"), "/") {
			names = append(names, strings.TrimSuffix(dir, "/"))
		}
	}
	return names, nil
}

// Delete removes a pushed dataset. The manifest goes first, so a partial
// delete leaves an incomplete dataset rather than a corrupt one.
func Delete(ctx context.Context, store blobstore.BlobStore, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := store.Delete(ctx, manifestKey(name)); err != nil {
		return err
	}
	keys, err := store.List(ctx, name+"/")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := store.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func identity(s string) string { return s }

func manifestKey(name string) string { return path.Join(name, ManifestName) }

// transfer copies files from src to dst in parallel, hashing the bytes as
// they stream. With expected set, each copy is verified and a mismatch
// aborts it before it becomes visible.
func transfer(
	ctx context.Context,
	o Options,
	files []string,
	src blobstore.BlobStore, srcKey func(string) string,
	dst blobstore.BlobStore, dstKey func(string) string,
	expected map[string]File,
) ([]File, error) {
	rc := o.controller()
	out := make([]File, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.MaxTransfers())
	for i, f := range files {
		g.Go(func() error {
			if err := rc.AcquireTransfer(gctx); err != nil {
				return err
			}
			defer rc.ReleaseTransfer()

			var want *File
			if expected != nil {
				e := expected[f]
				want = &e
			}
			got, err := copyBlob(gctx, rc, src, srcKey(f), dst, dstKey(f), want)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			got.Path = f
			out[i] = got
			o.Logger.DebugContext(gctx, "file transferred", "file", f, "bytes", got.Size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func copyBlob(ctx context.Context, rc *resource.Controller, src blobstore.BlobStore, from string, dst blobstore.BlobStore, to string, want *File) (File, error) {
	b, err := src.Open(ctx, from)
	if err != nil {
		return File{}, err
	}
	defer b.Close()

	if want != nil && b.Size() != want.Size {
		return File{}, fmt.Errorf("%w: size %d, manifest says %d", ErrChecksum, b.Size(), want.Size)
	}

	r, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return File{}, err
	}
	defer r.Close()

	w, err := dst.Create(ctx, to)
	if err != nil {
		return File{}, err
	}

	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(w, h), rc.Reader(ctx, r))
	if err == nil && n != b.Size() {
		err = fmt.Errorf("short read: %d of %d bytes", n, b.Size())
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if err == nil && want != nil && sum != want.BLAKE3 {
		err = fmt.Errorf("%w: blake3 %s, manifest says %s", ErrChecksum, sum, want.BLAKE3)
	}
	if err != nil {
		_ = blobstore.Abort(w)
		return File{}, err
	}
	if err := w.Close(); err != nil {
		return File{}, err
	}
	return File{Size: n, BLAKE3: sum}, nil
}

// pushable drops files that are not part of the dataset content.
func pushable(names []string) []string {
	out := names[:0:0]
	for _, n := range names {
		base := path.Base(n)
		if base == "LOCK" || base == ManifestName {
			continue
		}
		out = append(out, n)
	}
	return out
}

func hasAttributes(files []string) bool {
	for _, f := range files {
		if f == attrs.CurrentFileName {
			return true
		}
	}
	return false
}

func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid dataset name %q", name)
	}
	return nil
}

func validateFilePath(p string) error {
	clean := path.Clean(p)
	if p == "" || clean != p || path.IsAbs(p) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid file path %q in manifest", p)
	}
	return nil
}
