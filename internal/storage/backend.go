package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/episodb/blobstore"
	"github.com/hupe1980/episodb/codec"
	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/internal/attrs"
	"github.com/hupe1980/episodb/internal/cache"
	"github.com/hupe1980/episodb/internal/compress"
	"github.com/hupe1980/episodb/internal/flock"
	"github.com/hupe1980/episodb/internal/fs"
	"github.com/hupe1980/episodb/space"
)

// Attributes are the root attributes of a backend.
type Attributes = attrs.Attributes

// Backend is the durable, append-only episode store of one dataset.
//
// Reads are safe for concurrent use. Writes are serialized by the backend;
// a second Backend on the same directory is a second writer and must be
// excluded with Options.WriterLock.
type Backend struct {
	mu     sync.RWMutex
	dir    string
	opts   Options
	logger *slog.Logger

	attrs *attrs.Store
	cur   *Attributes

	data  fs.File
	index fs.File
	lock  *flock.Lock
	cache *cache.LRU

	// dataEnd is the end of the committed data region.
	dataEnd int64

	obsSpace, actSpace   space.Space
	obsColumn, actColumn space.Space

	closed bool
}

// Create initializes a new backend in dir. The totals of a are reset to zero.
func Create(ctx context.Context, dir string, a *Attributes, optFns ...Option) (*Backend, error) {
	opts := applyOptions(optFns)
	if opts.ReadOnly {
		return nil, ErrReadOnly
	}
	if err := validateAttributes(a); err != nil {
		return nil, err
	}
	if err := new(Backend).resolveSpaces(a); err != nil {
		return nil, err
	}

	occupied, err := isOccupied(opts.FS, dir)
	if err != nil {
		return nil, err
	}
	if occupied {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, dir)
	}
	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	for name, magic := range map[string]string{dataFileName: dataMagic, indexFileName: indexMagic} {
		if err := createFile(opts.FS, filepath.Join(dir, name), magic); err != nil {
			return nil, err
		}
	}

	initial := a.Clone()
	initial.ID = 0
	initial.TotalEpisodes = 0
	initial.TotalSteps = 0
	initial.Compression = opts.Compression.String()
	if initial.CreatedAt.IsZero() {
		initial.CreatedAt = time.Now().UTC()
	}
	if err := attrs.NewStore(blobstore.NewLocalStore(opts.FS, dir)).Save(ctx, initial); err != nil {
		return nil, fmt.Errorf("commit initial attributes: %w", err)
	}

	opts.Logger.Debug("backend created", "dir", dir, "dataset", initial.DatasetName, "compression", initial.Compression)
	return Open(ctx, dir, optFns...)
}

// Open opens an existing backend.
func Open(ctx context.Context, dir string, optFns ...Option) (*Backend, error) {
	opts := applyOptions(optFns)

	info, err := opts.FS.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorrupt, dir)
	}

	b := &Backend{
		dir:    dir,
		opts:   opts,
		logger: opts.Logger.With("dir", dir),
		attrs:  attrs.NewStore(blobstore.NewLocalStore(opts.FS, dir, blobstore.WithFixedRoot())),
		cache:  cache.New(opts.CacheBytes),
	}

	if !opts.ReadOnly && opts.WriterLock {
		lock, err := flock.TryLock(filepath.Join(dir, lockFileName))
		if err != nil {
			return nil, fmt.Errorf("writer lock: %w", err)
		}
		b.lock = lock
	}

	if err := b.load(ctx); err != nil {
		_ = b.release()
		return nil, err
	}

	if !opts.ReadOnly {
		if n, err := b.attrs.Prune(ctx); err != nil {
			b.logger.Warn("pruning stale attributes failed", "error", err)
		} else if n > 0 {
			b.logger.Debug("pruned stale attributes", "count", n)
		}
	}
	return b, nil
}

func (b *Backend) load(ctx context.Context) error {
	a, err := b.attrs.Load(ctx)
	if err != nil {
		if errors.Is(err, attrs.ErrNotFound) {
			return fmt.Errorf("%w: attributes missing in %s", ErrCorrupt, b.dir)
		}
		if errors.Is(err, attrs.ErrCorrupt) {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		return err
	}
	if err := validateAttributes(a); err != nil {
		return err
	}
	if err := b.resolveSpaces(a); err != nil {
		return err
	}
	if _, err := compress.ParseType(a.Compression); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	flag := os.O_RDWR
	if b.opts.ReadOnly {
		flag = os.O_RDONLY
	}
	if b.data, err = b.openFile(dataFileName, dataMagic, flag); err != nil {
		return err
	}
	if b.index, err = b.openFile(indexFileName, indexMagic, flag); err != nil {
		return err
	}
	return b.adopt(a)
}

// adopt installs a as the committed state and recomputes the data end.
func (b *Backend) adopt(a *Attributes) error {
	end := int64(fileHeaderSize)
	if a.TotalEpisodes > 0 {
		e, err := readIndexEntry(b.index, a.TotalEpisodes-1)
		if err != nil {
			return err
		}
		end = e.Offset + int64(e.Length)
	}
	b.cur = a
	b.dataEnd = end
	return nil
}

func (b *Backend) resolveSpaces(a *Attributes) error {
	obs, err := space.Unmarshal(a.ObservationSpace)
	if err != nil {
		return fmt.Errorf("%w: observation space: %w", ErrCorrupt, err)
	}
	act, err := space.Unmarshal(a.ActionSpace)
	if err != nil {
		return fmt.Errorf("%w: action space: %w", ErrCorrupt, err)
	}
	b.obsSpace, b.actSpace = obs, act
	b.obsColumn, b.actColumn = obs, act
	if a.FlattenObservations {
		b.obsColumn = space.FlattenSpace(obs)
	}
	if a.FlattenActions {
		b.actColumn = space.FlattenSpace(act)
	}
	return nil
}

func (b *Backend) openFile(name, magic string, flag int) (fs.File, error) {
	f, err := b.opts.FS.OpenFile(filepath.Join(b.dir, name), flag, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing", ErrCorrupt, name)
		}
		return nil, err
	}
	if err := checkFileHeader(f, magic); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// Dir returns the backend directory.
func (b *Backend) Dir() string { return b.dir }

// ReadOnly reports whether the backend rejects writes.
func (b *Backend) ReadOnly() bool { return b.opts.ReadOnly }

// Attributes returns a copy of the committed attributes.
func (b *Backend) Attributes() *Attributes {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cur == nil {
		return nil
	}
	return b.cur.Clone()
}

// ObservationSpace returns the declared observation space.
func (b *Backend) ObservationSpace() space.Space { return b.obsSpace }

// ActionSpace returns the declared action space.
func (b *Backend) ActionSpace() space.Space { return b.actSpace }

// TotalEpisodes returns the committed episode count.
func (b *Backend) TotalEpisodes() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.cur == nil {
		return 0
	}
	return b.cur.TotalEpisodes
}

// WriteEpisode appends ep, assigns ep.ID and returns the new id.
//
// On error the committed totals are unchanged and ep.ID is not modified.
func (b *Backend) WriteEpisode(ctx context.Context, ep *episode.Episode) (id uint64, err error) {
	start := time.Now()
	size := 0
	defer func() { b.opts.Observer.ObserveWrite(time.Since(start), size, err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if b.opts.ReadOnly {
		return 0, ErrReadOnly
	}
	if _, err := b.opts.FS.Stat(b.dir); errors.Is(err, os.ErrNotExist) {
		return 0, b.deleted()
	}
	if ep.TotalSteps != len(ep.Rewards) {
		return 0, fmt.Errorf("%w: total steps %d but %d rewards", ErrInvalidEpisode, ep.TotalSteps, len(ep.Rewards))
	}

	if uint64(ep.TotalSteps) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d steps exceed the index limit", ErrInvalidEpisode, ep.TotalSteps)
	}

	body, err := b.encode(ep)
	if err != nil {
		return 0, err
	}
	if uint64(len(body)) > uint64(maxFrameBody) {
		return 0, fmt.Errorf("%w: record of %d bytes exceeds %d", ErrInvalidEpisode, len(body), maxFrameBody)
	}
	record, crc := frame(body)
	size = len(record)

	id = b.cur.TotalEpisodes
	entry := indexEntry{
		Offset: b.dataEnd,
		Length: uint32(len(record)),
		Steps:  uint32(ep.TotalSteps),
		CRC:    crc,
	}

	if _, err := b.data.WriteAt(record, entry.Offset); err != nil {
		return 0, fmt.Errorf("write record %d: %w", id, err)
	}
	if _, err := b.index.WriteAt(entry.encode(), indexOffset(id)); err != nil {
		return 0, fmt.Errorf("write index entry %d: %w", id, err)
	}
	if b.opts.Durability == DurabilitySync {
		if err := b.data.Sync(); err != nil {
			return 0, fmt.Errorf("sync data: %w", err)
		}
		if err := b.index.Sync(); err != nil {
			return 0, fmt.Errorf("sync index: %w", err)
		}
	}

	next := b.cur.Clone()
	next.TotalEpisodes++
	next.TotalSteps += uint64(ep.TotalSteps)
	if err := b.attrs.Save(ctx, next); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, b.deleted()
		}
		return 0, fmt.Errorf("commit episode %d: %w", id, err)
	}

	b.cur = next
	b.dataEnd += int64(len(record))
	ep.ID = id
	b.logger.Debug("episode written", "id", id, "steps", ep.TotalSteps, "bytes", len(record))
	return id, nil
}

// deleted closes a backend whose directory was removed underneath it.
// The caller holds b.mu.
func (b *Backend) deleted() error {
	b.closed = true
	if err := b.release(); err != nil {
		b.logger.Warn("releasing deleted backend failed", "error", err)
	}
	return fmt.Errorf("%w: %s was deleted", ErrClosed, b.dir)
}

func (b *Backend) encode(ep *episode.Episode) ([]byte, error) {
	p, err := episode.Encode(ep, b.obsColumn, b.actColumn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEpisode, err)
	}
	raw, err := codec.CBOR{}.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	ct, _ := compress.ParseType(b.cur.Compression)
	return compress.Compress(raw, ct)
}

// ReadEpisode loads the episode with the given id.
func (b *Backend) ReadEpisode(ctx context.Context, id uint64) (ep *episode.Episode, err error) {
	start := time.Now()
	defer func() { b.opts.Observer.ObserveRead(time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	if id >= b.cur.TotalEpisodes {
		return nil, fmt.Errorf("%w: %d (total %d)", ErrInvalidIndex, id, b.cur.TotalEpisodes)
	}

	entry, err := readIndexEntry(b.index, id)
	if err != nil {
		return nil, err
	}
	raw, ok := b.cache.Get(id)
	if !ok {
		body, err := readFrame(b.data, entry)
		if err != nil {
			return nil, err
		}
		if raw, err = compress.Decompress(body); err != nil {
			return nil, fmt.Errorf("%w: episode %d: %w", ErrCorrupt, id, err)
		}
		b.cache.Set(id, raw)
	}

	var p episode.Payload
	if err := (codec.CBOR{}).Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: episode %d: %w", ErrCorrupt, id, err)
	}
	ep, err = episode.Decode(id, &p, b.obsColumn, b.actColumn)
	if err != nil {
		return nil, fmt.Errorf("%w: episode %d: %w", ErrCorrupt, id, err)
	}
	if ep.TotalSteps != int(entry.Steps) {
		return nil, fmt.Errorf("%w: episode %d has %d steps, index says %d", ErrCorrupt, id, ep.TotalSteps, entry.Steps)
	}
	return ep, nil
}

// CacheStats returns the record cache hit and miss counts.
func (b *Backend) CacheStats() (hits, misses int64) { return b.cache.Stats() }

// StepCount returns the number of steps of episode id from the index alone.
func (b *Backend) StepCount(id uint64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}
	if id >= b.cur.TotalEpisodes {
		return 0, fmt.Errorf("%w: %d (total %d)", ErrInvalidIndex, id, b.cur.TotalEpisodes)
	}
	entry, err := readIndexEntry(b.index, id)
	if err != nil {
		return 0, err
	}
	return int(entry.Steps), nil
}

// Refresh reloads attributes committed by another Backend on the same
// directory.
func (b *Backend) Refresh(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	a, err := b.attrs.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if a.ID <= b.cur.ID {
		return nil
	}
	if a.TotalEpisodes < b.cur.TotalEpisodes {
		return fmt.Errorf("%w: episode count went backwards (%d -> %d)", ErrCorrupt, b.cur.TotalEpisodes, a.TotalEpisodes)
	}
	return b.adopt(a)
}

// Close syncs and closes the backend files. Further calls fail with ErrClosed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	if !b.opts.ReadOnly && b.opts.Durability == DurabilityAsync {
		for _, f := range []fs.File{b.data, b.index} {
			if err := f.Sync(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := b.release(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (b *Backend) release() error {
	var firstErr error
	for _, f := range []fs.File{b.data, b.index} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.data, b.index = nil, nil
	b.cache.Purge()
	if err := b.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	b.lock = nil
	return firstErr
}

// Delete closes the backend and removes its directory. A closed backend
// fails with ErrClosed and leaves the directory alone.
func (b *Backend) Delete(_ context.Context) error {
	if b.opts.ReadOnly {
		return ErrReadOnly
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := b.Close(); err != nil {
		b.logger.Warn("close before delete failed", "error", err)
	}
	if err := b.opts.FS.RemoveAll(b.dir); err != nil {
		return err
	}
	b.logger.Debug("backend deleted")
	return nil
}

// Exists reports whether dir holds a backend.
func Exists(fsys fs.FileSystem, dir string) (bool, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	return fs.Exists(fsys, filepath.Join(dir, attrs.CurrentFileName))
}

func validateAttributes(a *Attributes) error {
	if a == nil {
		return fmt.Errorf("%w: no attributes", ErrCorrupt)
	}
	if a.DatasetName == "" {
		return fmt.Errorf("%w: dataset name missing", ErrCorrupt)
	}
	if a.FormatVersion == "" {
		return fmt.Errorf("%w: format version missing", ErrCorrupt)
	}
	if len(a.ObservationSpace) == 0 || len(a.ActionSpace) == 0 {
		return fmt.Errorf("%w: spaces missing", ErrCorrupt)
	}
	return nil
}

func isOccupied(fsys fs.FileSystem, dir string) (bool, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

func createFile(fsys fs.FileSystem, path, magic string) error {
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	if err := writeFileHeader(f, magic); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
