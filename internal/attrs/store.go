package attrs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/episodb/blobstore"
)

const (
	// CurrentFileName names the pointer to the active record.
	CurrentFileName = "CURRENT"
	filePrefix      = "ATTRS-"
	fileSuffix      = ".bin"
)

// FileName returns the record file name for commit id.
func FileName(id uint64) string {
	return fmt.Sprintf("%s%06d%s", filePrefix, id, fileSuffix)
}

// Store loads and commits attributes on a BlobStore.
type Store struct {
	store blobstore.BlobStore
	mu    sync.Mutex
}

// NewStore creates a Store.
func NewStore(store blobstore.BlobStore) *Store {
	return &Store{store: store}
}

// Load reads the record named by CURRENT.
func (s *Store) Load(ctx context.Context) (*Attributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*Attributes, error) {
	current, err := blobstore.ReadAll(ctx, s.store, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	name := string(bytes.TrimSpace(current))
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return nil, fmt.Errorf("%w: CURRENT names %q", ErrCorrupt, name)
	}

	data, err := blobstore.ReadAll(ctx, s.store, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s missing", ErrCorrupt, name)
		}
		return nil, err
	}
	a, err := ReadBinary(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if FileName(a.ID) != name {
		return nil, fmt.Errorf("%w: %s holds commit %d", ErrCorrupt, name, a.ID)
	}
	return a, nil
}

// Save commits a as the next version. On success a.ID is advanced and the
// superseded record is removed. On failure a is left unchanged and CURRENT
// still names the previous record.
func (s *Store) Save(ctx context.Context, a *Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := a.Clone()
	next.ID = a.ID + 1
	name := FileName(next.ID)

	var buf bytes.Buffer
	if err := next.WriteBinary(&buf); err != nil {
		return err
	}
	if err := s.store.Put(ctx, name, buf.Bytes()); err != nil {
		return err
	}
	if err := s.store.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		_ = s.store.Delete(ctx, name)
		return err
	}

	if a.ID > 0 {
		_ = s.store.Delete(ctx, FileName(a.ID))
	}
	a.ID = next.ID
	return nil
}

// Prune removes records other than the one named by CURRENT and returns the
// number of removed files.
func (s *Store) Prune(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	names, err := s.store.List(ctx, filePrefix)
	if err != nil {
		return 0, err
	}
	keep := FileName(current.ID)
	removed := 0
	for _, name := range names {
		if name == keep || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		if err := s.store.Delete(ctx, name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
