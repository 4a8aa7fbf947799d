package episodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/internal/fs"
	"github.com/hupe1980/episodb/internal/storage"
)

// EnvDatasetsPath overrides the default registry root.
const EnvDatasetsPath = "EPISODB_DATASETS_PATH"

// dataDirName is the per-dataset subdirectory holding the backend.
const dataDirName = "data"

// DatasetsPath returns the registry root: $EPISODB_DATASETS_PATH if set,
// else ~/.episodb/datasets.
func DatasetsPath() (string, error) {
	if p := os.Getenv(EnvDatasetsPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve datasets path: %w", err)
	}
	return filepath.Join(home, ".episodb", "datasets"), nil
}

// Registry manages named datasets under a root directory. Each dataset
// lives in <root>/<name>/data.
type Registry struct {
	root   string
	optFns []Option
	opts   options

	mu   sync.Mutex
	open map[string]map[*sharedBackend]struct{}
}

// NewRegistry returns a registry rooted at root. optFns apply to every
// dataset the registry creates or loads.
func NewRegistry(root string, optFns ...Option) *Registry {
	o := applyOptions(optFns)
	if o.fs == nil {
		o.fs = fs.Default
	}
	return &Registry{
		root:   root,
		optFns: optFns,
		opts:   o,
		open:   make(map[string]map[*sharedBackend]struct{}),
	}
}

// DefaultRegistry returns a registry rooted at DatasetsPath.
func DefaultRegistry(optFns ...Option) (*Registry, error) {
	root, err := DatasetsPath()
	if err != nil {
		return nil, err
	}
	return NewRegistry(root, optFns...), nil
}

// Root returns the registry root directory.
func (r *Registry) Root() string { return r.root }

// Path returns the directory of the named dataset.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.root, name)
}

// DataPath returns the backend directory of the named dataset.
func (r *Registry) DataPath(name string) string {
	return filepath.Join(r.root, name, dataDirName)
}

func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid dataset name %q", name)
	}
	return nil
}

func (r *Registry) options(optFns []Option) []Option {
	return append(append(append([]Option{}, r.optFns...), withFS(r.opts.fs)), optFns...)
}

// track registers the backend of d under name so Delete can close it.
// Deleting d removes the whole dataset directory.
func (r *Registry) track(name string, d *Dataset) *Dataset {
	sb := d.backend
	sb.root = r.Path(name)
	sb.untrack = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.open[name], sb)
		if len(r.open[name]) == 0 {
			delete(r.open, name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open[name] == nil {
		r.open[name] = make(map[*sharedBackend]struct{})
	}
	r.open[name][sb] = struct{}{}
	return d
}

// closeOpen closes every backend of name opened through r. Handles on them
// fail with ErrClosed afterwards.
func (r *Registry) closeOpen(ctx context.Context, name string) {
	r.mu.Lock()
	backends := r.open[name]
	delete(r.open, name)
	r.mu.Unlock()

	for sb := range backends {
		if err := sb.Close(); err != nil {
			r.opts.logger.WarnContext(ctx, "closing deleted dataset failed", "dataset", name, "error", err)
		}
	}
}

func (r *Registry) exists(name string) error {
	exists, err := storage.Exists(r.opts.fs, r.DataPath(name))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	return nil
}

// CreateDataset creates the dataset md.Name and appends buffers to it.
// If any buffer fails, the new dataset is removed and the error returned.
func (r *Registry) CreateDataset(ctx context.Context, md Metadata, buffers []episode.Buffer, optFns ...Option) (*Dataset, error) {
	if err := validateName(md.Name); err != nil {
		return nil, err
	}
	if err := r.exists(md.Name); err != nil {
		return nil, err
	}

	ds, err := Create(ctx, r.DataPath(md.Name), md, r.options(optFns)...)
	if err != nil {
		return nil, err
	}
	r.track(md.Name, ds)
	if err := ds.UpdateDatasetFromBuffer(ctx, buffers); err != nil {
		if derr := ds.Delete(ctx); derr != nil {
			err = errors.Join(err, derr)
		}
		_ = r.opts.fs.RemoveAll(r.Path(md.Name))
		return nil, err
	}
	return ds, nil
}

// Load opens the named dataset.
func (r *Registry) Load(ctx context.Context, name string, optFns ...Option) (*Dataset, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	ds, err := Open(ctx, r.DataPath(name), r.options(optFns)...)
	if err != nil {
		return nil, err
	}
	return r.track(name, ds), nil
}

// List returns the attributes of every dataset in the registry, keyed by
// name. Hidden directories and directories without a dataset are skipped;
// unreadable datasets are skipped with a warning. With compatibleOnly, only
// datasets whose format version this package can read are listed.
func (r *Registry) List(ctx context.Context, compatibleOnly bool) (map[string]*Attributes, error) {
	entries, err := r.opts.fs.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]*Attributes{}, nil
		}
		return nil, err
	}

	out := make(map[string]*Attributes, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ok, err := storage.Exists(r.opts.fs, r.DataPath(name))
		if err != nil || !ok {
			continue
		}

		b, err := storage.Open(ctx, r.DataPath(name), storage.WithFS(r.opts.fs), storage.WithReadOnly(true))
		if err != nil {
			r.opts.logger.WarnContext(ctx, "skipping unreadable dataset", "dataset", name, "error", err)
			continue
		}
		a := b.Attributes()
		_ = b.Close()

		if compatibleOnly && !CheckCompatibility(a.FormatVersion, SupportedRange).Readable() {
			continue
		}
		out[name] = a
	}
	return out, nil
}

// Delete removes the named dataset. Handles opened on it through this
// registry are closed and fail with ErrClosed afterwards.
func (r *Registry) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	exists, err := storage.Exists(r.opts.fs, r.DataPath(name))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.closeOpen(ctx, name)
	err = r.opts.fs.RemoveAll(r.Path(name))
	r.opts.logger.LogDelete(ctx, r.Path(name), err)
	return err
}

// Combine combines datasets into a new registry dataset called name.
func (r *Registry) Combine(ctx context.Context, name string, datasets []*Dataset, optFns ...Option) (*Dataset, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := r.exists(name); err != nil {
		return nil, err
	}
	ds, err := Combine(ctx, r.DataPath(name), name, datasets, r.options(optFns)...)
	if err != nil {
		_ = r.opts.fs.RemoveAll(r.Path(name))
		return nil, err
	}
	return r.track(name, ds), nil
}
