package episodb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/episodb/episode"
	"github.com/hupe1980/episodb/internal/ingest"
	"github.com/hupe1980/episodb/internal/storage"
	"github.com/hupe1980/episodb/internal/view"
	"github.com/hupe1980/episodb/space"
)

// Attributes are the persisted root attributes of a dataset.
type Attributes = storage.Attributes

// Metadata describes a dataset to be created.
type Metadata struct {
	Name    string
	EnvSpec string

	ObservationSpace space.Space
	ActionSpace      space.Space

	// FlattenObservations stores observations as flat float64 vectors.
	FlattenObservations bool
	// FlattenActions stores actions as flat float64 vectors.
	FlattenActions bool

	Author  string
	CodeURL string
}

// DatasetSpec is a snapshot of a dataset handle's metadata. Totals are the
// handle's own totals, not the backend's.
type DatasetSpec struct {
	Name          string
	EnvSpec       string
	FormatVersion string

	TotalEpisodes uint64
	TotalSteps    uint64

	ObservationSpace    space.Space
	ActionSpace         space.Space
	FlattenObservations bool
	FlattenActions      bool

	CombinedDatasets []string
	Author           string
	CodeURL          string
	CreatedAt        time.Time
}

// Collector produces raw episode buffers. Drain returns the buffers
// recorded since the previous call and forgets them.
type Collector interface {
	Drain() []episode.Buffer
}

// sharedBackend is a backend referenced by every handle derived from the
// same Open or Create.
type sharedBackend struct {
	*storage.Backend
	refs atomic.Int64

	// root is the directory Delete removes. It is the backend directory
	// unless a registry owns the dataset.
	root string
	// untrack detaches the backend from its registry, if any.
	untrack   func()
	untrackOnce sync.Once
}

func newSharedBackend(b *storage.Backend) *sharedBackend {
	s := &sharedBackend{Backend: b, root: b.Dir()}
	s.refs.Store(1)
	return s
}

func (s *sharedBackend) acquire() *sharedBackend {
	s.refs.Add(1)
	return s
}

func (s *sharedBackend) detach() {
	s.untrackOnce.Do(func() {
		if s.untrack != nil {
			s.untrack()
		}
	})
}

func (s *sharedBackend) release() error {
	if s.refs.Add(-1) == 0 {
		s.detach()
		return s.Close()
	}
	return nil
}

// lockedRand serializes access to a rand.Rand.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) sample(v *view.View, k int) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return v.Sample(l.r, k)
}

// Dataset is a handle on a dataset: a shared backend plus the handle's own
// view of episode ids.
//
// Handles derived with FilterEpisodes share the backend but not the view.
// Appending through one handle never changes the view or totals of another.
// A Dataset is safe for concurrent use.
type Dataset struct {
	mu sync.RWMutex

	backend *sharedBackend
	view    *view.View
	steps   uint64
	rng     *lockedRand

	opts   options
	logger *Logger
	closed bool
}

// Create creates a new, empty dataset in dir.
func Create(ctx context.Context, dir string, md Metadata, optFns ...Option) (*Dataset, error) {
	o := applyOptions(optFns)

	a, err := md.attributes()
	if err != nil {
		return nil, err
	}
	sopts, err := o.storageOptions()
	if err != nil {
		return nil, err
	}

	b, err := storage.Create(ctx, dir, a, sopts...)
	logger := o.logger.WithDataset(md.Name)
	logger.LogOpen(ctx, dir, 0, err)
	if err != nil {
		return nil, translateError(err)
	}
	return newDataset(newSharedBackend(b), view.Empty(), 0, o.rng, o), nil
}

// Open opens the dataset stored in dir with a view of all its episodes.
func Open(ctx context.Context, dir string, optFns ...Option) (*Dataset, error) {
	o := applyOptions(optFns)

	sopts, err := o.storageOptions()
	if err != nil {
		return nil, err
	}
	b, err := storage.Open(ctx, dir, sopts...)
	if err != nil {
		o.logger.LogOpen(ctx, dir, 0, err)
		return nil, translateError(err)
	}

	a := b.Attributes()
	if err := checkVersion(a.FormatVersion); err != nil {
		_ = b.Close()
		o.logger.LogOpen(ctx, dir, 0, err)
		return nil, err
	}

	d := newDataset(newSharedBackend(b), view.Full(a.TotalEpisodes), a.TotalSteps, o.rng, o)
	d.logger.LogOpen(ctx, dir, a.TotalEpisodes, nil)
	return d, nil
}

func newDataset(b *sharedBackend, v *view.View, steps uint64, rng *lockedRand, o options) *Dataset {
	return &Dataset{
		backend: b,
		view:    v,
		steps:   steps,
		rng:     rng,
		opts:    o,
		logger:  o.logger.WithDataset(b.Attributes().DatasetName),
	}
}

func (md Metadata) attributes() (*Attributes, error) {
	if md.Name == "" {
		return nil, errors.New("dataset name is required")
	}
	if md.ObservationSpace == nil || md.ActionSpace == nil {
		return nil, errors.New("observation and action spaces are required")
	}
	obs, err := space.Marshal(md.ObservationSpace)
	if err != nil {
		return nil, fmt.Errorf("observation space: %w", err)
	}
	act, err := space.Marshal(md.ActionSpace)
	if err != nil {
		return nil, fmt.Errorf("action space: %w", err)
	}
	return &Attributes{
		DatasetName:         md.Name,
		EnvSpec:             md.EnvSpec,
		FormatVersion:       FormatVersion,
		FlattenObservations: md.FlattenObservations,
		FlattenActions:      md.FlattenActions,
		ObservationSpace:    obs,
		ActionSpace:         act,
		Author:              md.Author,
		CodeURL:             md.CodeURL,
	}, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.backend.Attributes().DatasetName }

// Dir returns the dataset directory.
func (d *Dataset) Dir() string { return d.backend.Dir() }

// Len returns the number of episodes visible through this handle.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view.Len()
}

// EpisodeIndices returns the visible episode ids in ascending order.
func (d *Dataset) EpisodeIndices() []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view.IDs()
}

// TotalEpisodes returns the handle's episode count.
func (d *Dataset) TotalEpisodes() uint64 {
	return uint64(d.Len())
}

// TotalSteps returns the step sum of the visible episodes.
func (d *Dataset) TotalSteps() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.steps
}

// Spec returns a snapshot of the handle's metadata.
func (d *Dataset) Spec() DatasetSpec {
	a := d.backend.Attributes()

	d.mu.RLock()
	defer d.mu.RUnlock()
	return DatasetSpec{
		Name:                a.DatasetName,
		EnvSpec:             a.EnvSpec,
		FormatVersion:       a.FormatVersion,
		TotalEpisodes:       uint64(d.view.Len()),
		TotalSteps:          d.steps,
		ObservationSpace:    d.backend.ObservationSpace(),
		ActionSpace:         d.backend.ActionSpace(),
		FlattenObservations: a.FlattenObservations,
		FlattenActions:      a.FlattenActions,
		CombinedDatasets:    slices.Clone(a.CombinedDatasets),
		Author:              a.Author,
		CodeURL:             a.CodeURL,
		CreatedAt:           a.CreatedAt,
	}
}

// ObservationSpace returns the declared observation space.
func (d *Dataset) ObservationSpace() space.Space { return d.backend.ObservationSpace() }

// ActionSpace returns the declared action space.
func (d *Dataset) ActionSpace() space.Space { return d.backend.ActionSpace() }

// RecoverEnvSpec returns the environment spec recorded at creation,
// verbatim. It is empty when none was recorded.
func (d *Dataset) RecoverEnvSpec() string { return d.backend.Attributes().EnvSpec }

// SetSeed reseeds the random source of this handle. Handles derived from it
// afterwards share the new source.
func (d *Dataset) SetSeed(seed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rng = &lockedRand{r: newRand(seed)}
}

func (d *Dataset) snapshot() (*view.View, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	return d.view, nil
}

func (d *Dataset) read(ctx context.Context, id uint64) (*episode.Episode, error) {
	ep, err := d.backend.ReadEpisode(ctx, id)
	return ep, translateError(err)
}

// Get returns the episode at position i of the view.
func (d *Dataset) Get(ctx context.Context, i int) (*episode.Episode, error) {
	v, err := d.snapshot()
	if err != nil {
		return nil, err
	}
	id, err := v.At(i)
	if err != nil {
		return nil, translateError(err)
	}
	return d.read(ctx, id)
}

// IterateEpisodes yields episodes lazily. Without ids it walks the whole
// view in ascending order; otherwise it yields the given ids in the order
// given. An id outside the view yields ErrInvalidIndex and ends the
// iteration, as does any read error.
//
// The sequence can be ranged over more than once. Each pass sees the view
// as it is when the pass starts.
func (d *Dataset) IterateEpisodes(ctx context.Context, ids ...uint64) iter.Seq2[*episode.Episode, error] {
	return func(yield func(*episode.Episode, error) bool) {
		v, err := d.snapshot()
		if err != nil {
			yield(nil, err)
			return
		}

		seq := v.All()
		if len(ids) > 0 {
			seq = slices.Values(ids)
		}
		for id := range seq {
			if !v.Contains(id) {
				yield(nil, fmt.Errorf("%w: %d is not in the view", ErrInvalidIndex, id))
				return
			}
			ep, err := d.read(ctx, id)
			if !yield(ep, err) || err != nil {
				return
			}
		}
	}
}

// SampleEpisodes returns k distinct visible episodes drawn uniformly without
// replacement, in the order drawn.
func (d *Dataset) SampleEpisodes(ctx context.Context, k int) (_ []*episode.Episode, err error) {
	start := time.Now()
	defer func() { d.opts.metricsCollector.RecordSample(k, time.Since(start), err) }()

	v, err := d.snapshot()
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	rng := d.rng
	d.mu.RUnlock()

	ids, err := rng.sample(v, k)
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]*episode.Episode, len(ids))
	for i, id := range ids {
		if out[i], err = d.read(ctx, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FilterEpisodes returns a new handle on the same backend whose view holds
// the visible episodes for which pred returns true.
func (d *Dataset) FilterEpisodes(ctx context.Context, pred func(*episode.Episode) bool) (*Dataset, error) {
	start := time.Now()
	v, err := d.snapshot()
	if err != nil {
		return nil, err
	}

	kept, steps, err := view.Filter(ctx, v, d.read, pred)
	keptLen := 0
	if kept != nil {
		keptLen = kept.Len()
	}
	d.opts.metricsCollector.RecordFilter(v.Len(), keptLen, time.Since(start), err)
	d.logger.LogFilter(ctx, v.Len(), keptLen, err)
	if err != nil {
		return nil, translateError(err)
	}

	d.mu.RLock()
	rng := d.rng
	d.mu.RUnlock()
	return newDataset(d.backend.acquire(), kept, steps, rng, d.opts), nil
}

// UpdateDatasetFromBuffer validates and appends buffers in order. The new
// episodes are added to this handle's view and totals only.
//
// If a buffer fails, the episodes written before it stay in the backend and
// in this view, and the error is returned.
func (d *Dataset) UpdateDatasetFromBuffer(ctx context.Context, buffers []episode.Buffer) (err error) {
	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.backend.ReadOnly() {
		return ErrReadOnly
	}

	a := d.backend.Attributes()
	schema := ingest.Schema{
		Observation:         d.backend.ObservationSpace(),
		Action:              d.backend.ActionSpace(),
		FlattenObservations: a.FlattenObservations,
		FlattenActions:      a.FlattenActions,
	}

	ids := make([]uint64, 0, len(buffers))
	var steps uint64
	defer func() {
		if len(ids) > 0 {
			nv, xerr := d.view.Extend(ids)
			if xerr != nil {
				err = errors.Join(err, xerr)
			} else {
				d.view = nv
				d.steps += steps
			}
		}
		d.opts.metricsCollector.RecordUpdate(len(buffers), len(buffers)-len(ids), time.Since(start))
		d.logger.LogUpdate(ctx, len(buffers), len(ids), err)
	}()

	for i, buf := range buffers {
		if err := ctx.Err(); err != nil {
			return err
		}
		ep, err := ingest.Ingest(i, buf, schema)
		if err != nil {
			return translateError(err)
		}
		id, err := d.backend.WriteEpisode(ctx, ep)
		if err != nil {
			return translateError(err)
		}
		ids = append(ids, id)
		steps += uint64(ep.TotalSteps)
	}
	return nil
}

// UpdateDatasetFromCollector drains c and appends its buffers.
func (d *Dataset) UpdateDatasetFromCollector(ctx context.Context, c Collector) error {
	return d.UpdateDatasetFromBuffer(ctx, c.Drain())
}

// Close releases the handle. The backend is closed with its last handle.
func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return translateError(d.backend.release())
}

// Delete removes the dataset's storage. Every handle on the backend is
// invalidated and further operations on them fail.
func (d *Dataset) Delete(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	root := d.backend.root
	err := translateError(d.backend.Delete(ctx))
	if err == nil && root != d.backend.Dir() {
		err = d.opts.filesystem().RemoveAll(root)
	}
	d.logger.LogDelete(ctx, root, err)
	if err != nil {
		return err
	}
	d.closed = true
	d.backend.detach()
	_ = d.backend.release()
	return nil
}

// Apply calls fn on the given episodes, or on every visible episode when
// ids is empty, and returns the results in iteration order.
func Apply[T any](ctx context.Context, d *Dataset, fn func(*episode.Episode) T, ids ...uint64) ([]T, error) {
	var out []T
	for ep, err := range d.IterateEpisodes(ctx, ids...) {
		if err != nil {
			return nil, err
		}
		out = append(out, fn(ep))
	}
	return out, nil
}
