package episodb

import (
	"log/slog"
	"math/rand/v2"

	"github.com/hupe1980/episodb/internal/compress"
	"github.com/hupe1980/episodb/internal/fs"
	"github.com/hupe1980/episodb/internal/storage"
)

// Durability controls when written episodes reach stable storage.
type Durability int

const (
	// DurabilitySync syncs every write before it is committed. This is the default.
	DurabilitySync Durability = iota
	// DurabilityAsync leaves syncing to the OS and to Close.
	// A crash may lose the most recent episodes, never committed totals
	// pointing at missing data.
	DurabilityAsync
)

// Compression names the record compression of a new dataset.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZSTD Compression = "zstd"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	durability       Durability
	compression      Compression
	readOnly         bool
	writerLock       bool
	cacheBytes       int64
	rng              *lockedRand
	seed             *uint64
	fs               fs.FileSystem
}

// Option configures dataset creation and opening.
type Option func(*options)

// WithMetricsCollector sets the collector for operational metrics.
//
// Example:
//
//	metrics := &episodb.BasicMetricsCollector{}
//	ds, _ := episodb.Open(ctx, dir, episodb.WithMetricsCollector(metrics))
//	// ... use ds ...
//	stats := metrics.GetStats()
//	fmt.Printf("Reads: %d, Avg latency: %dns\n", stats.ReadCount, stats.ReadAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithDurability sets the durability mode of writes.
func WithDurability(d Durability) Option {
	return func(o *options) {
		o.durability = d
	}
}

// WithCompression sets the record compression of a new dataset.
// It is ignored when opening: the compression recorded at creation is used.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithReadOnly opens the dataset without write access.
func WithReadOnly(readOnly bool) Option {
	return func(o *options) {
		o.readOnly = readOnly
	}
}

// WithWriterLock takes an advisory lock on the dataset directory, so a
// second process opening it for writing fails instead of corrupting it.
func WithWriterLock(enabled bool) Option {
	return func(o *options) {
		o.writerLock = enabled
	}
}

// WithRand sets the random source used by SampleEpisodes. Every dataset
// opened with the same option value, including all datasets of a registry,
// draws from r under one lock. r must not be used elsewhere concurrently.
func WithRand(r *rand.Rand) Option {
	var shared *lockedRand
	if r != nil {
		shared = &lockedRand{r: r}
	}
	return func(o *options) {
		o.rng = shared
		o.seed = nil
	}
}

// WithSeed gives every dataset opened with this option its own PCG source
// seeded by seed.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = &seed
		o.rng = nil
	}
}

// WithCacheSize keeps up to n bytes of decompressed episode records in
// memory. Handles derived by FilterEpisodes share the cache. Zero disables it.
func WithCacheSize(n int64) Option {
	return func(o *options) {
		o.cacheBytes = n
	}
}

func withFS(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		durability:       DurabilitySync,
		compression:      CompressionNone,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.rng == nil && o.seed != nil {
		o.rng = &lockedRand{r: newRand(*o.seed)}
	}
	if o.rng == nil {
		o.rng = &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return o
}

func (o options) filesystem() fs.FileSystem {
	if o.fs == nil {
		return fs.Default
	}
	return o.fs
}

func (o options) storageOptions() ([]storage.Option, error) {
	ct, err := compress.ParseType(string(o.compression))
	if err != nil {
		return nil, err
	}
	d := storage.DurabilitySync
	if o.durability == DurabilityAsync {
		d = storage.DurabilityAsync
	}
	return []storage.Option{
		storage.WithFS(o.fs),
		storage.WithLogger(o.logger.Logger),
		storage.WithObserver(storageObserver{mc: o.metricsCollector}),
		storage.WithDurability(d),
		storage.WithCompression(ct),
		storage.WithReadOnly(o.readOnly),
		storage.WithWriterLock(o.writerLock),
		storage.WithCacheSize(o.cacheBytes),
	}, nil
}
