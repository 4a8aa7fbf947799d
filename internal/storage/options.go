package storage

import (
	"log/slog"
	"time"

	"github.com/hupe1980/episodb/internal/compress"
	"github.com/hupe1980/episodb/internal/fs"
)

// Durability controls when written episodes reach stable storage.
type Durability int

const (
	// DurabilitySync fsyncs the data and index files before every attributes
	// commit.
	DurabilitySync Durability = iota
	// DurabilityAsync leaves flushing to the OS until Close. Totals are still
	// committed atomically, but a power loss may lose recent episodes.
	DurabilityAsync
)

// Observer receives timing information for backend operations.
type Observer interface {
	ObserveWrite(d time.Duration, bytes int, err error)
	ObserveRead(d time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveWrite(time.Duration, int, error) {}
func (noopObserver) ObserveRead(time.Duration, error)       {}

// Options configures a Backend.
type Options struct {
	FS          fs.FileSystem
	Logger      *slog.Logger
	Observer    Observer
	Durability  Durability
	Compression compress.Type
	ReadOnly    bool
	// WriterLock takes an advisory lock on the directory so a second writer
	// process fails fast.
	WriterLock bool
	// CacheBytes bounds the cache of decompressed records. Zero disables it.
	CacheBytes int64
}

// Option mutates Options.
type Option func(*Options)

// WithFS sets the file system.
func WithFS(fsys fs.FileSystem) Option { return func(o *Options) { o.FS = fsys } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// WithObserver sets the operation observer.
func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

// WithDurability sets the durability mode.
func WithDurability(d Durability) Option { return func(o *Options) { o.Durability = d } }

// WithCompression sets the record compression used by Create.
// Open always uses the compression recorded in the attributes.
func WithCompression(t compress.Type) Option { return func(o *Options) { o.Compression = t } }

// WithReadOnly opens the backend without write access.
func WithReadOnly(ro bool) Option { return func(o *Options) { o.ReadOnly = ro } }

// WithWriterLock enables the advisory writer lock.
func WithWriterLock(enabled bool) Option { return func(o *Options) { o.WriterLock = enabled } }

// WithCacheSize sets the record cache capacity in bytes.
func WithCacheSize(n int64) Option { return func(o *Options) { o.CacheBytes = n } }

func applyOptions(optFns []Option) Options {
	o := Options{
		FS:         fs.Default,
		Logger:     slog.New(slog.DiscardHandler),
		Observer:   noopObserver{},
		Durability: DurabilitySync,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Observer == nil {
		o.Observer = noopObserver{}
	}
	return o
}
