package episodb

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/episodb/internal/storage"
)

// MetricsCollector receives operational metrics.
// Implement this interface to integrate with monitoring systems; see
// metrics/prometheus for a Prometheus implementation.
type MetricsCollector interface {
	// RecordWrite is called after each episode write with the stored record size.
	RecordWrite(bytes int, duration time.Duration, err error)

	// RecordRead is called after each episode read.
	RecordRead(duration time.Duration, err error)

	// RecordUpdate is called after each UpdateDatasetFromBuffer call.
	// failed is the number of buffers not written.
	RecordUpdate(count, failed int, duration time.Duration)

	// RecordFilter is called after each FilterEpisodes call.
	RecordFilter(scanned, kept int, duration time.Duration, err error)

	// RecordSample is called after each SampleEpisodes call.
	RecordSample(k int, duration time.Duration, err error)

	// RecordCombine is called after each Combine call.
	RecordCombine(inputs, episodes int, duration time.Duration, err error)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWrite(int, time.Duration, error)              {}
func (NoopMetricsCollector) RecordRead(time.Duration, error)                    {}
func (NoopMetricsCollector) RecordUpdate(int, int, time.Duration)               {}
func (NoopMetricsCollector) RecordFilter(int, int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordSample(int, time.Duration, error)             {}
func (NoopMetricsCollector) RecordCombine(int, int, time.Duration, error)       {}

// BasicMetricsCollector keeps in-memory counters.
type BasicMetricsCollector struct {
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteBytes      atomic.Int64
	WriteTotalNanos atomic.Int64
	ReadCount       atomic.Int64
	ReadErrors      atomic.Int64
	ReadTotalNanos  atomic.Int64
	UpdateCount     atomic.Int64
	UpdateEpisodes  atomic.Int64
	UpdateFailed    atomic.Int64
	FilterCount     atomic.Int64
	FilterScanned   atomic.Int64
	FilterKept      atomic.Int64
	SampleCount     atomic.Int64
	SampleErrors    atomic.Int64
	CombineCount    atomic.Int64
	CombineErrors   atomic.Int64
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(bytes int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteBytes.Add(int64(bytes))
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(count, failed int, _ time.Duration) {
	b.UpdateCount.Add(1)
	b.UpdateEpisodes.Add(int64(count - failed))
	b.UpdateFailed.Add(int64(failed))
}

// RecordFilter implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFilter(scanned, kept int, _ time.Duration, _ error) {
	b.FilterCount.Add(1)
	b.FilterScanned.Add(int64(scanned))
	b.FilterKept.Add(int64(kept))
}

// RecordSample implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSample(_ int, _ time.Duration, err error) {
	b.SampleCount.Add(1)
	if err != nil {
		b.SampleErrors.Add(1)
	}
}

// RecordCombine implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCombine(_, _ int, _ time.Duration, err error) {
	b.CombineCount.Add(1)
	if err != nil {
		b.CombineErrors.Add(1)
	}
}

// GetStats returns a snapshot of the counters.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		WriteCount:     b.WriteCount.Load(),
		WriteErrors:    b.WriteErrors.Load(),
		WriteBytes:     b.WriteBytes.Load(),
		WriteAvgNanos:  avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		ReadCount:      b.ReadCount.Load(),
		ReadErrors:     b.ReadErrors.Load(),
		ReadAvgNanos:   avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		UpdateCount:    b.UpdateCount.Load(),
		UpdateEpisodes: b.UpdateEpisodes.Load(),
		UpdateFailed:   b.UpdateFailed.Load(),
		FilterCount:    b.FilterCount.Load(),
		FilterScanned:  b.FilterScanned.Load(),
		FilterKept:     b.FilterKept.Load(),
		SampleCount:    b.SampleCount.Load(),
		SampleErrors:   b.SampleErrors.Load(),
		CombineCount:   b.CombineCount.Load(),
		CombineErrors:  b.CombineErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	WriteCount     int64
	WriteErrors    int64
	WriteBytes     int64
	WriteAvgNanos  int64
	ReadCount      int64
	ReadErrors     int64
	ReadAvgNanos   int64
	UpdateCount    int64
	UpdateEpisodes int64
	UpdateFailed   int64
	FilterCount    int64
	FilterScanned  int64
	FilterKept     int64
	SampleCount    int64
	SampleErrors   int64
	CombineCount   int64
	CombineErrors  int64
}

// storageObserver forwards backend timings to a MetricsCollector.
type storageObserver struct {
	mc MetricsCollector
}

var _ storage.Observer = storageObserver{}

func (o storageObserver) ObserveWrite(d time.Duration, bytes int, err error) {
	o.mc.RecordWrite(bytes, d, err)
}

func (o storageObserver) ObserveRead(d time.Duration, err error) {
	o.mc.RecordRead(d, err)
}
