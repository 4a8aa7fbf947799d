// Package prometheus exports dataset metrics to Prometheus.
//
//	mc, _ := prometheus.NewCollector(prom.DefaultRegisterer, "episodb")
//	ds, _ := episodb.Open(ctx, dir, episodb.WithMetricsCollector(mc))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/episodb"
)

// Collector implements episodb.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency    *prometheus.HistogramVec
	ops          *prometheus.CounterVec
	writeBytes   prometheus.Counter
	episodes     *prometheus.CounterVec
	filterKept   prometheus.Histogram
	combineInput prometheus.Histogram
}

var _ episodb.MetricsCollector = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg. namespace
// prefixes every metric name.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of dataset operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Dataset operations by type and outcome",
		}, []string{"op", "status"}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_bytes_total",
			Help:      "Bytes of episode records written",
		}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_episodes_total",
			Help:      "Buffers submitted for append by outcome",
		}, []string{"status"}),
		filterKept: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "filter_kept_ratio",
			Help:      "Fraction of scanned episodes kept by a filter",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		combineInput: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "combine_inputs",
			Help:      "Number of datasets per combine",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 6),
		}),
	}

	for _, m := range []prometheus.Collector{c.opLatency, c.ops, c.writeBytes, c.episodes, c.filterKept, c.combineInput} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	c.observeStatus(op, d, status(err))
}

func (c *Collector) observeStatus(op string, d time.Duration, s string) {
	c.opLatency.WithLabelValues(op, s).Observe(d.Seconds())
	c.ops.WithLabelValues(op, s).Inc()
}

// RecordWrite implements episodb.MetricsCollector.
func (c *Collector) RecordWrite(bytes int, d time.Duration, err error) {
	c.observe("write", d, err)
	if err == nil {
		c.writeBytes.Add(float64(bytes))
	}
}

// RecordRead implements episodb.MetricsCollector.
func (c *Collector) RecordRead(d time.Duration, err error) {
	c.observe("read", d, err)
}

// RecordUpdate implements episodb.MetricsCollector.
func (c *Collector) RecordUpdate(count, failed int, d time.Duration) {
	s := "success"
	if failed > 0 {
		s = "error"
	}
	c.observeStatus("update", d, s)
	c.episodes.WithLabelValues("success").Add(float64(count - failed))
	c.episodes.WithLabelValues("error").Add(float64(failed))
}

// RecordFilter implements episodb.MetricsCollector.
func (c *Collector) RecordFilter(scanned, kept int, d time.Duration, err error) {
	c.observe("filter", d, err)
	if err == nil && scanned > 0 {
		c.filterKept.Observe(float64(kept) / float64(scanned))
	}
}

// RecordSample implements episodb.MetricsCollector.
func (c *Collector) RecordSample(_ int, d time.Duration, err error) {
	c.observe("sample", d, err)
}

// RecordCombine implements episodb.MetricsCollector.
func (c *Collector) RecordCombine(inputs, _ int, d time.Duration, err error) {
	c.observe("combine", d, err)
	if err == nil {
		c.combineInput.Observe(float64(inputs))
	}
}
