package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keywarden/keywarden"
	"github.com/keywarden/keywarden/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() keywarden.MetricsSnapshot
	AuditDropped() uint64
}

// Collector exposes engine metrics as a [prometheus.Collector]. It reads
// the snapshot on every scrape, so it never needs to observe individual
// events.
type Collector struct {
	source         metricsSource
	counterDescs   map[keywarden.MetricID]*prometheus.Desc
	histogramDescs map[keywarden.MetricID]*prometheus.Desc
	droppedDesc    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector that reads from the given engine.
func NewCollector(engine *keywarden.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource builds a collector from a custom source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:         source,
		counterDescs:   make(map[keywarden.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histogramDescs: make(map[keywarden.MetricID]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		droppedDesc: prometheus.NewDesc(
			"keywarden_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counterDescs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histogramDescs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return c
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range internaldefs.CounterDefs {
		ch <- c.counterDescs[def.ID]
	}
	for _, def := range internaldefs.HistogramDefs {
		ch <- c.histogramDescs[def.ID]
	}
	ch <- c.droppedDesc
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()

	for _, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(
			c.counterDescs[def.ID],
			prometheus.CounterValue,
			float64(snapshot.Counters[def.ID]),
		)
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))

		buckets := make(map[float64]uint64, len(internaldefs.HistogramFiniteBounds))
		for i, bound := range internaldefs.HistogramFiniteBounds {
			buckets[bound] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]

		// The engine snapshot carries bucket counts only, so the sum is
		// reported as zero.
		ch <- prometheus.MustNewConstHistogram(c.histogramDescs[def.ID], count, 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler returns an http.Handler serving the collector from a private
// registry. Nothing is registered globally; callers mount the handler
// wherever they expose metrics.
func (c *Collector) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
