// Package metrics exposes Prometheus collectors for the retrieval engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hybridrag"

// Metrics groups the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	RetrieveDuration *prometheus.HistogramVec
	RetrieveResults  prometheus.Histogram
	RecordsAdded     prometheus.Counter
	LexicalRebuilds  prometheus.Counter
	RerankFallbacks  *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	IndexSize        prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RetrieveDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieve",
				Name:      "duration_seconds",
				Help:      "Retrieve latency by stage.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"stage"}, // embed, search, total
		),
		RetrieveResults: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieve",
				Name:      "results",
				Help:      "Number of records returned per retrieve.",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
		RecordsAdded: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "records_added_total",
				Help:      "Chunk records appended to the index.",
			},
		),
		LexicalRebuilds: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "lexical_rebuilds_total",
				Help:      "Full rebuilds of the lexical index.",
			},
		),
		RerankFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rerank",
				Name:      "fallbacks_total",
				Help:      "Rerank passes that degraded to fused order.",
			},
			[]string{"reason"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Query cache lookups by result.",
			},
			[]string{"result"}, // hit, miss
		),
		IndexSize: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "index",
				Name:      "records",
				Help:      "Records currently held by the index.",
			},
		),
	}
}

func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.RetrieveDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveResults(n int) {
	if m == nil {
		return
	}
	m.RetrieveResults.Observe(float64(n))
}

func (m *Metrics) AddRecords(n, total int) {
	if m == nil {
		return
	}
	m.RecordsAdded.Add(float64(n))
	m.IndexSize.Set(float64(total))
}

func (m *Metrics) SetIndexSize(total int) {
	if m == nil {
		return
	}
	m.IndexSize.Set(float64(total))
}

func (m *Metrics) LexicalRebuilt() {
	if m == nil {
		return
	}
	m.LexicalRebuilds.Inc()
}

func (m *Metrics) RerankFallback(reason string) {
	if m == nil {
		return
	}
	m.RerankFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
