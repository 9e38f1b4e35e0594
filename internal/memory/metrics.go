package memory

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the tri-store coordinator.
type Metrics struct {
	AddsTotal    *prometheus.CounterVec
	DeletesTotal *prometheus.CounterVec
	QueriesTotal *prometheus.CounterVec

	StoreErrorsTotal *prometheus.CounterVec

	QueryDuration prometheus.Histogram
	AddDuration   prometheus.Histogram

	QueryCacheHitsTotal   prometheus.Counter
	QueryCacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers coordinator metrics.
//
// Registration happens once per process; repeated calls return the
// same instance, preventing duplicate-collector panics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AddsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ultramemory_adds_total",
					Help: "Total document adds by outcome status",
				},
				[]string{"status"}, // full, partial, failed
			),

			DeletesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ultramemory_deletes_total",
					Help: "Total document deletes by outcome status",
				},
				[]string{"status"}, // success, blocked, failed
			),

			QueriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ultramemory_queries_total",
					Help: "Total queries served by source set",
				},
				[]string{"source"}, // cache, stores
			),

			StoreErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ultramemory_store_errors_total",
					Help: "Backend errors by store",
				},
				[]string{"store"}, // vector, graph, cache
			),

			QueryDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "ultramemory_query_duration_seconds",
					Help:    "Duration of query fanout in seconds",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
				},
			),

			AddDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "ultramemory_add_duration_seconds",
					Help:    "Duration of document add in seconds",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
				},
			),

			QueryCacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ultramemory_query_cache_hits_total",
					Help: "Queries answered from the cache",
				},
			),

			QueryCacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ultramemory_query_cache_misses_total",
					Help: "Queries that went to the backing stores",
				},
			),
		}
	})

	return globalMetrics
}

// RecordAdd records an add outcome.
func (m *Metrics) RecordAdd(status Status, seconds float64) {
	m.AddsTotal.WithLabelValues(string(status)).Inc()
	m.AddDuration.Observe(seconds)
}

// RecordDelete records a delete outcome.
func (m *Metrics) RecordDelete(status Status) {
	m.DeletesTotal.WithLabelValues(string(status)).Inc()
}

// RecordQuery records a served query.
func (m *Metrics) RecordQuery(cacheHit bool, seconds float64) {
	if cacheHit {
		m.QueriesTotal.WithLabelValues("cache").Inc()
		m.QueryCacheHitsTotal.Inc()
	} else {
		m.QueriesTotal.WithLabelValues("stores").Inc()
		m.QueryCacheMissesTotal.Inc()
	}
	m.QueryDuration.Observe(seconds)
}

// RecordStoreError records a backend failure.
func (m *Metrics) RecordStoreError(store string) {
	m.StoreErrorsTotal.WithLabelValues(store).Inc()
}
