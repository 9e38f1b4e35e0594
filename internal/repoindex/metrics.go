package repoindex

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for repository ingestion.
type Metrics struct {
	FilesTotal *prometheus.CounterVec
	RunsTotal  prometheus.Counter
}

// NewMetrics creates and registers ingestion metrics. Registration
// happens once per process; repeated calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			FilesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ultramemory_repo_files_total",
					Help: "Repository files processed by outcome",
				},
				[]string{"action"}, // indexed, updated, skipped, failed
			),

			RunsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ultramemory_repo_index_runs_total",
					Help: "Completed repository index runs",
				},
			),
		}
	})

	return globalMetrics
}

// RecordFile records one file outcome.
func (m *Metrics) RecordFile(action string) {
	m.FilesTotal.WithLabelValues(action).Inc()
}

// RecordRun records one completed index run.
func (m *Metrics) RecordRun() {
	m.RunsTotal.Inc()
}
