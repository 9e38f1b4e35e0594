package consolidate

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the consolidation engine.
type Metrics struct {
	PhaseDuration *prometheus.HistogramVec
	PhaseErrors   *prometheus.CounterVec
	RunsTotal     prometheus.Counter
}

// NewMetrics creates and registers engine metrics. Registration
// happens once per process; repeated calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			PhaseDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ultramemory_consolidation_phase_duration_seconds",
					Help:    "Duration of each consolidation phase in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~160s
				},
				[]string{"phase"},
			),

			PhaseErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ultramemory_consolidation_phase_errors_total",
					Help: "Failed consolidation phases by name",
				},
				[]string{"phase"},
			),

			RunsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ultramemory_consolidation_runs_total",
					Help: "Completed consolidation runs",
				},
			),
		}
	})

	return globalMetrics
}

// RecordPhase records one phase execution.
func (m *Metrics) RecordPhase(phase string, seconds float64, failed bool) {
	m.PhaseDuration.WithLabelValues(phase).Observe(seconds)
	if failed {
		m.PhaseErrors.WithLabelValues(phase).Inc()
	}
}

// RecordRun records one completed run.
func (m *Metrics) RecordRun() {
	m.RunsTotal.Inc()
}
