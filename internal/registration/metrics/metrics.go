package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration engine.
// Tracks outcomes per operation, conflict retries and operation latency.
type Metrics struct {
	Outcomes          *prometheus.CounterVec
	ConflictRetries   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New creates the registration metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dropin_registration_outcomes_total",
			Help: "Roster operations by operation and outcome code",
		}, []string{"operation", "outcome"}),
		ConflictRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dropin_registration_conflict_retries_total",
			Help: "Store conflicts retried by the engine",
		}, []string{"operation"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dropin_registration_operation_duration_seconds",
			Help:    "Duration of roster operations including retries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

// RecordOutcome counts one finished operation. outcome is "ok" or an error code.
func (m *Metrics) RecordOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IncrementConflictRetry(operation string) {
	if m == nil {
		return
	}
	m.ConflictRetries.WithLabelValues(operation).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
