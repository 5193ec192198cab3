package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for transition counters.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	Transitions         *prometheus.CounterVec
	TransitionDuration  *prometheus.HistogramVec
	EffectsEmitted      *prometheus.CounterVec
	DiscrepanciesOpened prometheus.Counter
}

// New creates and registers all Prometheus metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_transitions_total",
			Help: "Aggregate operations by outcome",
		}, []string{"aggregate", "operation", "outcome"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodian_transition_duration_seconds",
			Help:    "Latency of aggregate operations including persistence",
			Buckets: prometheus.DefBuckets,
		}, []string{"aggregate", "operation"}),
		EffectsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_effects_emitted_total",
			Help: "Side-effect instructions dispatched by kind and channel",
		}, []string{"kind", "channel"}),
		DiscrepanciesOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "custodian_audit_discrepancies_opened_total",
			Help: "Discrepancies opened by audit scans",
		}),
	}
}

// ObserveTransition records one operation. A nil receiver is a no-op so
// services can run without metrics.
func (m *Metrics) ObserveTransition(aggregate, operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(aggregate, operation, outcome).Inc()
	m.TransitionDuration.WithLabelValues(aggregate, operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) IncrementEffect(kind, channel string) {
	if m == nil {
		return
	}
	m.EffectsEmitted.WithLabelValues(kind, channel).Inc()
}

func (m *Metrics) IncrementDiscrepancies(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DiscrepanciesOpened.Add(float64(n))
}
