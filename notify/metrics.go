package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "quill"
	subsystem = "workflow"
)

// MetricsNotifier counts outcomes in Prometheus.
type MetricsNotifier struct {
	outcomes        *prometheus.CounterVec
	partialApplied  prometheus.Counter
	lastOutcomeTime *prometheus.GaugeVec
}

// NewMetricsNotifier registers the outcome metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetricsNotifier(reg prometheus.Registerer) *MetricsNotifier {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &MetricsNotifier{
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "outcomes_total",
				Help:      "Total number of generation workflow outcomes",
			},
			[]string{"outcome"},
		),
		partialApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "partial_suggestions_applied_total",
				Help:      "Total number of accepted suggestions that came from a cancelled generation",
			},
		),
		lastOutcomeTime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_outcome_timestamp_seconds",
				Help:      "Unix time of the most recent outcome",
			},
			[]string{"outcome"},
		),
	}

	// Expose every outcome with a zero value from the start.
	for _, o := range Outcomes {
		m.outcomes.WithLabelValues(string(o))
	}
	return m
}

// Notify implements Notifier.
func (m *MetricsNotifier) Notify(n Notification) {
	m.outcomes.WithLabelValues(string(n.Outcome)).Inc()
	if n.Outcome == OutcomeApplied && n.Partial {
		m.partialApplied.Inc()
	}
	ts := n.Timestamp
	if ts.IsZero() {
		m.lastOutcomeTime.WithLabelValues(string(n.Outcome)).SetToCurrentTime()
		return
	}
	m.lastOutcomeTime.WithLabelValues(string(n.Outcome)).Set(float64(ts.UnixNano()) / 1e9)
}
