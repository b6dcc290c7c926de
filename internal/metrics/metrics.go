// Package metrics provides Prometheus instrumentation for agentrelay runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for the terminal event of a run.
const (
	OutcomeCompleted     = "completed"
	OutcomeStopped       = "stopped"
	OutcomeTimeout       = "timeout"
	OutcomeSpawnError    = "spawn_error"
	OutcomeInternalError = "internal_error"
	OutcomeDisconnected  = "disconnected"
)

// Metrics holds the run-level collectors. A nil *Metrics is valid and
// records nothing, so the runner can be used without instrumentation in
// tests.
type Metrics struct {
	sessionsStarted prometheus.Counter
	sessionsActive  prometheus.Gauge
	outcomes        *prometheus.CounterVec
	events          *prometheus.CounterVec
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentrelay_sessions_started_total",
			Help: "Runs admitted and started",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentrelay_sessions_active",
			Help: "Currently running sessions",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrelay_session_outcomes_total",
			Help: "Terminal events by outcome",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrelay_stream_events_total",
			Help: "Stream events emitted by type",
		}, []string{"type"}),
	}

	reg.MustRegister(m.sessionsStarted, m.sessionsActive, m.outcomes, m.events)
	return m
}

// SessionStarted records an admitted run.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

// SessionFinished records the terminal outcome of a run.
func (m *Metrics) SessionFinished(outcome string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.outcomes.WithLabelValues(outcome).Inc()
}

// EventEmitted records one framed event forwarded to a caller.
func (m *Metrics) EventEmitted(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}
