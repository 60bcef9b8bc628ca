// Package metrics holds the Prometheus collectors the orchestrator updates.
//
// All metrics are prefixed with "jaegis_":
//   - jaegis_mode_executions_total{mode,status} - finished mode executions
//   - jaegis_phase_duration_seconds{mode,phase} - time spent inside each phase
//   - jaegis_active_agents - size of the most recent active-agent set
//   - jaegis_issues_total{severity} - issues produced by debug mode
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the orchestrator collectors. A nil *Metrics records nothing.
type Metrics struct {
	ModeExecutions *prometheus.CounterVec
	PhaseDuration  *prometheus.HistogramVec
	ActiveAgents   prometheus.Gauge
	Issues         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing a fresh
// registry per process (or per test) avoids duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModeExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jaegis_mode_executions_total",
				Help: "Total number of mode executions by final status",
			},
			[]string{"mode", "status"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jaegis_phase_duration_seconds",
				Help:    "Duration of phase execution in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode", "phase"},
		),
		ActiveAgents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jaegis_active_agents",
				Help: "Number of agents in the most recent activation",
			},
		),
		Issues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jaegis_issues_total",
				Help: "Total number of diagnostics issues reported by severity",
			},
			[]string{"severity"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.ModeExecutions, m.PhaseDuration, m.ActiveAgents, m.Issues)
	}
	return m
}

// RecordExecution counts a finished execution.
func (m *Metrics) RecordExecution(mode, status string) {
	if m == nil {
		return
	}
	m.ModeExecutions.WithLabelValues(mode, status).Inc()
}

// ObservePhase records how long a phase took.
func (m *Metrics) ObservePhase(mode, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(mode, phase).Observe(d.Seconds())
}

// SetActiveAgents records the size of the active set.
func (m *Metrics) SetActiveAgents(n int) {
	if m == nil {
		return
	}
	m.ActiveAgents.Set(float64(n))
}

// AddIssue counts one issue of the given severity.
func (m *Metrics) AddIssue(severity string) {
	if m == nil {
		return
	}
	m.Issues.WithLabelValues(severity).Inc()
}
