// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway collectors. A nil *Metrics is a valid no-op
// receiver so wiring stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions  prometheus.Gauge
	sessionsStarted prometheus.Counter
	sessionsEnded   prometheus.Counter
	guardrailChecks *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	audioChunks     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sonic_active_sessions",
		Help: "Number of live provider sessions.",
	})
	m.sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sonic_sessions_started_total",
		Help: "Sessions successfully started.",
	})
	m.sessionsEnded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sonic_sessions_ended_total",
		Help: "Sessions ended, including idle sweeps and shutdown.",
	})
	m.guardrailChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sonic_guardrail_checks_total",
		Help: "Guardrail evaluations by action taken.",
	}, []string{"action"})
	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sonic_tool_calls_total",
		Help: "Tool dispatches by tool name.",
	}, []string{"tool"})
	m.audioChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sonic_audio_chunks_forwarded_total",
		Help: "Client audio chunks forwarded to the provider.",
	})

	m.registry.MustRegister(
		m.activeSessions,
		m.sessionsStarted,
		m.sessionsEnded,
		m.guardrailChecks,
		m.toolCalls,
		m.audioChunks,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsEnded.Inc()
	m.activeSessions.Dec()
}

func (m *Metrics) GuardrailCheck(action string) {
	if m == nil {
		return
	}
	m.guardrailChecks.WithLabelValues(action).Inc()
}

func (m *Metrics) ToolCall(tool string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool).Inc()
}

func (m *Metrics) AudioChunk() {
	if m == nil {
		return
	}
	m.audioChunks.Inc()
}
