// Package metrics exposes Prometheus instrumentation for realtime
// sessions. All record methods are safe on a nil receiver so callers
// can leave metrics unconfigured.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for session orchestration.
type Metrics struct {
	registry *prometheus.Registry

	// Session lifecycle
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec

	// Event traffic
	ServerEventsTotal  *prometheus.CounterVec
	ClientEventsTotal  *prometheus.CounterVec
	DroppedEventsTotal prometheus.Counter

	// Tool dispatch
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicewire"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of connected realtime sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total session connection attempts",
		},
		[]string{"status"},
	)

	serverEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_events_total",
			Help:      "Total server events received, by event type",
		},
		[]string{"type"},
	)

	clientEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_events_total",
			Help:      "Total client events sent, by event type",
		},
		[]string{"type"},
	)

	droppedEventsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Client events dropped because the channel was not open",
		},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations, by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	toolCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool handler duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		serverEventsTotal,
		clientEventsTotal,
		droppedEventsTotal,
		toolCallsTotal,
		toolCallDuration,
	)

	return &Metrics{
		registry:           registry,
		SessionsActive:     sessionsActive,
		SessionsTotal:      sessionsTotal,
		ServerEventsTotal:  serverEventsTotal,
		ClientEventsTotal:  clientEventsTotal,
		DroppedEventsTotal: droppedEventsTotal,
		ToolCallsTotal:     toolCallsTotal,
		ToolCallDuration:   toolCallDuration,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a session reaching Connected.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.WithLabelValues("connected").Inc()
}

// RecordSessionFailure records a connection attempt that never reached
// Connected.
func (m *Metrics) RecordSessionFailure(reason string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(reason).Inc()
}

// RecordSessionEnd records a session disconnecting.
func (m *Metrics) RecordSessionEnd() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// RecordServerEvent records one received server event.
func (m *Metrics) RecordServerEvent(eventType string) {
	if m == nil {
		return
	}
	m.ServerEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordClientEvent records one sent client event.
func (m *Metrics) RecordClientEvent(eventType string) {
	if m == nil {
		return
	}
	m.ClientEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordDroppedEvent records a client event dropped before the channel
// opened.
func (m *Metrics) RecordDroppedEvent() {
	if m == nil {
		return
	}
	m.DroppedEventsTotal.Inc()
}

// RecordToolCall records a completed tool invocation.
func (m *Metrics) RecordToolCall(tool, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
