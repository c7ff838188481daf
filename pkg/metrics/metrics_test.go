package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	m := New("")
	m.RecordSessionStart()
	m.RecordServerEvent("response.done")
	m.RecordClientEvent("session.update")
	m.RecordDroppedEvent()
	m.RecordToolCall("getWeather", "ok", 120*time.Millisecond)
	m.RecordSessionEnd()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"voicewire_sessions_active 0",
		`voicewire_sessions_total{status="connected"} 1`,
		`voicewire_server_events_total{type="response.done"} 1`,
		`voicewire_client_events_total{type="session.update"} 1`,
		"voicewire_dropped_events_total 1",
		`voicewire_tool_calls_total{outcome="ok",tool="getWeather"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordSessionStart()
	m.RecordSessionFailure("credential_error")
	m.RecordSessionEnd()
	m.RecordServerEvent("x")
	m.RecordClientEvent("y")
	m.RecordDroppedEvent()
	m.RecordToolCall("t", "error", time.Second)
}
