package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("")

	m.RecordConnect("ok")
	m.RecordConnect("error")
	m.RecordReconnect()
	m.RecordEvent("response.audio.delta")
	m.RecordEvent("response.audio.delta")
	m.RecordAudio("in", 1440)
	m.RecordAudio("in", 0)
	m.RecordTruncation("local_vad")
	m.RecordBargeIn()
	m.RecordToolCall("get_current_time", "success", 0.01)
	m.RecordPlaybackError()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"connect ok", testutil.ToFloat64(m.ConnectsTotal.WithLabelValues("ok")), 1},
		{"connect error", testutil.ToFloat64(m.ConnectsTotal.WithLabelValues("error")), 1},
		{"connected", testutil.ToFloat64(m.Connected), 1},
		{"reconnects", testutil.ToFloat64(m.ReconnectsTotal), 1},
		{"events", testutil.ToFloat64(m.EventsTotal.WithLabelValues("response.audio.delta")), 2},
		{"audio in", testutil.ToFloat64(m.AudioBytesTotal.WithLabelValues("in")), 1440},
		{"truncations", testutil.ToFloat64(m.TruncationsTotal.WithLabelValues("local_vad")), 1},
		{"barge-ins", testutil.ToFloat64(m.BargeInsTotal), 1},
		{"tool calls", testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("get_current_time", "success")), 1},
		{"playback errors", testutil.ToFloat64(m.PlaybackErrorsTotal), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	m.RecordDisconnect()
	if v := testutil.ToFloat64(m.Connected); v != 0 {
		t.Errorf("expected connected gauge 0 after disconnect, got %v", v)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordConnect("ok")
	m.RecordDisconnect()
	m.RecordReconnect()
	m.RecordEvent("x")
	m.RecordAudio("out", 10)
	m.RecordTruncation("x")
	m.RecordBargeIn()
	m.RecordToolCall("x", "error", 1)
	m.RecordPlaybackError()
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("test")
	m.RecordBargeIn()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_barge_ins_total 1") {
		t.Errorf("expected barge-in counter in output:\n%s", rec.Body.String())
	}
}
