// Package metrics holds the Prometheus instrumentation for the voice loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the voice loop.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ConnectsTotal   *prometheus.CounterVec
	ReconnectsTotal prometheus.Counter
	Connected       prometheus.Gauge
	EventsTotal     *prometheus.CounterVec

	// Audio metrics
	AudioBytesTotal *prometheus.CounterVec

	// Interruption metrics
	TruncationsTotal *prometheus.CounterVec
	BargeInsTotal    prometheus.Counter

	// Tool metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Device metrics
	PlaybackErrorsTotal prometheus.Counter
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voiceloop"
	}

	registry := prometheus.NewRegistry()

	connectsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Realtime connection attempts by result",
		},
		[]string{"result"},
	)

	reconnectsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect cycles after a lost session",
		},
	)

	connected := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the realtime socket is open",
		},
	)

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Server events received by type",
		},
		[]string{"type"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "PCM16 audio bytes by direction",
		},
		[]string{"direction"},
	)

	truncationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truncations_total",
			Help:      "Assistant utterances truncated by reason",
		},
		[]string{"reason"},
	)

	bargeInsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Local barge-in interrupts fired",
		},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by name and status",
		},
		[]string{"tool", "status"},
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

	playbackErrorsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_errors_total",
			Help:      "Playback device write failures",
		},
	)

	registry.MustRegister(
		connectsTotal,
		reconnectsTotal,
		connected,
		eventsTotal,
		audioBytesTotal,
		truncationsTotal,
		bargeInsTotal,
		toolCallsTotal,
		toolCallDuration,
		playbackErrorsTotal,
	)

	return &Metrics{
		registry:            registry,
		ConnectsTotal:       connectsTotal,
		ReconnectsTotal:     reconnectsTotal,
		Connected:           connected,
		EventsTotal:         eventsTotal,
		AudioBytesTotal:     audioBytesTotal,
		TruncationsTotal:    truncationsTotal,
		BargeInsTotal:       bargeInsTotal,
		ToolCallsTotal:      toolCallsTotal,
		ToolCallDuration:    toolCallDuration,
		PlaybackErrorsTotal: playbackErrorsTotal,
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordConnect records a connection attempt. result is "ok" or "error".
func (m *Metrics) RecordConnect(result string) {
	if m == nil {
		return
	}
	m.ConnectsTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.Connected.Set(1)
	}
}

// RecordDisconnect marks the socket closed.
func (m *Metrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.Connected.Set(0)
}

// RecordReconnect records the start of a reconnect cycle.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

// RecordEvent records one inbound server event.
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

// RecordAudio records audio bytes. direction is "in" (to the model) or "out".
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordTruncation records a truncated utterance.
func (m *Metrics) RecordTruncation(reason string) {
	if m == nil {
		return
	}
	m.TruncationsTotal.WithLabelValues(reason).Inc()
}

// RecordBargeIn records a local barge-in interrupt.
func (m *Metrics) RecordBargeIn() {
	if m == nil {
		return
	}
	m.BargeInsTotal.Inc()
}

// RecordToolCall records a finished tool call. status is "success" or "error".
func (m *Metrics) RecordToolCall(tool, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(seconds)
}

// RecordPlaybackError records a playback device failure.
func (m *Metrics) RecordPlaybackError() {
	if m == nil {
		return
	}
	m.PlaybackErrorsTotal.Inc()
}
