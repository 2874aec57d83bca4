// Package metrics exposes Prometheus collectors for the demultiplexer and
// the execution engine. All recording methods are safe on a nil *Metrics so
// callers never need to guard optional instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	gatherer prometheus.Gatherer

	// EventsTotal counts emitted output events
	EventsTotal *prometheus.CounterVec
	// RawItemsTotal counts consumed raw stream items
	RawItemsTotal *prometheus.CounterVec
	// PendingToolCalls tracks root calls waiting for their result
	PendingToolCalls prometheus.Gauge
	// PendingToolResults tracks root results waiting for their call
	PendingToolResults prometheus.Gauge
	// SubAgentsStarted counts delegations
	SubAgentsStarted *prometheus.CounterVec
	// ToolCalls counts executed tool invocations
	ToolCalls *prometheus.CounterVec
	// ModelCalls counts model requests
	ModelCalls *prometheus.CounterVec
	// TurnDuration tracks how long turns run
	TurnDuration *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses a private registry,
// which keeps tests isolated from the global default registerer.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,
		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captain_events_total",
				Help: "Total number of output events emitted",
			},
			[]string{"type"},
		),
		RawItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captain_raw_items_total",
				Help: "Total number of raw stream items consumed",
			},
			[]string{"mode"},
		),
		PendingToolCalls: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "captain_pending_tool_calls",
				Help: "Root tool calls buffered while waiting for their result",
			},
		),
		PendingToolResults: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "captain_pending_tool_results",
				Help: "Root tool results buffered while waiting for their call",
			},
		),
		SubAgentsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captain_subagents_started_total",
				Help: "Total number of sub-agent delegations observed",
			},
			[]string{"subagent"},
		),
		ToolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captain_tool_calls_total",
				Help: "Total number of tool invocations executed",
			},
			[]string{"tool", "status"},
		),
		ModelCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captain_model_calls_total",
				Help: "Total number of model requests",
			},
			[]string{"agent", "status"},
		),
		TurnDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "captain_turn_duration_seconds",
				Help:    "Turn duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler for the registry the
// collectors were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordEvent counts an emitted event
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

// RecordRawItem counts a consumed raw item
func (m *Metrics) RecordRawItem(mode string) {
	if m == nil {
		return
	}
	m.RawItemsTotal.WithLabelValues(mode).Inc()
}

// SetPending publishes the reconciler buffer sizes
func (m *Metrics) SetPending(calls, results int) {
	if m == nil {
		return
	}
	m.PendingToolCalls.Set(float64(calls))
	m.PendingToolResults.Set(float64(results))
}

// RecordSubAgentStart counts a delegation
func (m *Metrics) RecordSubAgentStart(subAgent string) {
	if m == nil {
		return
	}
	m.SubAgentsStarted.WithLabelValues(subAgent).Inc()
}

// RecordToolCall records a tool invocation
func (m *Metrics) RecordToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordModelCall records a model request
func (m *Metrics) RecordModelCall(agent, status string) {
	if m == nil {
		return
	}
	m.ModelCalls.WithLabelValues(agent, status).Inc()
}

// RecordTurn records the duration of a finished turn
func (m *Metrics) RecordTurn(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnDuration.WithLabelValues(status).Observe(d.Seconds())
}
