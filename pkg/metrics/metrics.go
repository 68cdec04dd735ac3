// Package metrics exposes the honeypot's Prometheus instrumentation. All
// recording helpers are nil-safe so components can run without metrics in
// tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the honeypot.
type Metrics struct {
	// MCP traffic
	MCPRequests      *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Deception bookkeeping
	TokensMinted    *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec

	// Live state
	CachedSessions prometheus.Gauge
	SSESubscribers prometheus.Gauge
}

// NewRegistry returns a fresh registry pre-loaded with the standard process
// and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMetrics creates all collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MCPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trapline_mcp_requests_total",
				Help: "MCP requests by JSON-RPC method and outcome",
			},
			[]string{"method", "outcome"}, // outcome: ok, error
		),

		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trapline_tool_calls_total",
				Help: "Simulated tool invocations by tool name",
			},
			[]string{"tool", "is_error"},
		),

		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trapline_dispatch_duration_seconds",
				Help:    "Wall time of the tool dispatch pipeline",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		TokensMinted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trapline_honey_tokens_minted_total",
				Help: "Fabricated credentials handed out, by token type",
			},
			[]string{"type"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trapline_events_published_total",
				Help: "Events published on the in-process bus, by type",
			},
			[]string{"type"},
		),

		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trapline_rate_limited_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"}, // limiter: mcp, dashboard
		),

		CachedSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trapline_cached_sessions",
				Help: "Sessions currently held in the in-memory cache",
			},
		),

		SSESubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "trapline_sse_subscribers",
				Help: "Open SSE streams",
			},
		),
	}
}

// RecordMCPRequest counts one MCP request.
func (m *Metrics) RecordMCPRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.MCPRequests.WithLabelValues(method, outcome).Inc()
}

// RecordToolCall counts one dispatched tool call and observes its duration.
func (m *Metrics) RecordToolCall(tool string, isError bool, seconds float64) {
	if m == nil {
		return
	}
	errLabel := "false"
	if isError {
		errLabel = "true"
	}
	m.ToolCalls.WithLabelValues(tool, errLabel).Inc()
	m.DispatchDuration.WithLabelValues(tool).Observe(seconds)
}

// RecordTokenMinted counts one fabricated credential.
func (m *Metrics) RecordTokenMinted(tokenType string) {
	if m == nil {
		return
	}
	m.TokensMinted.WithLabelValues(tokenType).Inc()
}

// RecordEventPublished counts one bus event.
func (m *Metrics) RecordEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordRateLimited counts one rejected request.
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(limiter).Inc()
}

// SetCachedSessions updates the session cache gauge.
func (m *Metrics) SetCachedSessions(n int) {
	if m == nil {
		return
	}
	m.CachedSessions.Set(float64(n))
}

// SetSSESubscribers updates the open stream gauge.
func (m *Metrics) SetSSESubscribers(n int) {
	if m == nil {
		return
	}
	m.SSESubscribers.Set(float64(n))
}
