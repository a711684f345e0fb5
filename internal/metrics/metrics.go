package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AgentsSpawned counts agents started by a runtime
	AgentsSpawned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kepoki_agents_spawned_total",
			Help: "Total number of agents spawned",
		},
	)

	// ActiveAgents tracks agents whose task has not ended
	ActiveAgents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kepoki_active_agents",
			Help: "Number of running agents",
		},
	)

	// AgentsEnded counts finished agents by outcome
	AgentsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepoki_agents_ended_total",
			Help: "Total number of agents that ended, by status",
		},
		[]string{"status"},
	)

	// EventsRelayed counts events delivered to runtime callers
	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepoki_events_relayed_total",
			Help: "Total number of agent events relayed",
		},
		[]string{"type"},
	)

	// QueuedEvents tracks events waiting in agent event queues
	QueuedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kepoki_queued_events",
			Help: "Number of agent events produced but not yet received",
		},
	)

	// TurnDuration tracks how long a model turn takes
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kepoki_turn_duration_seconds",
			Help:    "Turn duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend", "status"},
	)

	// BackendRequests counts model requests by backend and status
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepoki_backend_requests_total",
			Help: "Total number of backend requests",
		},
		[]string{"backend", "status"},
	)

	// BackendRequestDuration tracks time to first response
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kepoki_backend_request_duration_seconds",
			Help:    "Time until a backend request returned headers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// ToolCalls tracks MCP tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepoki_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)

	// ScheduledPrompts counts prompts fired by the scheduler
	ScheduledPrompts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepoki_scheduled_prompts_total",
			Help: "Total number of scheduled prompts by outcome",
		},
		[]string{"status"},
	)

	// RequestsTotal counts HTTP requests to kepo serve
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kepoki_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed MCP responses flowing
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware creates an HTTP middleware that records metrics.
// Websocket upgrades are passed through unwrapped so hijacking keeps working.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := normalizePath(r.URL.Path)
		if r.Header.Get("Upgrade") != "" {
			RequestsTotal.WithLabelValues(r.Method, path, "upgrade").Inc()
			next.ServeHTTP(w, r)
			return
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/agents", "/metrics", "/mcp":
		return path
	default:
		if len(path) > 8 && path[:8] == "/agents/" {
			return "/agents"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAgentStart increments spawn counters
func RecordAgentStart() {
	AgentsSpawned.Inc()
	ActiveAgents.Inc()
}

// RecordAgentEnd decrements the active gauge and counts the outcome
func RecordAgentEnd(status string) {
	ActiveAgents.Dec()
	AgentsEnded.WithLabelValues(status).Inc()
}

// RecordEventRelayed counts one delivered event
func RecordEventRelayed(eventType string) {
	EventsRelayed.WithLabelValues(eventType).Inc()
}

// RecordTurn records a finished turn
func RecordTurn(backend, status string, started time.Time) {
	TurnDuration.WithLabelValues(backend, status).Observe(time.Since(started).Seconds())
}

// RecordBackendRequest records a backend request outcome and latency
func RecordBackendRequest(backend, status string, durationSeconds float64) {
	BackendRequests.WithLabelValues(backend, status).Inc()
	BackendRequestDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordToolCall records an MCP tool invocation
func RecordToolCall(tool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordScheduledPrompt records one scheduler firing
func RecordScheduledPrompt(status string) {
	ScheduledPrompts.WithLabelValues(status).Inc()
}
