// Package metrics holds the Prometheus collectors of the bridge and the HTTP
// API that exposes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics groups every collector the bridge records into. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth    prometheus.Gauge
	tasksDrained  prometheus.Counter
	taskPanics    prometheus.Counter
	drainDuration prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	rpcRequests   *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
}

// New creates the collectors and registers them in a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_bridge_dispatch_queue_depth",
			Help: "Number of tasks waiting for the next drain of the dispatch queue",
		}),
		tasksDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_bridge_dispatch_tasks_total",
			Help: "Tasks executed by the dispatch queue",
		}),
		taskPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_bridge_dispatch_task_panics_total",
			Help: "Tasks that panicked while being drained",
		}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcp_bridge_dispatch_drain_seconds",
			Help:    "Wall time of drain passes that executed at least one task",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_bridge_http_requests_total",
			Help: "HTTP requests handled on the MCP endpoint",
		}, []string{"method", "code"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_bridge_rpc_requests_total",
			Help: "JSON-RPC messages routed, by method and outcome",
		}, []string{"method", "outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_bridge_tool_calls_total",
			Help: "Tool invocations, by tool and outcome",
		}, []string{"tool", "outcome"}),
	}

	m.registry.MustRegister(
		m.queueDepth,
		m.tasksDrained,
		m.taskPanics,
		m.drainDuration,
		m.httpRequests,
		m.rpcRequests,
		m.toolCalls,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetQueueDepth records the number of pending dispatch tasks.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveDrain records one drain pass.
func (m *Metrics) ObserveDrain(executed, panics int, dur time.Duration) {
	if m == nil || executed == 0 {
		return
	}
	m.tasksDrained.Add(float64(executed))
	m.taskPanics.Add(float64(panics))
	m.drainDuration.Observe(dur.Seconds())
}

// ObserveHTTP counts one HTTP exchange.
func (m *Metrics) ObserveHTTP(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, http.StatusText(code)).Inc()
}

// ObserveRPC counts one routed JSON-RPC message.
func (m *Metrics) ObserveRPC(method, outcome string) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
}

// ObserveToolCall counts one tool invocation.
func (m *Metrics) ObserveToolCall(tool string, isError bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if isError {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// API serves the collectors in the Prometheus text format.
type API struct {
	Router   chi.Router
	registry *prometheus.Registry
}

// NewAPI builds the metrics router. GET / serves the exposition.
func NewAPI(m *Metrics) *API {
	api := &API{
		Router:   chi.NewRouter(),
		registry: m.Registry(),
	}
	api.Router.Get("/", api.handleMetrics)
	api.Router.Get("/metrics", api.handleMetrics)
	return api
}

func (api *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if api.registry == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}

	metricFamilies, err := api.registry.Gather()
	if err != nil {
		http.Error(w, "Failed to gather metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", string(expfmt.FmtText))

	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			http.Error(w, "Failed to encode metrics", http.StatusInternalServerError)
			return
		}
	}
}
