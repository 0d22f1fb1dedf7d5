// Package metrics exposes Prometheus instrumentation for the HTTP server,
// the LLM client and the task pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered for the service
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmDuration prometheus.Histogram

	tasksTotal  *prometheus.CounterVec
	eventsTotal *prometheus.CounterVec
}

// New creates a registry with all service collectors registered
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "king_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "king_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "king_llm_requests_total",
			Help: "LLM requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "king_llm_tokens_total",
			Help: "LLM token usage by kind.",
		}, []string{"kind"}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "king_llm_request_duration_seconds",
			Help:    "LLM request latency including retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "king_tasks_total",
			Help: "Task lifecycle transitions by type and status.",
		}, []string{"type", "status"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "king_events_total",
			Help: "Domain events published by type.",
		}, []string{"type"}),
	}

	registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.llmRequests, m.llmTokens, m.llmDuration,
		m.tasksTotal, m.eventsTotal,
	)
	return m
}

// Handler returns the /metrics endpoint handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments HTTP requests with counters and latency histograms
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveLLMRequest records one LLM call
func (m *Metrics) ObserveLLMRequest(operation, outcome string, duration time.Duration) {
	m.llmRequests.WithLabelValues(operation, outcome).Inc()
	m.llmDuration.Observe(duration.Seconds())
}

// AddLLMTokens records token usage
func (m *Metrics) AddLLMTokens(prompt, completion int) {
	if prompt > 0 {
		m.llmTokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.llmTokens.WithLabelValues("completion").Add(float64(completion))
	}
}

// ObserveTask records a task lifecycle transition
func (m *Metrics) ObserveTask(taskType, status string) {
	m.tasksTotal.WithLabelValues(taskType, status).Inc()
}

// ObserveEvent records a published domain event
func (m *Metrics) ObserveEvent(eventType string) {
	m.eventsTotal.WithLabelValues(eventType).Inc()
}
