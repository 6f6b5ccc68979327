package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llm_router"

// Metrics holds the router's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	attempts      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	routeLatency  prometheus.Histogram
	exclusions    *prometheus.CounterVec
	recorderDrops prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider invocations by provider and outcome class.",
		}, []string{"provider", "class"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_outcomes_total",
			Help:      "Routing outcomes by kind and reason.",
		}, []string{"kind", "reason"}),
		routeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_duration_seconds",
			Help:      "End to end routing latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		exclusions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exclusions_total",
			Help:      "Credentials excluded after a rate limit, by provider.",
		}, []string{"provider"}),
		recorderDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_dropped_total",
			Help:      "Outcome events dropped because the recorder buffer was full.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.attempts,
		m.outcomes,
		m.routeLatency,
		m.exclusions,
		m.recorderDrops,
		m.httpRequests,
		m.httpDurations,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt counts one provider invocation.
func (m *Metrics) ObserveAttempt(provider, class string) {
	m.attempts.WithLabelValues(provider, class).Inc()
}

// ObserveOutcome counts a finished route and records its latency.
func (m *Metrics) ObserveOutcome(kind, reason string, seconds float64) {
	m.outcomes.WithLabelValues(kind, reason).Inc()
	m.routeLatency.Observe(seconds)
}

// ObserveExclusion counts a credential exclusion.
func (m *Metrics) ObserveExclusion(provider string) {
	m.exclusions.WithLabelValues(provider).Inc()
}

// ObserveDrop counts a dropped recorder event.
func (m *Metrics) ObserveDrop() {
	m.recorderDrops.Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(seconds)
}
