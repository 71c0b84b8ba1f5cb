// Package metrics defines the Prometheus metrics emitted by the load
// balancer and dispatcher. Grounded directly on the teacher's
// internal/metrics package: package-level vectors registered once in init,
// thin setter/observer helpers so callers never touch the prometheus API
// directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// requestsTotal counts every LoadBalancer.GetEndpoint call, labeled by
	// outcome ("ok" or "no_healthy_endpoints").
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total endpoint selection requests by outcome",
		},
		[]string{"outcome"},
	)
	// healthyEndpoints is a gauge of how many endpoints passed the healthy
	// filter at the moment of the last selection.
	healthyEndpoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_healthy_endpoints",
			Help: "Number of endpoints currently considered healthy",
		},
	)
	// activeConnections is a gauge of the sum of in-flight connections across
	// all endpoints at the moment of the last selection.
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_active_connections",
			Help: "Sum of in-flight connections across all endpoints",
		},
	)
	// endpointHealthTransitions counts health flag flips, labeled by the
	// endpoint's base URL and the new state ("healthy"/"unhealthy").
	endpointHealthTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_endpoint_health_transitions_total",
			Help: "Count of endpoint health flag transitions",
		},
		[]string{"endpoint", "state"},
	)
	// proxyResponsesTotal counts dispatcher responses by method and status.
	proxyResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxy_responses_total",
			Help: "Total proxy responses by method and status",
		},
		[]string{"method", "status"},
	)
	// proxyRequestDuration observes end-to-end dispatcher latency.
	proxyRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_proxy_request_duration_seconds",
			Help:    "End-to-end proxy request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	// modelPresenceCheckDuration observes how long the per-request model
	// presence check (spec.md §4.6 step 2) takes against a backend.
	modelPresenceCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_model_presence_check_duration_seconds",
			Help:    "Duration of the per-request model presence check",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		healthyEndpoints,
		activeConnections,
		endpointHealthTransitions,
		proxyResponsesTotal,
		proxyRequestDuration,
		modelPresenceCheckDuration,
	)
}

// ObserveSelection records the outcome of a LoadBalancer.GetEndpoint call.
func ObserveSelection(ok bool) {
	if ok {
		requestsTotal.WithLabelValues("ok").Inc()
	} else {
		requestsTotal.WithLabelValues("no_healthy_endpoints").Inc()
	}
}

// SetHealthyEndpoints sets the healthy-endpoint gauge.
func SetHealthyEndpoints(n int) { healthyEndpoints.Set(float64(n)) }

// SetActiveConnections sets the active-connections gauge.
func SetActiveConnections(n uint64) { activeConnections.Set(float64(n)) }

// ObserveHealthTransition records an endpoint flipping to healthy/unhealthy.
func ObserveHealthTransition(endpointURL string, healthy bool) {
	state := "unhealthy"
	if healthy {
		state = "healthy"
	}
	endpointHealthTransitions.WithLabelValues(endpointURL, state).Inc()
}

// ObserveProxyResponse records a dispatcher response.
func ObserveProxyResponse(method string, status int, dur time.Duration) {
	proxyResponsesTotal.WithLabelValues(method, statusLabel(status)).Inc()
	proxyRequestDuration.WithLabelValues(method).Observe(dur.Seconds())
}

// ObserveModelPresenceCheck records the latency of a model presence check.
func ObserveModelPresenceCheck(dur time.Duration) {
	modelPresenceCheckDuration.Observe(dur.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
