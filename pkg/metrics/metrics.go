// Package metrics provides Prometheus instrumentation for the router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestLatency tracks end-to-end call latency in seconds.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_latency_seconds",
			Help:    "End-to-end generation latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"route", "status"},
	)

	// ProviderAttemptsTotal counts single provider attempts (one key or one model).
	ProviderAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_attempts_total",
			Help: "Total number of provider attempts by outcome.",
		},
		[]string{"provider", "outcome"}, // outcome: success, transient, fatal, configuration, canceled
	)

	// ProviderAttemptLatency tracks the duration of a single provider attempt.
	ProviderAttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_attempt_latency_seconds",
			Help:    "Duration of a single provider attempt in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// FallbacksTotal counts advances to the next candidate of a chain.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallbacks_total",
			Help: "Total number of fallbacks to the next key or model.",
		},
		[]string{"strategy"},
	)

	// StreamChunksTotal counts text and image deltas forwarded to consumers.
	StreamChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_chunks_total",
			Help: "Total number of streamed deltas forwarded to consumers.",
		},
		[]string{"kind"}, // text, image
	)

	// ActiveRequests tracks the number of currently in-flight requests.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_requests",
			Help: "Number of currently in-flight requests.",
		},
	)

	// RequestsTotal tracks total requests by status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of requests by status.",
		},
		[]string{"status"}, // success, error, canceled
	)
)

// ObserveAttempt records the outcome and duration of one provider attempt.
func ObserveAttempt(provider, outcome string, started time.Time) {
	ProviderAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	ProviderAttemptLatency.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}

// ObserveRequest records a finished top-level call.
func ObserveRequest(route, status string, started time.Time) {
	RequestsTotal.WithLabelValues(status).Inc()
	RequestLatency.WithLabelValues(route, status).Observe(time.Since(started).Seconds())
}
