// Package metrics exposes Prometheus collectors for the poster service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poster request outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Upstream stages.
const (
	StageResolve  = "resolve"
	StageDownload = "download"
)

var (
	posterRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poster_requests_total",
			Help: "Total number of poster lookups, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	posterUpstreamDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poster_upstream_duration_seconds",
			Help:    "Histogram of upstream call latencies, labeled by stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	posterCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poster_cache_entries",
			Help: "Number of entries in the poster cache store.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the per-host rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"host"},
	)

	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Total number of submission attempts, labeled by result.",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePosterRequest counts one poster lookup.
func ObservePosterRequest(outcome string) {
	posterRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration of an upstream stage.
func ObserveUpstream(stage string, duration time.Duration) {
	posterUpstreamDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a request waited for a rate limit token.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// SetCacheEntries records the cache store size.
func SetCacheEntries(n int) {
	posterCacheEntries.Set(float64(n))
}

// ObserveSubmission counts one submission attempt.
func ObserveSubmission(result string) {
	submissionsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
