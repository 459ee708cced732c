// Package telemetry defines the Prometheus metrics exported by the service.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steercrawl_pages_total",
			Help: "Pages processed, labeled by outcome (stored, fetch_failed, store_failed, robots_denied, rejected).",
		},
		[]string{"outcome"},
	)

	chunksStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steercrawl_chunks_stored_total",
			Help: "Content chunks persisted across all jobs.",
		},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steercrawl_jobs_total",
			Help: "Jobs finished, labeled by terminal state.",
		},
		[]string{"state"},
	)

	steeringTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steercrawl_steering_total",
			Help: "Steering escalations, labeled by resolution (approved, rejected, timeout).",
		},
		[]string{"resolution"},
	)

	oracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steercrawl_oracle_calls_total",
			Help: "Scoring oracle calls, labeled by status (ok, error).",
		},
		[]string{"status"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steercrawl_rate_limit_delay_seconds",
			Help:    "Delay introduced by the per-domain rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"domain"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steercrawl_fetch_duration_seconds",
			Help:    "Page fetch latency, labeled by HTTP status class.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"status_class"},
	)
)

// CountPage records one processed frontier entry by outcome.
func CountPage(outcome string) {
	pagesTotal.WithLabelValues(outcome).Inc()
}

// CountChunks adds persisted chunks.
func CountChunks(n int) {
	if n > 0 {
		chunksStoredTotal.Add(float64(n))
	}
}

// CountJob records a job reaching a terminal state.
func CountJob(state string) {
	jobsTotal.WithLabelValues(state).Inc()
}

// CountSteering records a steering resolution.
func CountSteering(resolution string) {
	steeringTotal.WithLabelValues(resolution).Inc()
}

// CountOracleCall records a scoring oracle call.
func CountOracleCall(status string) {
	oracleCallsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records limiter-induced wait time for a domain.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveFetchDuration records a fetch latency sample.
func ObserveFetchDuration(statusClass string, d time.Duration) {
	fetchDurationSeconds.WithLabelValues(statusClass).Observe(d.Seconds())
}

// ClassifyStatus groups HTTP status codes for fetch metrics.
func ClassifyStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
