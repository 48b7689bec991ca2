// Package metrics provides Prometheus metrics for the API server. It tracks
// request counts and latencies plus gauges for the cache tiers and the
// telemetry pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mcjars"

var (
	// RequestsTotal counts handled HTTP requests by method and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration tracks end-to-end request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	// CacheOperations counts result-cache lookups by tier and outcome.
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Result cache lookups by tier (local, redis) and outcome (hit, miss)",
		},
		[]string{"tier", "outcome"},
	)

	// FileCacheSize reports the bytes currently held by the on-disk cache.
	FileCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "file_cache_bytes",
			Help:      "Bytes held by the on-disk artifact cache",
		},
	)

	// FileCacheEntries reports the number of cached artifacts.
	FileCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "file_cache_entries",
			Help:      "Artifacts held by the on-disk cache",
		},
	)

	// FileCacheOperations counts artifact cache reads by outcome (hit, miss).
	FileCacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_cache_operations_total",
			Help:      "Artifact cache reads by outcome (hit, miss)",
		},
		[]string{"outcome"},
	)

	// TelemetryQueue reports queued request records by stage.
	TelemetryQueue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "telemetry_queue_size",
			Help:      "Request records queued for ingestion by stage (pending, processing)",
		},
		[]string{"stage"},
	)

	// RateLimited counts requests rejected by the per-IP rate limiter.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429 by bucket",
		},
		[]string{"bucket"},
	)
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for streamed file responses.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Middleware records request count and latency for every handled request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(recorder.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
