// Package metrics exposes Prometheus collectors for the scan service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scanURLsTotal              *prometheus.CounterVec
	scanErrorsTotal            *prometheus.CounterVec
	scanBatchDurationSeconds   prometheus.Histogram
	scanLockContentionTotal    prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scanURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_urls_total",
				Help: "Total number of URLs validated, labeled by page type and outcome.",
			},
			[]string{"page_type", "outcome"},
		)

		scanErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_errors_total",
				Help: "Total validation error instances observed, labeled by acceptance status.",
			},
			[]string{"status"},
		)

		scanBatchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scan_batch_duration_seconds",
				Help:    "Histogram of scan batch durations.",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 300},
			},
		)

		scanLockContentionTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scan_lock_contention_total",
				Help: "Number of scan attempts skipped because the lock was held.",
			},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveURL records one validated URL with its outcome (valid or invalid).
func ObserveURL(pageType string, valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	scanURLsTotal.WithLabelValues(pageType, outcome).Inc()
}

// ObserveError records one validation error instance by acceptance status.
func ObserveError(status string) {
	scanErrorsTotal.WithLabelValues(status).Inc()
}

// ObserveBatch records the duration of a completed scan batch.
func ObserveBatch(duration time.Duration) {
	scanBatchDurationSeconds.Observe(duration.Seconds())
}

// ObserveLockContention increments the skipped-scan counter.
func ObserveLockContention() {
	scanLockContentionTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
