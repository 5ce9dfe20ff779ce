// Package metrics provides Prometheus metrics for the file-manager server.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desktop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "desktop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Object store metrics
	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "desktop_storage_operation_duration_seconds",
			Help:    "Object store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desktop_storage_operations_total",
			Help: "Total object store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	storageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desktop_storage_bytes_total",
			Help: "Bytes moved to and from the object store",
		},
		[]string{"backend", "direction"},
	)

	// Virtual filesystem metrics
	fsOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desktop_fs_operations_total",
			Help: "Virtual filesystem operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	fsOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "desktop_fs_operation_duration_seconds",
			Help:    "Virtual filesystem operation duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	archiveBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desktop_archive_bytes_total",
			Help: "Archive bytes built or extracted",
		},
		[]string{"direction", "format"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desktop_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"method", "result"},
	)

	// Document store metrics
	docstoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "desktop_docstore_query_duration_seconds",
			Help:    "Document store query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	docstoreConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "desktop_docstore_connections_open",
			Help: "Number of open document store connections",
		},
	)

	// Session and event metrics
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "desktop_filemanager_sessions",
			Help: "Number of live file-manager widget sessions",
		},
	)

	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "desktop_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desktop_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "desktop_rate_limit_hits_total",
			Help: "Total requests rejected by the per-user rate limit",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordStorageOperation records a single object store call.
func RecordStorageOperation(backend, operation string, duration time.Duration, success bool) {
	storageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storageOperationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordStorageBytes records object payload bytes; direction is "read" or "write".
func RecordStorageBytes(backend, direction string, n int) {
	storageBytesTotal.WithLabelValues(backend, direction).Add(float64(n))
}

// RecordFSOperation records a virtual filesystem operation and its outcome.
func RecordFSOperation(operation, outcome string, duration time.Duration) {
	fsOperationsTotal.WithLabelValues(operation, outcome).Inc()
	fsOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordArchiveBytes records archive payload size; direction is "built" or "extracted".
func RecordArchiveBytes(direction, format string, n int) {
	archiveBytesTotal.WithLabelValues(direction, format).Add(float64(n))
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(method string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(method, result).Inc()
}

// RecordDocstoreQuery records a document store query duration.
func RecordDocstoreQuery(query string, duration time.Duration) {
	docstoreQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDocstoreConnectionsOpen sets the number of open document store connections.
func SetDocstoreConnectionsOpen(count int) {
	docstoreConnectionsOpen.Set(float64(count))
}

// SetSessions sets the number of live widget sessions.
func SetSessions(count int) {
	sessionsActive.Set(float64(count))
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records a published SSE event.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordRateLimitHit records a rejected request.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", rw.ResponseWriter)
	}
	return h.Hijack()
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, rw.statusCode, time.Since(start))
	})
}
