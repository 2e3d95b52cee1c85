package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Fetch cycle outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metric instruments for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Controller metrics
	ControllerEventsTotal      *prometheus.CounterVec
	ControllerFetchCyclesTotal *prometheus.CounterVec
	ControllerFetchDuration    prometheus.Histogram
	ControllerTriggersDropped  *prometheus.CounterVec

	// Backend metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     prometheus.Histogram
	BackendCircuitBreakerState prometheus.Gauge
	BackendRetriesTotal        prometheus.Counter

	// Cache metrics
	PageCacheHitsTotal   prometheus.Counter
	PageCacheMissesTotal prometheus.Counter

	// Session metrics
	SessionsActive       prometheus.Gauge
	SessionsCreatedTotal prometheus.Counter
	SessionsClosedTotal  *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charlist_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "charlist_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "charlist_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "charlist_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Controller
		ControllerEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charlist_controller_events_total",
			Help: "Total number of events processed by list controllers.",
		}, []string{"event"}),
		ControllerFetchCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charlist_controller_fetch_cycles_total",
			Help: "Total number of page fetch cycles.",
		}, []string{"outcome"}),
		ControllerFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "charlist_controller_fetch_duration_seconds",
			Help:    "Page fetch cycle duration in seconds.",
			Buckets: backendDurationBuckets,
		}),
		ControllerTriggersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charlist_controller_triggers_dropped_total",
			Help: "Total number of triggers dropped while a fetch was in flight.",
		}, []string{"event"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charlist_backend_requests_total",
			Help: "Total number of characters API requests.",
		}, []string{"status"}),
		BackendRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "charlist_backend_request_duration_seconds",
			Help:    "Characters API request duration in seconds.",
			Buckets: backendDurationBuckets,
		}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "charlist_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BackendRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "charlist_backend_retries_total",
			Help: "Total number of characters API request retries.",
		}),

		// Cache
		PageCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "charlist_page_cache_hits_total",
			Help: "Total page cache hits.",
		}),
		PageCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "charlist_page_cache_misses_total",
			Help: "Total page cache misses.",
		}),

		// Sessions
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "charlist_sessions_active",
			Help: "Number of open list sessions.",
		}),
		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "charlist_sessions_created_total",
			Help: "Total number of list sessions created.",
		}),
		SessionsClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charlist_sessions_closed_total",
			Help: "Total number of list sessions closed.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Controller
		m.ControllerEventsTotal,
		m.ControllerFetchCyclesTotal,
		m.ControllerFetchDuration,
		m.ControllerTriggersDropped,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		// Cache
		m.PageCacheHitsTotal,
		m.PageCacheMissesTotal,
		// Sessions
		m.SessionsActive,
		m.SessionsCreatedTotal,
		m.SessionsClosedTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordControllerEvent records an event handled by a list controller.
func (m *Metrics) RecordControllerEvent(event string) {
	if m == nil {
		return
	}
	m.ControllerEventsTotal.WithLabelValues(event).Inc()
}

// RecordFetchCycle records the outcome and duration of a page fetch cycle.
func (m *Metrics) RecordFetchCycle(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ControllerFetchCyclesTotal.WithLabelValues(outcome).Inc()
	m.ControllerFetchDuration.Observe(duration.Seconds())
}

// RecordTriggerDropped records a trigger ignored because a fetch was in flight.
func (m *Metrics) RecordTriggerDropped(event string) {
	if m == nil {
		return
	}
	m.ControllerTriggersDropped.WithLabelValues(event).Inc()
}

// RecordBackendRequest records a characters API request. A status of 0 means
// the request never produced a response.
func (m *Metrics) RecordBackendRequest(status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.Set(state)
}

// RecordBackendRetry records a characters API request retry.
func (m *Metrics) RecordBackendRetry() {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.Inc()
}

// RecordPageCacheHit records a page cache hit.
func (m *Metrics) RecordPageCacheHit() {
	if m == nil {
		return
	}
	m.PageCacheHitsTotal.Inc()
}

// RecordPageCacheMiss records a page cache miss.
func (m *Metrics) RecordPageCacheMiss() {
	if m == nil {
		return
	}
	m.PageCacheMissesTotal.Inc()
}

// RecordSessionCreated records a new session.
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a session leaving the manager. Reason is one of
// "closed", "expired", "evicted" or "shutdown".
func (m *Metrics) RecordSessionClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsClosedTotal.WithLabelValues(reason).Inc()
	m.SessionsActive.Dec()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newResponseRecorder(w)

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, rec.status, duration, reqSize, rec.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}
