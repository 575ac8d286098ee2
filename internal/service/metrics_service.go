package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the cache layer and the match engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	matchComparisons prometheus.Counter
	matchesRecorded  *prometheus.CounterVec
	matchConflicts   prometheus.Counter

	notificationsDispatched prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	matchComparisons := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "match_comparisons_total",
		Help: "Total candidate pairs scored by the match engine",
	})

	matchesRecorded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matches_recorded_total",
		Help: "Total match links recorded, partitioned by confirmation",
	}, []string{"confirmed"})

	matchConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "match_version_conflicts_total",
		Help: "Total optimistic-concurrency retries during match recording",
	})

	notificationsDispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Total notifications handed to the dispatch queue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		matchComparisons, matchesRecorded, matchConflicts, notificationsDispatched, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:                registry,
		handler:                 handler,
		requestDuration:         requestDuration,
		requestTotal:            requestTotal,
		cacheHits:               cacheHits,
		cacheMisses:             cacheMisses,
		matchComparisons:        matchComparisons,
		matchesRecorded:         matchesRecorded,
		matchConflicts:          matchConflicts,
		notificationsDispatched: notificationsDispatched,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordCacheOperation tracks cache hit/miss counters.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordMatchComparison counts one scored candidate pair.
func (m *MetricsService) RecordMatchComparison() {
	if m == nil {
		return
	}
	m.matchComparisons.Inc()
}

// RecordMatchFound counts one recorded match link.
func (m *MetricsService) RecordMatchFound(confirmed bool) {
	if m == nil {
		return
	}
	m.matchesRecorded.WithLabelValues(strconv.FormatBool(confirmed)).Inc()
}

// RecordMatchConflictRetry counts one optimistic-concurrency retry.
func (m *MetricsService) RecordMatchConflictRetry() {
	if m == nil {
		return
	}
	m.matchConflicts.Inc()
}

// RecordNotificationDispatched counts one enqueued notification.
func (m *MetricsService) RecordNotificationDispatched() {
	if m == nil {
		return
	}
	m.notificationsDispatched.Inc()
}
