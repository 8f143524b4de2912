package observability

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and disables instrumentation; every record method tolerates it so
// components never need to guard their metric calls.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec
	CacheErrorsTotal        prometheus.Counter

	// Token metrics
	TokenOperationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_http_requests_total",
			Help: "Total HTTP requests by method, path and status code",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		AuthzDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_authz_decisions_total",
			Help: "Authorization decisions by requirement kind and outcome",
		}, []string{"requirement", "decision"}),

		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_cache_hits_total",
			Help: "Cache hits by entity namespace",
		}, []string{"namespace"}),

		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_cache_misses_total",
			Help: "Cache misses by entity namespace",
		}, []string{"namespace"}),

		CacheInvalidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_cache_invalidations_total",
			Help: "Cache invalidation sweeps by entity namespace",
		}, []string{"namespace"}),

		CacheErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_cache_errors_total",
			Help: "Cache backend failures (never propagated to callers)",
		}),

		TokenOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_token_operations_total",
			Help: "Token operations by kind and result",
		}, []string{"operation", "result"}),

		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_db_connections_active",
			Help: "Open database connections currently in use",
		}),

		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_db_connections_idle",
			Help: "Idle database connections in the pool",
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.CacheErrorsTotal,
		m.TokenOperationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthzDecision records an authorization decision.
func (m *Metrics) RecordAuthzDecision(requirement, decision string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(requirement, decision).Inc()
}

// RecordCacheHit records a cache hit for a namespace.
func (m *Metrics) RecordCacheHit(namespace string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(namespace).Inc()
}

// RecordCacheMiss records a cache miss for a namespace.
func (m *Metrics) RecordCacheMiss(namespace string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(namespace).Inc()
}

// RecordCacheInvalidation records an invalidation sweep for a namespace.
func (m *Metrics) RecordCacheInvalidation(namespace string) {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(namespace).Inc()
}

// RecordCacheError records a swallowed cache backend failure.
func (m *Metrics) RecordCacheError() {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.Inc()
}

// RecordTokenOperation records a token service operation and its result.
func (m *Metrics) RecordTokenOperation(operation, result string) {
	if m == nil {
		return
	}
	m.TokenOperationsTotal.WithLabelValues(operation, result).Inc()
}

// UpdateDBStats publishes connection pool statistics.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}
