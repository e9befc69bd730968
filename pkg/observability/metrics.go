package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication pipeline metrics
	AuthAttemptsTotal *prometheus.CounterVec

	// Permission cache metrics
	PermissionCacheHitsTotal     prometheus.Counter
	PermissionCacheMissesTotal   prometheus.Counter
	PermissionCacheInvalidations *prometheus.CounterVec

	// Invitation metrics
	InvitationsClaimedTotal prometheus.Counter
	InvitationsExpiredTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shuttertag_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shuttertag_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shuttertag_auth_attempts_total",
				Help: "Authentication attempts by outcome (ok, unauthorized, forbidden, not_found)",
			},
			[]string{"outcome"},
		),
		PermissionCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shuttertag_permission_cache_hits_total",
				Help: "Effective-permission cache hits",
			},
		),
		PermissionCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shuttertag_permission_cache_misses_total",
				Help: "Effective-permission cache misses",
			},
		),
		PermissionCacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shuttertag_permission_cache_invalidations_total",
				Help: "Permission cache invalidations by scope (subject, tenant, pair, all)",
			},
			[]string{"scope"},
		),
		InvitationsClaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shuttertag_invitations_claimed_total",
				Help: "Invitations converted into memberships by the auto-claimer",
			},
		),
		InvitationsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shuttertag_invitations_expired_total",
				Help: "Expired invitations removed by the janitor",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shuttertag_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shuttertag_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.PermissionCacheHitsTotal,
		m.PermissionCacheMissesTotal,
		m.PermissionCacheInvalidations,
		m.InvitationsClaimedTotal,
		m.InvitationsExpiredTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
