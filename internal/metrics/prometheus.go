package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of API authentication failures",
		},
	)
)

// Database metrics
var (
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// Scheduler metrics
var (
	SchedulerSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_sweeps_total",
			Help: "Total number of due-campaign sweeps",
		},
		[]string{"result"}, // ok, error
	)

	SchedulerCampaignsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_campaigns_dispatched_total",
			Help: "Total number of scheduled campaigns dispatched by the sweeper",
		},
	)
)

// RecordPoolStats publishes connection pool gauges.
func RecordPoolStats(acquired, idle int32) {
	DBConnectionsActive.Set(float64(acquired))
	DBConnectionsIdle.Set(float64(idle))
}

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
