package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics for Prometheus monitoring.
var (
	DelayedJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_jobs_delayed",
			Help: "Number of jobs waiting for their not-before time",
		},
		[]string{"queue"},
	)

	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of jobs enqueued by backend",
		},
		[]string{"backend"},
	)

	JobsPromotedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_jobs_promoted_total",
			Help: "Total number of delayed jobs moved to the ready stream",
		},
	)

	JobsReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_jobs_reclaimed_total",
			Help: "Total number of idle pending entries taken over by the reclaimer",
		},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Total number of jobs processed by status",
		},
		[]string{"status"}, // sent, failed, dlq, deferred
	)

	JobProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_job_processing_duration_seconds",
			Help:    "Duration of job processing operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dlq_jobs_total",
			Help: "Total number of jobs moved to DLQ by reason",
		},
		[]string{"reason"},
	)
)
