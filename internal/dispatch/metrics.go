package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_total",
			Help: "Subscribers processed by dispatch runs, by outcome",
		},
		[]string{"outcome"},
	)

	dispatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_runs_total",
			Help: "Dispatch runs by result",
		},
		[]string{"result"},
	)

	dispatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_run_duration_seconds",
			Help:    "Duration of successful dispatch runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)
)
