package mailer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_sends_total",
		Help: "Total email send attempts by transport and result",
	}, []string{"transport", "status"})

	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailer_send_duration_seconds",
		Help:    "Duration of email send attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport"})
)
