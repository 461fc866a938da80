package mailsink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sinkMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsink_messages_total",
			Help: "Messages accepted by the development SMTP sink",
		},
	)

	sinkRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsink_rejected_total",
			Help: "Connections or commands rejected by the SMTP sink, by reason",
		},
		[]string{"reason"},
	)

	sinkActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailsink_active_sessions",
			Help: "Open SMTP sink sessions",
		},
	)
)
