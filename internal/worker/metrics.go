package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "worker_deliveries_total",
		Help: "Delivery jobs handled by the worker, by result",
	},
	[]string{"result"},
)
