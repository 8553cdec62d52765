package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_time_seconds",
		Help:    "Time spent matching a request to a worker.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	dispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_attempts_total",
		Help: "Total dispatch attempts grouped by outcome.",
	}, []string{"result"})
)
