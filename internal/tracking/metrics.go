package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_active_sessions",
		Help: "Number of tracking sessions currently registered.",
	})

	snapshotsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_snapshots_delivered_total",
		Help: "Total snapshots delivered to observers.",
	})

	observersEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_observers_evicted_total",
		Help: "Observers removed because delivery to them failed.",
	})

	staleReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_stale_reports_total",
		Help: "Location reports discarded for carrying an old timestamp.",
	})

	terminalReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_terminal_reports_total",
		Help: "Location reports rejected because the session was terminal.",
	})
)
