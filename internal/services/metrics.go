package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// idemResolutions counts Resolve outcomes: new, replay, in_flight, key_reuse,
	// error, plus released for records dropped by Release.
	idemResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_resolutions_total",
			Help: "Idempotency key resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	// accountPurges counts purge attempts: success, failed, skipped.
	accountPurges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_purges_total",
			Help: "Account purge attempts by result.",
		},
		[]string{"result"},
	)

	// sweepItems counts items handled per sweep and result.
	sweepItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_sweep_items_total",
			Help: "Items processed by the retention sweep.",
		},
		[]string{"sweep", "result"},
	)

	// sweepDuration observes each sweep's wall time.
	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retention_sweep_duration_seconds",
			Help:    "Duration of retention sweeps in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"sweep"},
	)
)

func init() {
	prometheus.MustRegister(idemResolutions, accountPurges, sweepItems, sweepDuration)
}
