package tracking

import "github.com/prometheus/client_golang/prometheus"

var (
	acceptedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "sampler",
		Name:      "fixes_accepted_total",
		Help:      "Platform fixes that passed the cadence gate and were forwarded.",
	})

	skippedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "sampler",
		Name:      "fixes_skipped_total",
		Help:      "Platform fixes rejected by the cadence gate or carrying invalid coordinates.",
	})

	permissionDeniedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "sampler",
		Name:      "permission_denied_total",
		Help:      "Start attempts refused because location permission was not granted.",
	})

	activeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "field_presence",
		Subsystem: "sampler",
		Name:      "subscription_active",
		Help:      "1 while a location subscription is active.",
	})
)

func init() {
	prometheus.MustRegister(acceptedCounter, skippedCounter, permissionDeniedCounter, activeGauge)
}
