package uplink

import "github.com/prometheus/client_golang/prometheus"

var (
	sentCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "uplink",
		Name:      "samples_sent_total",
		Help:      "Location samples accepted by the collector.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "uplink",
		Name:      "samples_failed_total",
		Help:      "Location samples whose transmission failed. These are not retried.",
	})

	droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "uplink",
		Name:      "samples_dropped_total",
		Help:      "Location samples discarded by the rate guard.",
	})
)

func init() {
	prometheus.MustRegister(sentCounter, failedCounter, droppedCounter)
}
