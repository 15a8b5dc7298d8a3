package acquire

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	raceOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "acquisition",
		Name:      "races_total",
		Help:      "Bounded location fetches grouped by outcome (fix, timeout, error).",
	}, []string{"outcome"})

	raceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "field_presence",
		Subsystem: "acquisition",
		Name:      "race_duration_seconds",
		Help:      "Time from starting a bounded fetch to its resolution.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(raceOutcomeCounter, raceDuration)
}

func recordOutcome(outcome string, elapsed time.Duration) {
	raceOutcomeCounter.WithLabelValues(outcome).Inc()
	raceDuration.Observe(elapsed.Seconds())
}
