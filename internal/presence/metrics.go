package presence

import "github.com/prometheus/client_golang/prometheus"

var (
	pollCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "presence",
		Name:      "poll_ticks_total",
		Help:      "Presence poll ticks by mode and result.",
	}, []string{"mode", "result"})
	pollDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "field_presence",
		Subsystem: "presence",
		Name:      "poll_duration_seconds",
		Help:      "Latency of presence fetches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})
	cacheSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "field_presence",
		Subsystem: "presence",
		Name:      "cache_agents",
		Help:      "Number of agents held in the presence cache.",
	})
	evictedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "presence",
		Name:      "cache_evictions_total",
		Help:      "Records evicted because the cache was full.",
	})
	sinkFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "field_presence",
		Subsystem: "presence",
		Name:      "sink_failures_total",
		Help:      "Snapshot deliveries that failed, per sink.",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(pollCounter, pollDuration, cacheSizeGauge, evictedCounter, sinkFailureCounter)
}
