package collector

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "field_presence",
	Subsystem: "collector",
	Name:      "request_duration_seconds",
	Help:      "Latency of collector requests by endpoint and status code (0 for transport errors).",
	Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
}, []string{"endpoint", "status"})

func init() {
	prometheus.MustRegister(requestDuration)
}

func recordRequest(endpoint string, status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
