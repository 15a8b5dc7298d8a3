package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sampleUplinkedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "field_presence",
		Subsystem: "uplink",
		Name:      "last_sample_uplinked_timestamp_seconds",
		Help:      "Capture time of the most recent location sample accepted by the collector.",
	})
	presenceRefreshGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "field_presence",
		Subsystem: "presence",
		Name:      "last_refresh_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful presence poll, per mode.",
	}, []string{"mode"})
	punchAcceptedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "field_presence",
		Subsystem: "punch",
		Name:      "last_accepted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent punch acknowledged by the collector.",
	})
)

func init() {
	prometheus.MustRegister(sampleUplinkedGauge, presenceRefreshGauge, punchAcceptedGauge)
}

// RecordSampleUplinked updates the uplink watermark gauge.
func RecordSampleUplinked(ts time.Time) {
	if ts.IsZero() {
		return
	}
	sampleUplinkedGauge.Set(float64(ts.Unix()))
}

// RecordPresenceRefresh updates the presence watermark for a poll mode.
func RecordPresenceRefresh(mode string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	presenceRefreshGauge.WithLabelValues(mode).Set(float64(ts.Unix()))
}

// RecordPunchAccepted updates the punch watermark gauge.
func RecordPunchAccepted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	punchAcceptedGauge.Set(float64(ts.Unix()))
}
