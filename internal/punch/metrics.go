package punch

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/fieldpresence/internal/domain"
)

var punchOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "field_presence",
	Subsystem: "punch",
	Name:      "submissions_total",
	Help:      "Punch submission attempts by kind and result.",
}, []string{"kind", "result"})

func init() {
	prometheus.MustRegister(punchOutcomeCounter)
}

func recordOutcome(kind domain.PunchKind, result string) {
	punchOutcomeCounter.WithLabelValues(string(kind), result).Inc()
}
