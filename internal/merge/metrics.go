package merge

import "github.com/prometheus/client_golang/prometheus"

var outcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trainingsync",
	Subsystem: "merge",
	Name:      "records_total",
	Help:      "Remote records processed by the merge engine grouped by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(outcomeCounter)
}

func recordOutcome(outcome Outcome, n int) {
	outcomeCounter.WithLabelValues(string(outcome)).Add(float64(n))
}
