package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/trainingsync/internal/domain"
)

const (
	passCompleted       = "completed"
	passOffline         = "offline"
	passUnauthenticated = "unauthenticated"
	passAborted         = "aborted"

	recordSynced = "synced"
	recordFailed = "failed"

	deleteCleared = "cleared"
	deleteFailed  = "failed"
)

var (
	passCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "sync",
		Name:      "passes_total",
		Help:      "Sync passes grouped by how they ended.",
	}, []string{"result"})

	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trainingsync",
		Subsystem: "sync",
		Name:      "pass_duration_seconds",
		Help:      "Duration of sync passes that reached the remote store.",
		Buckets:   prometheus.DefBuckets,
	})

	recordCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "sync",
		Name:      "records_total",
		Help:      "Records pushed to the remote store grouped by activity type and outcome.",
	}, []string{"activity_type", "outcome"})

	deleteCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainingsync",
		Subsystem: "sync",
		Name:      "deletes_total",
		Help:      "Queued remote deletes grouped by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(passCounter, passDuration, recordCounter, deleteCounter)
}

func recordPass(result string, elapsed time.Duration) {
	passCounter.WithLabelValues(result).Inc()
	if elapsed > 0 {
		passDuration.Observe(elapsed.Seconds())
	}
}

func recordRecord(activityType domain.ActivityType, outcome string) {
	recordCounter.WithLabelValues(string(activityType), outcome).Inc()
}

func recordDelete(outcome string) {
	deleteCounter.WithLabelValues(outcome).Inc()
}
