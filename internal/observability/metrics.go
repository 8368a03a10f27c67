// Package observability exposes watermark gauges shared by the sync components.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainingsync",
		Subsystem: "engine",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed sync pass.",
	})
	lastPullGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainingsync",
		Subsystem: "engine",
		Name:      "last_pull_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed pull from the remote store.",
	})
	pendingRecordsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trainingsync",
		Subsystem: "engine",
		Name:      "pending_records",
		Help:      "Local records still waiting to be synced after the last pass.",
	})
)

func init() {
	prometheus.MustRegister(lastSyncGauge, lastPullGauge, pendingRecordsGauge)
}

// RecordSyncCompleted updates the sync watermark gauge.
func RecordSyncCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}

// RecordPullCompleted updates the pull watermark gauge.
func RecordPullCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastPullGauge.Set(float64(ts.Unix()))
}

// SetPendingRecords reports how many records still need syncing.
func SetPendingRecords(n int) {
	pendingRecordsGauge.Set(float64(n))
}
