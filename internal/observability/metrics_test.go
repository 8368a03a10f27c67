package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestWatermarkGauges(t *testing.T) {
	ts := time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC)
	RecordSyncCompleted(ts)
	RecordPullCompleted(time.Time{})
	SetPendingRecords(4)

	require.Equal(t, float64(ts.Unix()), gaugeValue(t, "trainingsync_engine_last_sync_timestamp_seconds"))
	require.Equal(t, float64(4), gaugeValue(t, "trainingsync_engine_pending_records"))
}

func gaugeValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var family *dto.MetricFamily
	for _, candidate := range families {
		if candidate.GetName() == name {
			family = candidate
			break
		}
	}
	require.NotNil(t, family, "metric %s not registered", name)
	require.Equal(t, dto.MetricType_GAUGE, family.GetType())
	require.Len(t, family.GetMetric(), 1)
	return family.GetMetric()[0].GetGauge().GetValue()
}
