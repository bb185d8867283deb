package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestTimer_ObserveDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_timer_histogram"})
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	timer.ObserveDuration(h)

	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	require.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}

func TestZoneDataBytes_SetAndRead(t *testing.T) {
	ZoneDataBytes.WithLabelValues("0").Set(1024)
	m := &dto.Metric{}
	require.NoError(t, ZoneDataBytes.WithLabelValues("0").Write(m))
	require.Equal(t, float64(1024), m.GetGauge().GetValue())
}
