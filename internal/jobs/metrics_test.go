package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("orders:reconcile").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("orders:reconcile").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("orders:reconcile", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("orders:reconcile", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("orders:reconcile")))
}

func TestSetDrift(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetDrift(3, 1)
	require.Equal(t, 3.0, testutil.ToFloat64(m.drift.WithLabelValues("status_mismatch")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.drift.WithLabelValues("overpaid")))

	var nilMetrics *Metrics
	nilMetrics.SetDrift(1, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
