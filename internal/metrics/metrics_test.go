package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordResolved(t *testing.T) {
	before := testutil.ToFloat64(recordsCounter.WithLabelValues("goals", "synced"))
	RecordResolved("goals", "synced", 3)
	RecordResolved("goals", "synced", 0)
	require.Equal(t, before+3, testutil.ToFloat64(recordsCounter.WithLabelValues("goals", "synced")))
}

func TestRecordChunk(t *testing.T) {
	okBefore := testutil.ToFloat64(chunkCounter.WithLabelValues("tasks", OutcomeOK))
	errBefore := testutil.ToFloat64(chunkCounter.WithLabelValues("tasks", OutcomeError))
	RecordChunk("tasks", true)
	RecordChunk("tasks", false)
	require.Equal(t, okBefore+1, testutil.ToFloat64(chunkCounter.WithLabelValues("tasks", OutcomeOK)))
	require.Equal(t, errBefore+1, testutil.ToFloat64(chunkCounter.WithLabelValues("tasks", OutcomeError)))
}

func TestRecordCycle(t *testing.T) {
	end := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	RecordCycle("activities", 250*time.Millisecond, end)
	require.Equal(t, float64(end.Unix()), testutil.ToFloat64(lastCycleGauge.WithLabelValues("activities")))
}
