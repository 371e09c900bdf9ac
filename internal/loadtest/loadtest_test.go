package loadtest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/remote"
	"github.com/pacelog/pacelog/internal/repo"
	pacesync "github.com/pacelog/pacelog/internal/sync"
)

var smallPlan = Plan{
	Activities:       3,
	KindsPerActivity: 2,
	LogsPerActivity:  4,
	GoalsPerActivity: 1,
	Tasks:            5,
}

var tinyChunks = pacesync.ChunkSizes{Activities: 2, ActivityKinds: 2, Goals: 2, Tasks: 2, ActivityLogs: 2}

func seededStore(t *testing.T) *repo.Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "load.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema())

	store := repo.New(database)
	require.NoError(t, Seed(context.Background(), store, smallPlan))
	return store
}

func TestSeed(t *testing.T) {
	store := seededStore(t)

	status, err := store.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, smallPlan.Total(), status.Pending())
	require.Equal(t, 29, smallPlan.Total())
}

func TestRun_Sequential(t *testing.T) {
	store := seededStore(t)
	server := NewServer(ServerOptions{})
	defer server.Close()

	result, err := Run(context.Background(), store, remote.NewClient(nil, server.URL, "", nil), tinyChunks, false, nil)
	require.NoError(t, err)

	// activities max(2,3) + goals 2 + tasks 3 + logs 6
	require.Equal(t, 14, server.Requests())
	require.Equal(t, 14, result.Latency.Requests)
	require.Zero(t, result.Latency.Errors)
	require.Equal(t, smallPlan.Total(), result.Synced())
	require.Zero(t, result.Failed())

	status, err := store.Status(context.Background())
	require.NoError(t, err)
	require.Zero(t, status.Pending())
}

func TestRun_ConcurrentWithSkips(t *testing.T) {
	store := seededStore(t)
	server := NewServer(ServerOptions{SkipEvery: 2, Latency: time.Millisecond})
	defer server.Close()

	result, err := Run(context.Background(), store, remote.NewClient(nil, server.URL, "", nil), tinyChunks, true, nil)
	require.NoError(t, err)
	require.Len(t, result.Reports, 4)
	require.Equal(t, 13, result.Failed())
	require.Equal(t, 16, result.Synced())
	require.GreaterOrEqual(t, result.Latency.Min, time.Millisecond)

	status, err := store.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, 13, status.Failed())
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := computeLatencyStats(durations)
	require.Equal(t, time.Millisecond, stats.Min)
	require.Equal(t, 100*time.Millisecond, stats.Max)
	require.Equal(t, 51*time.Millisecond, stats.P50)
	require.Equal(t, 96*time.Millisecond, stats.P95)
	require.Equal(t, 100*time.Millisecond, stats.P99)
	require.Equal(t, 100, stats.Requests)

	var buf bytes.Buffer
	stats.Print(&buf)
	require.Contains(t, buf.String(), "Requests:      100")

	require.Equal(t, &LatencyStats{}, computeLatencyStats(nil))
}
