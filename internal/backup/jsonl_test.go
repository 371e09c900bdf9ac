package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/schema"
)

func newTestStore(t *testing.T) *repo.Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "pacelog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema())
	database.SetClock(func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) })
	return repo.New(database)
}

func seed(t *testing.T, store *repo.Store) schema.Activity {
	t.Helper()
	ctx := context.Background()

	running, err := store.Activities.Create(ctx, schema.NewActivity{Name: "Running", QuantityUnit: "km"})
	require.NoError(t, err)
	_, err = store.ActivityKinds.Create(ctx, schema.NewActivityKind{ActivityID: running.ID, Name: "Trail"})
	require.NoError(t, err)
	q := 5.0
	_, err = store.ActivityLogs.Create(ctx, schema.NewActivityLog{ActivityID: running.ID, Quantity: &q, Date: "2026-01-31"})
	require.NoError(t, err)
	_, err = store.Goals.Create(ctx, schema.NewGoal{ActivityID: running.ID, DailyTargetQuantity: 3, StartDate: "2026-01-01"})
	require.NoError(t, err)
	_, err = store.Tasks.Create(ctx, schema.NewTask{Title: "Buy shoes"})
	require.NoError(t, err)

	gone, err := store.Tasks.Create(ctx, schema.NewTask{Title: "Gone"})
	require.NoError(t, err)
	require.NoError(t, store.Tasks.SoftDelete(ctx, gone.ID))
	return running
}

func TestExport_ParentsFirst(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	var buf bytes.Buffer
	counts, err := Export(context.Background(), store, &buf)
	require.NoError(t, err)
	require.Equal(t, Counts{"activities": 1, "activityKinds": 1, "goals": 1, "tasks": 1, "activityLogs": 1}, counts)
	require.Equal(t, 5, counts.Total())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)

	var first line
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "activities", first.Entity)
	require.NotContains(t, buf.String(), "Gone")
}

func TestImport_RestoresAsSynced(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	running := seed(t, src)

	var buf bytes.Buffer
	_, err := Export(ctx, src, &buf)
	require.NoError(t, err)

	dst := newTestStore(t)
	counts, err := Import(ctx, dst, &buf, ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 5, counts.Total())

	row, err := dst.Activities.Get(ctx, running.ID)
	require.NoError(t, err)
	require.Equal(t, schema.StatusSynced, row.SyncStatus)
	require.Equal(t, running, row.Record)

	logs, err := dst.ActivityLogs.GetByActivity(ctx, running.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	status, err := dst.Status(ctx)
	require.NoError(t, err)
	require.Zero(t, status.Pending())
}

func TestImport_DryRun(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	seed(t, src)

	var buf bytes.Buffer
	_, err := Export(ctx, src, &buf)
	require.NoError(t, err)

	dst := newTestStore(t)
	counts, err := Import(ctx, dst, &buf, ImportOptions{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 5, counts.Total())

	activities, err := dst.Activities.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, activities)
}

func TestImport_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad json", "{not json}\n", "invalid JSON at line 1"},
		{"unknown entity", `{"entity":"habits","record":{}}` + "\n", `line 1: unknown entity "habits"`},
		{"missing id", `{"entity":"tasks","record":{"title":"x"}}` + "\n", "line 1: id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			_, err := Import(context.Background(), store, strings.NewReader(tt.input), ImportOptions{})
			require.ErrorContains(t, err, tt.want)

			tasks, err := store.Tasks.GetAll(context.Background())
			require.NoError(t, err)
			require.Empty(t, tasks)
		})
	}
}
