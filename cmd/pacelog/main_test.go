package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pacelog/pacelog/internal/config"
	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/schema"
)

func testApp(t *testing.T, serverURL string) *app {
	t.Helper()
	c := config.Default()
	c.DataDir = t.TempDir()
	c.DBPath = filepath.Join(c.DataDir, "pacelog.db")
	c.ServerURL = serverURL

	a, err := openApp(context.Background(), c, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestParseDay(t *testing.T) {
	now := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		in   string
		want string
	}{
		{"", "2026-03-11"},
		{"2026-01-15", "2026-01-15"},
		{"yesterday", "2026-03-10"},
		{"tomorrow", "2026-03-12"},
	}
	for _, tt := range tests {
		got, err := parseDay(tt.in, now)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseDay("zzz", now)
	require.Error(t, err)
}

func TestWriteStructured(t *testing.T) {
	status := &repo.Status{
		Entities:    []repo.EntityStatus{{Entity: "goals", Synced: 2, Pending: 1}},
		IconDeletes: 3,
	}

	var buf bytes.Buffer
	require.NoError(t, writeStructured(&buf, "json", status))
	var decoded repo.Status
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, *status, decoded)

	buf.Reset()
	require.NoError(t, writeStructured(&buf, "yaml", status))
	require.Contains(t, buf.String(), "iconDeletes: 3")
	require.Contains(t, buf.String(), "entity: goals")

	require.Error(t, writeStructured(&buf, "xml", status))
}

func TestWriteStatus_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStatus(&buf, "table", &repo.Status{
		Entities: []repo.EntityStatus{{Entity: "tasks", Synced: 1}},
	}))
	require.Contains(t, buf.String(), "tasks")
}

func TestSummarizeGoal(t *testing.T) {
	ctx := context.Background()
	a := testApp(t, "http://localhost:8080")

	activity, err := a.store.Activities.Create(ctx, schema.NewActivity{Name: "Running", IconType: schema.IconEmoji})
	require.NoError(t, err)
	g, err := a.store.Goals.Create(ctx, schema.NewGoal{
		ActivityID:          activity.ID,
		DailyTargetQuantity: 10,
		StartDate:           "2026-01-01",
	})
	require.NoError(t, err)

	for date, q := range map[string]float64{"2026-01-01": 10, "2026-01-03": 20} {
		q := q
		_, err := a.store.ActivityLogs.Create(ctx, schema.NewActivityLog{
			ActivityID: activity.ID,
			Quantity:   &q,
			Date:       date,
		})
		require.NoError(t, err)
	}

	summary, err := summarizeGoal(ctx, a, g.ID, "2026-01-03")
	require.NoError(t, err)
	require.Equal(t, 3, summary.Balance.DaysActive)
	require.Equal(t, 30.0, summary.Balance.TotalTarget)
	require.Equal(t, 30.0, summary.Balance.TotalActual)
	require.Equal(t, 0.0, summary.Balance.CurrentBalance)
	require.Equal(t, []string{"2026-01-02"}, summary.InactiveDates)

	_, err = summarizeGoal(ctx, a, "missing", "2026-01-03")
	require.Error(t, err)
}

func TestOpenApp_SyncsAgainstServer(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var body map[string][]map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{}
		for key, recs := range body {
			ids := []string{}
			for _, rec := range recs {
				ids = append(ids, rec["id"].(string))
			}
			resp[key] = map[string]any{"syncedIds": ids, "skippedIds": []string{}, "serverWins": []any{}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	ctx := context.Background()
	a := testApp(t, server.URL)

	_, err := a.store.Tasks.Create(ctx, schema.NewTask{Title: "Stretch"})
	require.NoError(t, err)

	reports, err := a.driver.SyncAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 4)
	require.Equal(t, int32(1), requests.Load(), "only the tasks family had pending records")

	status, err := a.store.Status(ctx)
	require.NoError(t, err)
	require.Zero(t, status.Pending())

	var out bytes.Buffer
	require.NoError(t, writeStatus(&out, "table", status))
	require.True(t, strings.Contains(out.String(), "Everything is synced"))
}
