package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/remote"
	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/schema"
)

type sentRequest struct {
	path string
	body map[string][]map[string]any
}

// fakeTransport records every request and answers through respond.
type fakeTransport struct {
	mu       stdsync.Mutex
	requests []sentRequest
	respond  func(i int, body map[string][]map[string]any) (remote.BatchResponse, error)
}

func (f *fakeTransport) PostBatch(ctx context.Context, path string, body any) (remote.BatchResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var decoded map[string][]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	f.mu.Lock()
	i := len(f.requests)
	f.requests = append(f.requests, sentRequest{path: path, body: decoded})
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return acceptAll(decoded), nil
	}
	return respond(i, decoded)
}

func (f *fakeTransport) sent() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.requests...)
}

// sizes returns the number of records sent under key in each request.
func (f *fakeTransport) sizes(key string) []int {
	var out []int
	for _, r := range f.sent() {
		out = append(out, len(r.body[key]))
	}
	return out
}

func acceptAll(body map[string][]map[string]any) remote.BatchResponse {
	resp := remote.BatchResponse{}
	for key, records := range body {
		ids := make([]string, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec["id"].(string))
		}
		resp[key] = remote.Result{SyncedIDs: ids}
	}
	return resp
}

func newTestStore(t *testing.T) *repo.Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "pacelog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema())
	return repo.New(database)
}

func newTestDriver(t *testing.T, store *repo.Store, tr Transport, sizes ChunkSizes) *Driver {
	t.Helper()
	return NewDriver(store, tr, sizes, zaptest.NewLogger(t).Sugar())
}

func createActivities(t *testing.T, store *repo.Store, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		a, err := store.Activities.Create(context.Background(), schema.NewActivity{
			Name:       fmt.Sprintf("Activity %d", i),
			OrderIndex: fmt.Sprintf("%04d", i),
		})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	return ids
}

func statusOf(t *testing.T, store *repo.Store, id string) schema.SyncStatus {
	t.Helper()
	row, err := store.Activities.Get(context.Background(), id)
	require.NoError(t, err)
	return row.SyncStatus
}

func TestSync_ZeroPendingMakesNoNetworkCall(t *testing.T) {
	store := newTestStore(t)
	tr := &fakeTransport{}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	var notified int
	driver.AddObserver(ObserverFunc(func(*Report) { notified++ }))

	reports, err := driver.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 4)
	for _, r := range reports {
		require.True(t, r.Empty())
	}
	require.Empty(t, tr.sent())
	require.Zero(t, notified)
}

func TestSync_ChunkBoundary(t *testing.T) {
	store := newTestStore(t)
	ids := createActivities(t, store, 150)
	tr := &fakeTransport{}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	report, err := driver.Sync(context.Background())
	require.NoError(t, err)

	require.Equal(t, []int{100, 50}, tr.sizes(KeyActivities))
	require.Equal(t, []int{0, 0}, tr.sizes(KeyActivityKinds))
	for _, r := range tr.sent() {
		require.Equal(t, "/users/activities/sync", r.path)
		require.Contains(t, r.body, KeyActivityKinds, "lanes without records are sent as empty lists")
	}

	// Records go out in id order, which is creation order.
	first := tr.sent()[0].body[KeyActivities]
	require.Equal(t, ids[0], first[0]["id"])
	require.Equal(t, ids[100], tr.sent()[1].body[KeyActivities][0]["id"])

	require.Equal(t, 2, report.ChunksSent)
	require.Equal(t, 150, report.Synced())
	require.False(t, report.Aborted)

	pending, err := store.Activities.GetPendingSync(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSync_LanesChunkIndependently(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	activityIDs := createActivities(t, store, 3)
	for i := 0; i < 7; i++ {
		_, err := store.ActivityKinds.Create(ctx, schema.NewActivityKind{ActivityID: activityIDs[0], Name: fmt.Sprintf("Kind %d", i)})
		require.NoError(t, err)
	}

	tr := &fakeTransport{}
	sizes := DefaultChunkSizes()
	sizes.Activities = 2
	sizes.ActivityKinds = 3
	driver := newTestDriver(t, store, tr, sizes)

	report, err := driver.Sync(ctx)
	require.NoError(t, err)

	require.Equal(t, 3, report.ChunksTotal)
	require.Equal(t, []int{2, 1, 0}, tr.sizes(KeyActivities))
	require.Equal(t, []int{3, 3, 1}, tr.sizes(KeyActivityKinds))
	require.Equal(t, 10, report.Synced())
}

func TestSync_PayloadHasNoSyncStatus(t *testing.T) {
	store := newTestStore(t)
	createActivities(t, store, 1)
	tr := &fakeTransport{}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	_, err := driver.Sync(context.Background())
	require.NoError(t, err)

	rec := tr.sent()[0].body[KeyActivities][0]
	require.NotContains(t, rec, "syncStatus")
	require.NotContains(t, rec, "SyncStatus")
	require.Contains(t, rec, "updatedAt")
}

func TestSync_TransportFailureAbortsRemainingChunks(t *testing.T) {
	store := newTestStore(t)
	ids := createActivities(t, store, 250)
	tr := &fakeTransport{
		respond: func(i int, body map[string][]map[string]any) (remote.BatchResponse, error) {
			if i == 1 {
				return nil, &remote.StatusError{Code: 502}
			}
			return acceptAll(body), nil
		},
	}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	report, err := driver.Sync(context.Background())
	require.Error(t, err)
	var se *remote.StatusError
	require.True(t, errors.As(err, &se))

	require.Len(t, tr.sent(), 2, "chunk 3 must not be sent after chunk 2 failed")
	require.True(t, report.Aborted)
	require.Equal(t, 1, report.ChunksSent)
	require.Equal(t, 3, report.ChunksTotal)
	require.Equal(t, 100, report.Synced())
	require.NotEmpty(t, report.Error)

	require.Equal(t, schema.StatusSynced, statusOf(t, store, ids[0]))
	require.Equal(t, schema.StatusSynced, statusOf(t, store, ids[99]))
	require.Equal(t, schema.StatusPending, statusOf(t, store, ids[100]))
	require.Equal(t, schema.StatusPending, statusOf(t, store, ids[249]))

	// The next cycle retries only what is still pending.
	tr.respond = nil
	report, err = driver.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 150, report.Pending())
	require.Equal(t, 150, report.Synced())
}

func TestSync_ServerWinsOverwriteLocalCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := createActivities(t, store, 2)
	a1, a2 := ids[0], ids[1]

	local, err := store.Activities.Get(ctx, a2)
	require.NoError(t, err)
	require.Equal(t, "Activity 1", local.Record.Name)

	tr := &fakeTransport{
		respond: func(i int, body map[string][]map[string]any) (remote.BatchResponse, error) {
			return remote.BatchResponse{
				KeyActivities: {
					SyncedIDs: []string{a1},
					ServerWins: []json.RawMessage{json.RawMessage(fmt.Sprintf(`{
						"id": %q,
						"name": "Renamed on phone",
						"iconType": "emoji",
						"quantityUnit": "min",
						"orderIndex": "zz",
						"createdAt": "2026-01-01T00:00:00.000Z",
						"updatedAt": "2026-01-09T00:00:00.000Z",
						"deletedAt": null
					}`, a2))},
				},
			}, nil
		},
	}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	report, err := driver.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ServerWins())

	row, err := store.Activities.Get(ctx, a2)
	require.NoError(t, err)
	require.Equal(t, schema.StatusSynced, row.SyncStatus)
	require.Equal(t, "Renamed on phone", row.Record.Name)
	require.Equal(t, "min", row.Record.QuantityUnit)
	require.Equal(t, "2026-01-09T00:00:00.000Z", row.Record.UpdatedAt)
	require.Equal(t, schema.StatusSynced, statusOf(t, store, a1))
}

func TestSync_SkippedBecomesFailedAndIsNotRetried(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := createActivities(t, store, 2)

	tr := &fakeTransport{
		respond: func(i int, body map[string][]map[string]any) (remote.BatchResponse, error) {
			return remote.BatchResponse{
				KeyActivities: {SyncedIDs: []string{ids[0]}, SkippedIDs: []string{ids[1]}},
			}, nil
		},
	}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	report, err := driver.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed())
	require.Equal(t, schema.StatusFailed, statusOf(t, store, ids[1]))

	// Nothing pending: no request.
	_, err = driver.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, tr.sent(), 1)

	// A local edit puts the record back in the queue.
	name := "Fixed"
	require.NoError(t, store.Activities.Update(ctx, ids[1], schema.ActivityPatch{Name: &name}))
	tr.respond = nil
	report, err = driver.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Synced())
	require.Equal(t, schema.StatusSynced, statusOf(t, store, ids[1]))
}

func TestSync_SkippedWithServerWinEndsSynced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := createActivities(t, store, 1)

	tr := &fakeTransport{
		respond: func(i int, body map[string][]map[string]any) (remote.BatchResponse, error) {
			win := body[KeyActivities][0]
			win["name"] = "Server version"
			raw, err := json.Marshal(win)
			if err != nil {
				return nil, err
			}
			return remote.BatchResponse{
				KeyActivities: {SkippedIDs: []string{ids[0]}, ServerWins: []json.RawMessage{raw}},
			}, nil
		},
	}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	_, err := driver.Sync(ctx)
	require.NoError(t, err)

	row, err := store.Activities.Get(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, schema.StatusSynced, row.SyncStatus)
	require.Equal(t, "Server version", row.Record.Name)
}

func TestSync_EditDuringRequestStaysPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := createActivities(t, store, 3)

	tr := &fakeTransport{
		respond: func(i int, body map[string][]map[string]any) (remote.BatchResponse, error) {
			if i > 0 {
				return acceptAll(body), nil
			}
			for _, id := range ids[:2] {
				name := "Edited while syncing"
				if err := store.Activities.Update(ctx, id, schema.ActivityPatch{Name: &name}); err != nil {
					return nil, err
				}
			}
			return remote.BatchResponse{
				KeyActivities: {SyncedIDs: []string{ids[0], ids[2]}, SkippedIDs: []string{ids[1]}},
			}, nil
		},
	}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	report, err := driver.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Synced())
	require.Zero(t, report.Failed())

	row, err := store.Activities.Get(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, schema.StatusPending, row.SyncStatus)
	require.Equal(t, "Edited while syncing", row.Record.Name)
	require.Equal(t, schema.StatusPending, statusOf(t, store, ids[1]))
	require.Equal(t, schema.StatusSynced, statusOf(t, store, ids[2]))

	// The edits go out on the next cycle.
	report, err = driver.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Synced())
	sent := tr.sent()[1].body[KeyActivities]
	require.Len(t, sent, 2)
	require.Equal(t, "Edited while syncing", sent[0]["name"])
	require.Equal(t, schema.StatusSynced, statusOf(t, store, ids[0]))
}

func TestSync_SoftDeletedRecordsAreSent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := createActivities(t, store, 1)
	require.NoError(t, store.Activities.MarkSynced(ctx, ids))
	require.NoError(t, store.Activities.SoftDelete(ctx, ids[0]))

	tr := &fakeTransport{}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	_, err := driver.Sync(ctx)
	require.NoError(t, err)

	sent := tr.sent()[0].body[KeyActivities]
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0]["deletedAt"])
}

func TestSync_NonReentrant(t *testing.T) {
	store := newTestStore(t)
	createActivities(t, store, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	var once stdsync.Once
	tr := &fakeTransport{
		respond: func(i int, body map[string][]map[string]any) (remote.BatchResponse, error) {
			once.Do(func() { close(started) })
			<-release
			return acceptAll(body), nil
		},
	}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	done := make(chan error, 1)
	go func() {
		_, err := driver.Sync(context.Background())
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never reached the transport")
	}

	_, err := driver.Sync(context.Background())
	require.ErrorIs(t, err, ErrCycleInProgress)

	// Other families are independent.
	_, err = driver.SyncGoals(context.Background())
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	require.Len(t, tr.sent(), 1)
}

func TestSync_ObserverGetsReport(t *testing.T) {
	store := newTestStore(t)
	createActivities(t, store, 3)
	tr := &fakeTransport{}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	var got []*Report
	driver.AddObserver(ObserverFunc(func(r *Report) { got = append(got, r) }))

	_, err := driver.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, FamilyActivities, got[0].Family)
	require.Equal(t, 3, got[0].Synced())
}

func TestSyncAll_ContinuesPastFailingFamily(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createActivities(t, store, 1)
	_, err := store.Tasks.Create(ctx, schema.NewTask{Title: "Renew gym card"})
	require.NoError(t, err)

	tr := &fakeTransport{
		respond: func(i int, body map[string][]map[string]any) (remote.BatchResponse, error) {
			if _, ok := body[KeyActivities]; ok {
				return nil, errors.New("connection reset")
			}
			return acceptAll(body), nil
		},
	}
	driver := newTestDriver(t, store, tr, DefaultChunkSizes())

	reports, err := driver.SyncAll(ctx)
	require.Error(t, err)
	require.Len(t, reports, 4)

	pendingTasks, err := store.Tasks.GetPendingSync(ctx)
	require.NoError(t, err)
	require.Empty(t, pendingTasks)

	pendingActivities, err := store.Activities.GetPendingSync(ctx)
	require.NoError(t, err)
	require.Len(t, pendingActivities, 1)
}

func TestDriver_UnknownFamily(t *testing.T) {
	driver := newTestDriver(t, newTestStore(t), &fakeTransport{}, DefaultChunkSizes())
	_, err := driver.Run(context.Background(), "habits")
	require.Error(t, err)
	require.Equal(t, []string{FamilyActivities, FamilyGoals, FamilyTasks, FamilyActivityLogs}, driver.Families())
}

// failingStore fails every write so apply errors can be observed.
type failingStore struct {
	pending []schema.Syncable[schema.Task]
}

func (s *failingStore) GetPendingSync(context.Context) ([]schema.Syncable[schema.Task], error) {
	return s.pending, nil
}
func (s *failingStore) MarkSentSynced(context.Context, []schema.Task) (int, error) {
	return 0, errors.New("disk full")
}
func (s *failingStore) MarkSentFailed(context.Context, []schema.Task) (int, error) { return 0, nil }
func (s *failingStore) UpsertFromServer(context.Context, []schema.Task) error {
	return errors.New("disk full")
}

func TestFamily_ApplyErrorsAreReturned(t *testing.T) {
	store := &failingStore{pending: []schema.Syncable[schema.Task]{
		{Record: schema.Task{Meta: schema.Meta{ID: "t1"}, Title: "x"}, SyncStatus: schema.StatusPending},
	}}
	f := NewFamily(FamilyTasks, "/users/tasks/sync", &fakeTransport{}, zaptest.NewLogger(t).Sugar(),
		NewLane[schema.Task](KeyTasks, 0, store))

	report, err := f.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "mark tasks synced")
	require.Contains(t, err.Error(), "apply tasks server wins")
	require.False(t, report.Aborted)
	require.Equal(t, DefaultChunkSize, f.Lanes()[0].ChunkSize())
}
