// Package sync pushes pending local records to the server in chunked
// batches and applies the server's answers.
//
// Records are grouped into families that share a batch endpoint:
//
//	family        endpoint                   lanes (chunk cap)
//	activities    /users/activities/sync     activities (100), activityKinds (500)
//	goals         /users/goals/sync          goals (100)
//	tasks         /users/tasks/sync          tasks (100)
//	activityLogs  /users/activity-logs/sync  activityLogs (100)
//
// For every lane the server answers with syncedIds, skippedIds and
// serverWins. Synced ids become synced. Skipped ids become failed and are
// not retried until edited again. Server wins overwrite the local copy
// unconditionally and become synced; there is no merge.
//
// A cycle that hits a transport error stops sending. Whatever earlier
// chunks confirmed is applied, and everything else stays pending for the
// next cycle.
//
// Example:
//
//	driver := sync.NewDriver(store, client, sync.DefaultChunkSizes(), logger)
//	reports, err := driver.SyncAll(ctx)
package sync
