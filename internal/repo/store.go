package repo

import (
	"context"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/schema"
)

// Store bundles the repositories of one local database.
type Store struct {
	DB            *db.DB
	Activities    ActivityRepository
	ActivityKinds ActivityKindRepository
	ActivityLogs  ActivityLogRepository
	Goals         GoalRepository
	Tasks         TaskRepository
	Icons         IconRepository

	counters   []statusCounter
	iconQueues *db.Icons
}

type statusCounter struct {
	entity string
	count  func(context.Context) (map[schema.SyncStatus]int, error)
}

// New returns the repositories over database. The schema must already be
// initialized.
func New(database *db.DB) *Store {
	activities := newRecords[schema.Activity, schema.NewActivity, schema.ActivityPatch, *schema.Activity](database, db.TableActivities)
	kinds := newRecords[schema.ActivityKind, schema.NewActivityKind, schema.ActivityKindPatch, *schema.ActivityKind](database, db.TableActivityKinds)
	logs := newRecords[schema.ActivityLog, schema.NewActivityLog, schema.ActivityLogPatch, *schema.ActivityLog](database, db.TableActivityLogs)
	goals := newRecords[schema.Goal, schema.NewGoal, schema.GoalPatch, *schema.Goal](database, db.TableGoals)
	tasks := newRecords[schema.Task, schema.NewTask, schema.TaskPatch, *schema.Task](database, db.TableTasks)

	icons := newIconRepo(database)

	return &Store{
		DB:            database,
		Activities:    &activityRepo{activityRecords: activities, kinds: kinds},
		ActivityKinds: kinds,
		ActivityLogs:  &logRepo{logRecords: logs},
		Goals:         goals,
		Tasks:         tasks,
		Icons:         icons,
		counters: []statusCounter{
			{"activities", activities.countByStatus},
			{"activityKinds", kinds.countByStatus},
			{"activityLogs", logs.countByStatus},
			{"goals", goals.countByStatus},
			{"tasks", tasks.countByStatus},
		},
		iconQueues: icons.icons,
	}
}
