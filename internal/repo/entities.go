package repo

import (
	"context"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/schema"
)

// ActivityRepository stores activities. SoftDelete cascades to the
// activity's kinds in the same transaction.
type ActivityRepository interface {
	Repository[schema.Activity, schema.NewActivity, schema.ActivityPatch]
}

// ActivityKindRepository stores activity kinds.
type ActivityKindRepository interface {
	Repository[schema.ActivityKind, schema.NewActivityKind, schema.ActivityKindPatch]
	GetByActivity(ctx context.Context, activityID string) ([]schema.Syncable[schema.ActivityKind], error)
}

// ActivityLogRepository stores activity logs.
type ActivityLogRepository interface {
	Repository[schema.ActivityLog, schema.NewActivityLog, schema.ActivityLogPatch]
	GetByActivity(ctx context.Context, activityID string) ([]schema.Syncable[schema.ActivityLog], error)
	// GetByDateRange returns live logs dated within [from, to], both
	// YYYY-MM-DD and inclusive.
	GetByDateRange(ctx context.Context, from, to string) ([]schema.Syncable[schema.ActivityLog], error)
}

// GoalRepository stores goals.
type GoalRepository interface {
	Repository[schema.Goal, schema.NewGoal, schema.GoalPatch]
	GetByActivity(ctx context.Context, activityID string) ([]schema.Syncable[schema.Goal], error)
}

// TaskRepository stores tasks.
type TaskRepository interface {
	Repository[schema.Task, schema.NewTask, schema.TaskPatch]
}

type activityRecords = records[schema.Activity, schema.NewActivity, schema.ActivityPatch, *schema.Activity]
type kindRecords = records[schema.ActivityKind, schema.NewActivityKind, schema.ActivityKindPatch, *schema.ActivityKind]
type logRecords = records[schema.ActivityLog, schema.NewActivityLog, schema.ActivityLogPatch, *schema.ActivityLog]
type goalRecords = records[schema.Goal, schema.NewGoal, schema.GoalPatch, *schema.Goal]
type taskRecords = records[schema.Task, schema.NewTask, schema.TaskPatch, *schema.Task]

type activityRepo struct {
	*activityRecords
	kinds *kindRecords
}

// SoftDelete deletes the activity and all its live kinds atomically.
func (r *activityRepo) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithTx(ctx, func(tx *db.Tx) error {
		if err := r.table.In(tx).SoftDelete(ctx, id); err != nil {
			return err
		}
		_, err := r.kinds.table.In(tx).SoftDeleteByParent(ctx, id)
		return err
	})
}

type logRepo struct {
	*logRecords
}

func (r *logRepo) GetByDateRange(ctx context.Context, from, to string) ([]schema.Syncable[schema.ActivityLog], error) {
	if _, err := schema.ParseDate(from); err != nil {
		return nil, err
	}
	if _, err := schema.ParseDate(to); err != nil {
		return nil, err
	}
	return r.table.BetweenDates(ctx, from, to)
}

var (
	_ ActivityRepository     = (*activityRepo)(nil)
	_ ActivityKindRepository = (*kindRecords)(nil)
	_ ActivityLogRepository  = (*logRepo)(nil)
	_ GoalRepository         = (*goalRecords)(nil)
	_ TaskRepository         = (*taskRecords)(nil)
)
