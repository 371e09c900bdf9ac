package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/schema"
)

// Family names.
const (
	FamilyActivities   = "activities"
	FamilyGoals        = "goals"
	FamilyTasks        = "tasks"
	FamilyActivityLogs = "activityLogs"
)

// Entity keys used in batch requests and responses.
const (
	KeyActivities    = "activities"
	KeyActivityKinds = "activityKinds"
	KeyGoals         = "goals"
	KeyTasks         = "tasks"
	KeyActivityLogs  = "activityLogs"
)

// ChunkSizes sets the chunk cap of every lane.
type ChunkSizes struct {
	Activities    int
	ActivityKinds int
	Goals         int
	Tasks         int
	ActivityLogs  int
}

// DefaultChunkSizes returns the caps the server expects.
func DefaultChunkSizes() ChunkSizes {
	return ChunkSizes{
		Activities:    100,
		ActivityKinds: 500,
		Goals:         100,
		Tasks:         100,
		ActivityLogs:  100,
	}
}

// Driver owns the record families of one local store. Each family is
// non-reentrant on its own; different families may run concurrently.
type Driver struct {
	families []*Family
	byName   map[string]*Family
	logger   *zap.SugaredLogger
}

// NewDriver wires the standard families over store. If logger is nil,
// logging is discarded.
func NewDriver(store *repo.Store, transport Transport, sizes ChunkSizes, logger *zap.SugaredLogger) *Driver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("sync")

	return NewDriverWithFamilies(logger,
		NewFamily(FamilyActivities, "/users/activities/sync", transport, logger,
			NewLane[schema.Activity](KeyActivities, sizes.Activities, store.Activities),
			NewLane[schema.ActivityKind](KeyActivityKinds, sizes.ActivityKinds, store.ActivityKinds),
		),
		NewFamily(FamilyGoals, "/users/goals/sync", transport, logger,
			NewLane[schema.Goal](KeyGoals, sizes.Goals, store.Goals),
		),
		NewFamily(FamilyTasks, "/users/tasks/sync", transport, logger,
			NewLane[schema.Task](KeyTasks, sizes.Tasks, store.Tasks),
		),
		NewFamily(FamilyActivityLogs, "/users/activity-logs/sync", transport, logger,
			NewLane[schema.ActivityLog](KeyActivityLogs, sizes.ActivityLogs, store.ActivityLogs),
		),
	)
}

// NewDriverWithFamilies builds a driver over arbitrary families. SyncAll
// runs them in the given order.
func NewDriverWithFamilies(logger *zap.SugaredLogger, families ...*Family) *Driver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Driver{
		families: families,
		byName:   make(map[string]*Family, len(families)),
		logger:   logger,
	}
	for _, f := range families {
		d.byName[f.Name()] = f
	}
	return d
}

// AddObserver registers o with every family.
func (d *Driver) AddObserver(o Observer) {
	for _, f := range d.families {
		f.AddObserver(o)
	}
}

// Families returns the family names in SyncAll order.
func (d *Driver) Families() []string {
	names := make([]string, len(d.families))
	for i, f := range d.families {
		names[i] = f.Name()
	}
	return names
}

// Family returns the named family.
func (d *Driver) Family(name string) (*Family, bool) {
	f, ok := d.byName[name]
	return f, ok
}

// Run runs one cycle of the named family.
func (d *Driver) Run(ctx context.Context, name string) (*Report, error) {
	f, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown sync family %q (want one of %v)", name, d.Families())
	}
	return f.Run(ctx)
}

// Sync syncs activities and their kinds.
func (d *Driver) Sync(ctx context.Context) (*Report, error) {
	return d.Run(ctx, FamilyActivities)
}

// SyncGoals syncs goals.
func (d *Driver) SyncGoals(ctx context.Context) (*Report, error) {
	return d.Run(ctx, FamilyGoals)
}

// SyncTasks syncs tasks.
func (d *Driver) SyncTasks(ctx context.Context) (*Report, error) {
	return d.Run(ctx, FamilyTasks)
}

// SyncActivityLogs syncs activity logs.
func (d *Driver) SyncActivityLogs(ctx context.Context) (*Report, error) {
	return d.Run(ctx, FamilyActivityLogs)
}

// SyncAll runs every family in order. A failing family does not stop the
// others; the returned error joins all failures. Families that are
// already running are skipped and reported through ErrCycleInProgress.
func (d *Driver) SyncAll(ctx context.Context) ([]*Report, error) {
	var reports []*Report
	var errs []error
	for _, f := range d.families {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := f.Run(ctx)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			if errors.Is(err, ErrCycleInProgress) {
				d.logger.Debugw("skipping family with cycle in flight", "family", f.Name())
			} else {
				d.logger.Warnw("family sync failed", "family", f.Name(), "error", err)
			}
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}
