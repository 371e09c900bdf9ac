// Package repo implements the local repositories the rest of pacelog reads
// and writes records through.
//
// Every record type gets the same contract (Repository). Local writes mark
// records pending; only the sync engine moves them to synced or failed, and
// only records that come from the server are stored as synced directly.
//
//	store := repo.New(database)
//	act, err := store.Activities.Create(ctx, schema.NewActivity{Name: "Running"})
//	...
//	err = store.Activities.Update(ctx, act.ID, schema.ActivityPatch{Name: &name})
package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/schema"
)

// Builder turns creation input into a record once id and timestamps exist.
type Builder[T any] interface {
	Build(meta schema.Meta) T
}

// Patcher applies a partial update to a record.
type Patcher[T any] interface {
	Apply(rec *T)
}

// Repository is the local store contract shared by every record type.
type Repository[T any, N Builder[T], P Patcher[T]] interface {
	// GetAll returns live records, ordered by the record's sort key.
	GetAll(ctx context.Context) ([]schema.Syncable[T], error)
	// Get returns a live record or an error wrapping db.ErrNotFound.
	Get(ctx context.Context, id string) (schema.Syncable[T], error)
	// Create stores a new pending record with a fresh id.
	Create(ctx context.Context, input N) (T, error)
	// Update merges patch, stamps updatedAt and marks the record pending.
	// Callers re-read if they need the result.
	Update(ctx context.Context, id string, patch P) error
	// SoftDelete stamps deletedAt and marks the record pending.
	SoftDelete(ctx context.Context, id string) error
	// GetPendingSync returns every pending record, soft-deleted ones included.
	GetPendingSync(ctx context.Context) ([]schema.Syncable[T], error)
	MarkSynced(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
	// MarkSentSynced and MarkSentFailed resolve records a sync cycle sent.
	// A record written locally after it was read for sending is left
	// pending. They return the number of records resolved.
	MarkSentSynced(ctx context.Context, sent []T) (int, error)
	MarkSentFailed(ctx context.Context, sent []T) (int, error)
	// UpsertFromServer overwrites local copies and marks them synced.
	UpsertFromServer(ctx context.Context, records []T) error
}

// records is the generic Repository implementation over one table.
type records[T any, N Builder[T], P Patcher[T], E schema.Entity[T]] struct {
	db    *db.DB
	table *db.Table[T, E]
	newID func() (string, error)
}

func newRecords[T any, N Builder[T], P Patcher[T], E schema.Entity[T]](database *db.DB, name string) *records[T, N, P, E] {
	return &records[T, N, P, E]{
		db:    database,
		table: db.NewTable[T, E](database, name),
		newID: newID,
	}
}

// newID returns a UUIDv7, so ids sort by creation time.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

func (r *records[T, N, P, E]) GetAll(ctx context.Context) ([]schema.Syncable[T], error) {
	return r.table.All(ctx)
}

func (r *records[T, N, P, E]) Get(ctx context.Context, id string) (schema.Syncable[T], error) {
	return r.table.Get(ctx, id)
}

func (r *records[T, N, P, E]) Create(ctx context.Context, input N) (T, error) {
	var zero T
	id, err := r.newID()
	if err != nil {
		return zero, err
	}
	now := schema.Timestamp(r.db.Now())
	rec := input.Build(schema.Meta{ID: id, CreatedAt: now, UpdatedAt: now})
	if err := r.table.Insert(ctx, E(&rec)); err != nil {
		return zero, err
	}
	return rec, nil
}

func (r *records[T, N, P, E]) Update(ctx context.Context, id string, patch P) error {
	return r.table.Update(ctx, id, func(rec E) error {
		patch.Apply((*T)(rec))
		return nil
	})
}

func (r *records[T, N, P, E]) SoftDelete(ctx context.Context, id string) error {
	return r.table.SoftDelete(ctx, id)
}

func (r *records[T, N, P, E]) GetPendingSync(ctx context.Context) ([]schema.Syncable[T], error) {
	return r.table.Pending(ctx)
}

func (r *records[T, N, P, E]) MarkSynced(ctx context.Context, ids []string) error {
	return r.table.MarkSynced(ctx, ids)
}

func (r *records[T, N, P, E]) MarkFailed(ctx context.Context, ids []string) error {
	return r.table.MarkFailed(ctx, ids)
}

func (r *records[T, N, P, E]) MarkSentSynced(ctx context.Context, sent []T) (int, error) {
	return r.table.MarkSentSynced(ctx, sent)
}

func (r *records[T, N, P, E]) MarkSentFailed(ctx context.Context, sent []T) (int, error) {
	return r.table.MarkSentFailed(ctx, sent)
}

func (r *records[T, N, P, E]) UpsertFromServer(ctx context.Context, recs []T) error {
	return r.table.UpsertFromServer(ctx, recs)
}

func (r *records[T, N, P, E]) GetByActivity(ctx context.Context, activityID string) ([]schema.Syncable[T], error) {
	return r.table.ByParent(ctx, activityID)
}

func (r *records[T, N, P, E]) countByStatus(ctx context.Context) (map[schema.SyncStatus]int, error) {
	return r.table.CountByStatus(ctx)
}
