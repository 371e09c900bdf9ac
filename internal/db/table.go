package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pacelog/pacelog/internal/schema"
)

// maxInParams caps the number of ids bound into a single IN (...) clause.
const maxInParams = 500

// Table is a typed view of one record table.
//
// T is the record type and P its pointer type, which carries the schema.Entity
// methods. P is inferred, so callers write NewTable[schema.Goal](db, TableGoals).
type Table[T any, P schema.Entity[T]] struct {
	name string
	db   *DB
	q    querier
	tx   *Tx
}

// NewTable returns a table bound to the database.
func NewTable[T any, P schema.Entity[T]](db *DB, name string) *Table[T, P] {
	return &Table[T, P]{name: name, db: db, q: db.conn}
}

// Name returns the SQL table name.
func (t *Table[T, P]) Name() string {
	return t.name
}

// In returns a copy of the table bound to tx.
func (t *Table[T, P]) In(tx *Tx) *Table[T, P] {
	return &Table[T, P]{name: t.name, db: t.db, q: tx.tx, tx: tx}
}

// atomic runs fn inside a transaction. If the table is already bound to
// one, fn joins it.
func (t *Table[T, P]) atomic(ctx context.Context, fn func(*Table[T, P]) error) error {
	if t.tx != nil {
		return fn(t)
	}
	return t.db.WithTx(ctx, func(tx *Tx) error {
		return fn(t.In(tx))
	})
}

// All returns every live (not soft-deleted) record ordered by sort key.
func (t *Table[T, P]) All(ctx context.Context) ([]schema.Syncable[T], error) {
	return t.query(ctx, "WHERE deleted_at IS NULL ORDER BY sort_key, id")
}

// ByParent returns the live records owned by parentID.
func (t *Table[T, P]) ByParent(ctx context.Context, parentID string) ([]schema.Syncable[T], error) {
	return t.query(ctx, "WHERE parent_id = ? AND deleted_at IS NULL ORDER BY sort_key, id", parentID)
}

// BetweenDates returns the live records whose sort key starts with a
// YYYY-MM-DD date in [from, to]. Only meaningful for date-keyed records.
func (t *Table[T, P]) BetweenDates(ctx context.Context, from, to string) ([]schema.Syncable[T], error) {
	return t.query(ctx,
		"WHERE deleted_at IS NULL AND substr(sort_key, 1, 10) BETWEEN ? AND ? ORDER BY sort_key, id",
		from, to)
}

// Pending returns every record awaiting sync, soft-deleted ones included so
// their tombstones reach the server.
func (t *Table[T, P]) Pending(ctx context.Context) ([]schema.Syncable[T], error) {
	return t.query(ctx, "WHERE sync_status = ? ORDER BY id", string(schema.StatusPending))
}

// Get returns a live record by id. Soft-deleted records are reported as
// ErrNotFound.
func (t *Table[T, P]) Get(ctx context.Context, id string) (schema.Syncable[T], error) {
	rows, err := t.query(ctx, "WHERE id = ? AND deleted_at IS NULL", id)
	if err != nil {
		return schema.Syncable[T]{}, err
	}
	if len(rows) == 0 {
		return schema.Syncable[T]{}, fmt.Errorf("%s %s: %w", t.name, id, ErrNotFound)
	}
	return rows[0], nil
}

// Insert stores a new record as pending. The record's id and timestamps
// must already be set.
func (t *Table[T, P]) Insert(ctx context.Context, rec P) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid %s record: %w", t.name, err)
	}

	m := rec.Base()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", t.name, m.ID, err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, parent_id, sort_key, sync_status, deleted_at, updated_at, data)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.name)

	_, err = t.q.ExecContext(ctx, query,
		m.ID,
		rec.ParentID(),
		rec.SortKey(),
		string(schema.StatusPending),
		toNullString(m.DeletedAt),
		m.UpdatedAt,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", t.name, m.ID, err)
	}
	return nil
}

// Update loads a live record, applies mutate, stamps updatedAt and marks the
// record pending. The read and write happen in one transaction.
func (t *Table[T, P]) Update(ctx context.Context, id string, mutate func(P) error) error {
	return t.atomic(ctx, func(t *Table[T, P]) error {
		row, err := t.Get(ctx, id)
		if err != nil {
			return err
		}
		rec := P(&row.Record)
		if err := mutate(rec); err != nil {
			return err
		}
		rec.Base().ID = id
		rec.Base().Touch(t.db.now())
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid %s record: %w", t.name, err)
		}
		return t.put(ctx, rec, schema.StatusPending)
	})
}

// Amend applies mutate to a live record without changing its sync status or
// updatedAt. It is for fields the server set itself, such as icon URLs
// returned by an upload.
func (t *Table[T, P]) Amend(ctx context.Context, id string, mutate func(P)) error {
	return t.atomic(ctx, func(t *Table[T, P]) error {
		row, err := t.Get(ctx, id)
		if err != nil {
			return err
		}
		rec := P(&row.Record)
		mutate(rec)
		rec.Base().ID = id
		return t.put(ctx, rec, row.SyncStatus)
	})
}

// SoftDelete stamps deletedAt on a live record and marks it pending.
func (t *Table[T, P]) SoftDelete(ctx context.Context, id string) error {
	return t.atomic(ctx, func(t *Table[T, P]) error {
		row, err := t.Get(ctx, id)
		if err != nil {
			return err
		}
		rec := P(&row.Record)
		rec.Base().MarkDeleted(t.db.now())
		return t.put(ctx, rec, schema.StatusPending)
	})
}

// SoftDeleteByParent soft-deletes every live record owned by parentID and
// returns how many were deleted.
func (t *Table[T, P]) SoftDeleteByParent(ctx context.Context, parentID string) (int, error) {
	var n int
	err := t.atomic(ctx, func(t *Table[T, P]) error {
		rows, err := t.ByParent(ctx, parentID)
		if err != nil {
			return err
		}
		now := t.db.now()
		for i := range rows {
			rec := P(&rows[i].Record)
			rec.Base().MarkDeleted(now)
			if err := t.put(ctx, rec, schema.StatusPending); err != nil {
				return err
			}
		}
		n = len(rows)
		return nil
	})
	return n, err
}

// MarkSynced sets the given records to synced. An empty id list is a no-op
// that does not touch the database.
func (t *Table[T, P]) MarkSynced(ctx context.Context, ids []string) error {
	return t.setStatus(ctx, ids, schema.StatusSynced)
}

// MarkFailed sets the given records to failed. An empty id list is a no-op
// that does not touch the database.
func (t *Table[T, P]) MarkFailed(ctx context.Context, ids []string) error {
	return t.setStatus(ctx, ids, schema.StatusFailed)
}

func (t *Table[T, P]) setStatus(ctx context.Context, ids []string, status schema.SyncStatus) error {
	if len(ids) == 0 {
		return nil
	}

	return t.atomic(ctx, func(t *Table[T, P]) error {
		for start := 0; start < len(ids); start += maxInParams {
			end := min(start+maxInParams, len(ids))
			batch := ids[start:end]

			args := make([]any, 0, len(batch)+1)
			args = append(args, string(status))
			for _, id := range batch {
				args = append(args, id)
			}

			query := fmt.Sprintf(`UPDATE %s SET sync_status = ? WHERE id IN (%s)`,
				t.name, placeholders(len(batch)))
			if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to mark %d %s records %s: %w", len(batch), t.name, status, err)
			}
		}
		return nil
	})
}

// MarkSentSynced marks each sent record synced, but only where the stored
// row still holds exactly the version that was sent. Rows written locally
// since then stay pending. It returns the number of rows updated.
func (t *Table[T, P]) MarkSentSynced(ctx context.Context, sent []T) (int, error) {
	return t.setSentStatus(ctx, sent, schema.StatusSynced)
}

// MarkSentFailed is MarkSentSynced for rejected records.
func (t *Table[T, P]) MarkSentFailed(ctx context.Context, sent []T) (int, error) {
	return t.setSentStatus(ctx, sent, schema.StatusFailed)
}

func (t *Table[T, P]) setSentStatus(ctx context.Context, sent []T, status schema.SyncStatus) (int, error) {
	if len(sent) == 0 {
		return 0, nil
	}

	var n int
	err := t.atomic(ctx, func(t *Table[T, P]) error {
		query := fmt.Sprintf(`UPDATE %s SET sync_status = ? WHERE id = ? AND data = ?`, t.name)
		for i := range sent {
			rec := P(&sent[i])
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal %s %s: %w", t.name, rec.Base().ID, err)
			}
			res, err := t.q.ExecContext(ctx, query, string(status), rec.Base().ID, string(data))
			if err != nil {
				return fmt.Errorf("failed to mark %s %s %s: %w", t.name, rec.Base().ID, status, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to mark %s %s %s: %w", t.name, rec.Base().ID, status, err)
			}
			n += int(affected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UpsertFromServer overwrites local copies with the server's versions and
// marks them synced. Records unknown locally are inserted. No local field
// survives an overwrite.
func (t *Table[T, P]) UpsertFromServer(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}

	return t.atomic(ctx, func(t *Table[T, P]) error {
		for i := range records {
			rec := P(&records[i])
			if rec.Base().ID == "" {
				return fmt.Errorf("server %s record without id", t.name)
			}
			if err := t.put(ctx, rec, schema.StatusSynced); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountByStatus counts records per sync status, soft-deleted ones included.
func (t *Table[T, P]) CountByStatus(ctx context.Context) (map[schema.SyncStatus]int, error) {
	query := fmt.Sprintf(`SELECT sync_status, COUNT(*) FROM %s GROUP BY sync_status`, t.name)
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	defer rows.Close()

	counts := make(map[schema.SyncStatus]int, len(schema.Statuses))
	for _, s := range schema.Statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", t.name, err)
		}
		counts[schema.SyncStatus(status)] = n
	}
	return counts, rows.Err()
}

// put writes rec with the given status, replacing any existing row.
func (t *Table[T, P]) put(ctx context.Context, rec P, status schema.SyncStatus) error {
	m := rec.Base()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", t.name, m.ID, err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, parent_id, sort_key, sync_status, deleted_at, updated_at, data)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		parent_id = excluded.parent_id,
		sort_key = excluded.sort_key,
		sync_status = excluded.sync_status,
		deleted_at = excluded.deleted_at,
		updated_at = excluded.updated_at,
		data = excluded.data
	`, t.name)

	_, err = t.q.ExecContext(ctx, query,
		m.ID,
		rec.ParentID(),
		rec.SortKey(),
		string(status),
		toNullString(m.DeletedAt),
		m.UpdatedAt,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", t.name, m.ID, err)
	}
	return nil
}

func (t *Table[T, P]) query(ctx context.Context, where string, args ...any) ([]schema.Syncable[T], error) {
	query := fmt.Sprintf(`SELECT data, sync_status FROM %s %s`, t.name, where)
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []schema.Syncable[T]
	for rows.Next() {
		row, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", t.name, err)
	}
	return out, nil
}

func (t *Table[T, P]) scan(rows *sql.Rows) (schema.Syncable[T], error) {
	var data, status string
	if err := rows.Scan(&data, &status); err != nil {
		return schema.Syncable[T]{}, fmt.Errorf("failed to scan %s row: %w", t.name, err)
	}

	var row schema.Syncable[T]
	if err := json.Unmarshal([]byte(data), &row.Record); err != nil {
		return schema.Syncable[T]{}, fmt.Errorf("failed to decode %s row: %w", t.name, err)
	}
	row.SyncStatus = schema.SyncStatus(status)
	if !row.SyncStatus.IsValid() {
		return schema.Syncable[T]{}, fmt.Errorf("%s %s has unknown sync status %q",
			t.name, P(&row.Record).Base().ID, status)
	}
	return row, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
