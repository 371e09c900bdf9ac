package db

import (
	"context"
	"fmt"

	"github.com/pacelog/pacelog/internal/schema"
)

// Icons manages the icon upload queue (activity_icon_blobs) and the icon
// delete tombstones (activity_icon_delete_queue). There is at most one blob
// and one tombstone per activity.
type Icons struct {
	db *DB
	q  querier
}

// NewIcons returns the icon queues bound to the database.
func NewIcons(db *DB) *Icons {
	return &Icons{db: db, q: db.conn}
}

// In returns a copy bound to tx.
func (i *Icons) In(tx *Tx) *Icons {
	return &Icons{db: i.db, q: tx.tx}
}

// PutBlob stores or replaces the pending upload for an activity.
func (i *Icons) PutBlob(ctx context.Context, blob schema.ActivityIconBlob) error {
	query := `
	INSERT INTO activity_icon_blobs (activity_id, base64, mime_type, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(activity_id) DO UPDATE SET
		base64 = excluded.base64,
		mime_type = excluded.mime_type,
		created_at = excluded.created_at
	`
	_, err := i.q.ExecContext(ctx, query,
		blob.ActivityID, blob.Base64, blob.MimeType, schema.Timestamp(i.db.now()))
	if err != nil {
		return fmt.Errorf("failed to store icon blob for %s: %w", blob.ActivityID, err)
	}
	return nil
}

// Blobs returns every queued upload, oldest first.
func (i *Icons) Blobs(ctx context.Context) ([]schema.ActivityIconBlob, error) {
	rows, err := i.q.QueryContext(ctx, `
	SELECT activity_id, base64, mime_type FROM activity_icon_blobs
	ORDER BY created_at, activity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query icon blobs: %w", err)
	}
	defer rows.Close()

	var blobs []schema.ActivityIconBlob
	for rows.Next() {
		var b schema.ActivityIconBlob
		if err := rows.Scan(&b.ActivityID, &b.Base64, &b.MimeType); err != nil {
			return nil, fmt.Errorf("failed to scan icon blob: %w", err)
		}
		blobs = append(blobs, b)
	}
	return blobs, rows.Err()
}

// DeleteBlob removes the queued upload for an activity. Missing blobs are
// not an error.
func (i *Icons) DeleteBlob(ctx context.Context, activityID string) error {
	_, err := i.q.ExecContext(ctx, `DELETE FROM activity_icon_blobs WHERE activity_id = ?`, activityID)
	if err != nil {
		return fmt.Errorf("failed to delete icon blob for %s: %w", activityID, err)
	}
	return nil
}

// DeleteBlobIfUnchanged removes the queued upload for blob's activity only
// if it still holds the same image. It reports whether a row was removed.
func (i *Icons) DeleteBlobIfUnchanged(ctx context.Context, blob schema.ActivityIconBlob) (bool, error) {
	res, err := i.q.ExecContext(ctx, `
	DELETE FROM activity_icon_blobs
	WHERE activity_id = ? AND base64 = ? AND mime_type = ?
	`, blob.ActivityID, blob.Base64, blob.MimeType)
	if err != nil {
		return false, fmt.Errorf("failed to delete icon blob for %s: %w", blob.ActivityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete icon blob for %s: %w", blob.ActivityID, err)
	}
	return n > 0, nil
}

// QueueDelete records a tombstone for an activity's remote icon.
func (i *Icons) QueueDelete(ctx context.Context, activityID string) error {
	query := `
	INSERT INTO activity_icon_delete_queue (activity_id, queued_at)
	VALUES (?, ?)
	ON CONFLICT(activity_id) DO NOTHING
	`
	if _, err := i.q.ExecContext(ctx, query, activityID, schema.Timestamp(i.db.now())); err != nil {
		return fmt.Errorf("failed to queue icon delete for %s: %w", activityID, err)
	}
	return nil
}

// Deletes returns every queued tombstone, oldest first.
func (i *Icons) Deletes(ctx context.Context) ([]schema.IconDelete, error) {
	rows, err := i.q.QueryContext(ctx, `
	SELECT activity_id FROM activity_icon_delete_queue
	ORDER BY queued_at, activity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query icon delete queue: %w", err)
	}
	defer rows.Close()

	var out []schema.IconDelete
	for rows.Next() {
		var d schema.IconDelete
		if err := rows.Scan(&d.ActivityID); err != nil {
			return nil, fmt.Errorf("failed to scan icon delete: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RemoveDelete drops a tombstone. Missing tombstones are not an error.
func (i *Icons) RemoveDelete(ctx context.Context, activityID string) error {
	_, err := i.q.ExecContext(ctx, `DELETE FROM activity_icon_delete_queue WHERE activity_id = ?`, activityID)
	if err != nil {
		return fmt.Errorf("failed to remove icon delete for %s: %w", activityID, err)
	}
	return nil
}

// Counts returns the number of queued blobs and tombstones.
func (i *Icons) Counts(ctx context.Context) (blobs, deletes int, err error) {
	err = i.q.QueryRowContext(ctx, `
	SELECT
		(SELECT COUNT(*) FROM activity_icon_blobs),
		(SELECT COUNT(*) FROM activity_icon_delete_queue)
	`).Scan(&blobs, &deletes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count icon queues: %w", err)
	}
	return blobs, deletes, nil
}
