package repo

import (
	"context"
	"fmt"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/schema"
)

// IconRepository manages activity icons: the queued uploads and the delete
// tombstones the attachment channel drains.
type IconRepository interface {
	// SetIcon queues blob for upload, replacing any earlier queued blob, and
	// switches the activity to an uploaded icon. A queued delete for the
	// same activity is cancelled.
	SetIcon(ctx context.Context, blob schema.ActivityIconBlob) error
	// ClearIcon drops any queued blob, queues a remote delete and resets the
	// activity to its emoji.
	ClearIcon(ctx context.Context, activityID string) error
	GetIconBlobs(ctx context.Context) ([]schema.ActivityIconBlob, error)
	GetIconDeleteQueue(ctx context.Context) ([]schema.IconDelete, error)
	// ApplyUploadedIcon stores the URLs returned by uploading blob and
	// deletes the blob in one transaction. The activity's sync status is
	// unchanged. If the queue no longer holds blob, because the icon was
	// replaced or cleared during the upload, nothing is written and it
	// returns false.
	ApplyUploadedIcon(ctx context.Context, blob schema.ActivityIconBlob, iconURL, thumbnailURL string) (bool, error)
	DropIconBlob(ctx context.Context, activityID string) error
	RemoveIconDelete(ctx context.Context, activityID string) error
}

type iconRepo struct {
	db         *db.DB
	icons      *db.Icons
	activities *db.Table[schema.Activity, *schema.Activity]
}

func newIconRepo(database *db.DB) *iconRepo {
	return &iconRepo{
		db:         database,
		icons:      db.NewIcons(database),
		activities: db.NewTable[schema.Activity](database, db.TableActivities),
	}
}

func (r *iconRepo) SetIcon(ctx context.Context, blob schema.ActivityIconBlob) error {
	if blob.ActivityID == "" || blob.Base64 == "" || blob.MimeType == "" {
		return fmt.Errorf("icon blob requires activityId, base64 and mimeType")
	}
	return r.db.WithTx(ctx, func(tx *db.Tx) error {
		err := r.activities.In(tx).Update(ctx, blob.ActivityID, func(a *schema.Activity) error {
			a.IconType = schema.IconUpload
			return nil
		})
		if err != nil {
			return err
		}
		icons := r.icons.In(tx)
		if err := icons.RemoveDelete(ctx, blob.ActivityID); err != nil {
			return err
		}
		return icons.PutBlob(ctx, blob)
	})
}

func (r *iconRepo) ClearIcon(ctx context.Context, activityID string) error {
	return r.db.WithTx(ctx, func(tx *db.Tx) error {
		err := r.activities.In(tx).Update(ctx, activityID, func(a *schema.Activity) error {
			a.IconType = schema.IconEmoji
			a.IconURL = nil
			a.IconThumbnailURL = nil
			return nil
		})
		if err != nil {
			return err
		}
		icons := r.icons.In(tx)
		if err := icons.DeleteBlob(ctx, activityID); err != nil {
			return err
		}
		return icons.QueueDelete(ctx, activityID)
	})
}

func (r *iconRepo) GetIconBlobs(ctx context.Context) ([]schema.ActivityIconBlob, error) {
	return r.icons.Blobs(ctx)
}

func (r *iconRepo) GetIconDeleteQueue(ctx context.Context) ([]schema.IconDelete, error) {
	return r.icons.Deletes(ctx)
}

func (r *iconRepo) ApplyUploadedIcon(ctx context.Context, blob schema.ActivityIconBlob, iconURL, thumbnailURL string) (bool, error) {
	var applied bool
	err := r.db.WithTx(ctx, func(tx *db.Tx) error {
		removed, err := r.icons.In(tx).DeleteBlobIfUnchanged(ctx, blob)
		if err != nil || !removed {
			return err
		}
		err = r.activities.In(tx).Amend(ctx, blob.ActivityID, func(a *schema.Activity) {
			a.IconType = schema.IconUpload
			a.IconURL = &iconURL
			a.IconThumbnailURL = &thumbnailURL
		})
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *iconRepo) DropIconBlob(ctx context.Context, activityID string) error {
	return r.icons.DeleteBlob(ctx, activityID)
}

func (r *iconRepo) RemoveIconDelete(ctx context.Context, activityID string) error {
	return r.icons.RemoveDelete(ctx, activityID)
}
