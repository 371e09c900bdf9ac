// Package attach syncs activity icons, which travel outside the batch sync
// because the images are large.
//
// Two queues are drained, one item at a time:
//   - uploads: an icon blob is posted once its activity is synced on the
//     server. The returned URLs are stored on the activity and the blob is
//     deleted in one local transaction.
//   - deletions: each tombstone becomes a remote delete. A 2xx or a 404
//     removes the tombstone; anything else keeps it for the next run.
//
// A failed item stays queued and the loop moves on to the next one.
package attach

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	stdsync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pacelog/pacelog/internal/db"
	"github.com/pacelog/pacelog/internal/metrics"
	"github.com/pacelog/pacelog/internal/remote"
	"github.com/pacelog/pacelog/internal/repo"
	"github.com/pacelog/pacelog/internal/schema"
)

// ErrCycleInProgress is returned when the same loop is already running.
var ErrCycleInProgress = errors.New("icon sync already in progress")

// Operations reported by the channel.
const (
	OpUpload = "upload"
	OpDelete = "delete"
)

// Transport performs icon requests. Non-2xx answers are returned as a
// Response, not an error.
type Transport interface {
	UploadIcon(ctx context.Context, activityID string, upload remote.IconUpload) (remote.Response, error)
	DeleteIcon(ctx context.Context, activityID string) (remote.Response, error)
}

// Owners looks up the activity an icon belongs to.
type Owners interface {
	Get(ctx context.Context, id string) (schema.Syncable[schema.Activity], error)
}

// Observer is notified after every run that had queued items.
type Observer interface {
	IconsSynced(report *Report)
}

// Report describes one run of a loop.
type Report struct {
	Operation string        `json:"operation" yaml:"operation"`
	Queued    int           `json:"queued" yaml:"queued"`
	Done      int           `json:"done" yaml:"done"`
	Deferred  int           `json:"deferred" yaml:"deferred"`
	Dropped   int           `json:"dropped" yaml:"dropped"`
	Failed    int           `json:"failed" yaml:"failed"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Channel drains the icon queues.
type Channel struct {
	owners    Owners
	icons     repo.IconRepository
	transport Transport
	logger    *zap.SugaredLogger

	uploading atomic.Bool
	deleting  atomic.Bool

	mu        stdsync.Mutex
	observers []Observer
}

// New creates a channel. If logger is nil, logging is discarded.
func New(owners Owners, icons repo.IconRepository, transport Transport, logger *zap.SugaredLogger) *Channel {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Channel{
		owners:    owners,
		icons:     icons,
		transport: transport,
		logger:    logger.Named("icons"),
	}
}

// AddObserver registers o for run reports.
func (c *Channel) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// SyncIcons uploads every queued blob whose activity is synced. Blobs of
// unsynced activities are deferred. Blobs whose activity no longer exists
// locally, or was deleted, are dropped.
func (c *Channel) SyncIcons(ctx context.Context) (*Report, error) {
	if !c.uploading.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("icon uploads: %w", ErrCycleInProgress)
	}
	defer c.uploading.Store(false)

	start := time.Now()
	blobs, err := c.icons.GetIconBlobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read icon queue: %w", err)
	}

	report := &Report{Operation: OpUpload, Queued: len(blobs)}
	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		c.upload(ctx, blob, report)
	}

	report.Duration = time.Since(start)
	c.finish(report)
	return report, nil
}

func (c *Channel) upload(ctx context.Context, blob schema.ActivityIconBlob, report *Report) {
	log := c.logger.With("activity", blob.ActivityID)

	owner, err := c.owners.Get(ctx, blob.ActivityID)
	if errors.Is(err, db.ErrNotFound) {
		if err := c.icons.DropIconBlob(ctx, blob.ActivityID); err != nil {
			log.Warnw("failed to drop orphaned icon", "error", err)
			report.Failed++
			return
		}
		log.Infow("dropped icon of missing activity")
		report.Dropped++
		return
	}
	if err != nil {
		log.Warnw("failed to load icon owner", "error", err)
		report.Failed++
		return
	}

	if owner.SyncStatus != schema.StatusSynced {
		log.Debugw("deferring icon upload until activity is synced", "status", owner.SyncStatus)
		report.Deferred++
		return
	}

	resp, err := c.transport.UploadIcon(ctx, blob.ActivityID, remote.IconUpload{
		Base64:   blob.Base64,
		MimeType: blob.MimeType,
	})
	if err != nil || !resp.OK {
		metrics.RecordIcon(OpUpload, metrics.OutcomeError)
		log.Warnw("icon upload failed", "status", resp.Status, "error", err)
		report.Failed++
		return
	}

	urls, err := remote.DecodeIconURLs(resp)
	if err != nil {
		metrics.RecordIcon(OpUpload, metrics.OutcomeError)
		log.Warnw("icon upload returned an unusable body", "error", err)
		report.Failed++
		return
	}

	applied, err := c.icons.ApplyUploadedIcon(ctx, blob, urls.IconURL, urls.IconThumbnailURL)
	if err != nil {
		log.Errorw("failed to store uploaded icon", "error", err)
		report.Failed++
		return
	}
	if !applied {
		// The newer blob is uploaded next run; a clear has its own tombstone.
		log.Infow("icon changed during upload, keeping the newer state")
		metrics.RecordIcon(OpUpload, metrics.OutcomeOK)
		report.Deferred++
		return
	}

	metrics.RecordIcon(OpUpload, metrics.OutcomeOK)
	report.Done++
}

// SyncIconDeletions sends a remote delete for every queued tombstone.
func (c *Channel) SyncIconDeletions(ctx context.Context) (*Report, error) {
	if !c.deleting.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("icon deletions: %w", ErrCycleInProgress)
	}
	defer c.deleting.Store(false)

	start := time.Now()
	queue, err := c.icons.GetIconDeleteQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read icon delete queue: %w", err)
	}

	report := &Report{Operation: OpDelete, Queued: len(queue)}
	for _, item := range queue {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		c.delete(ctx, item, report)
	}

	report.Duration = time.Since(start)
	c.finish(report)
	return report, nil
}

func (c *Channel) delete(ctx context.Context, item schema.IconDelete, report *Report) {
	log := c.logger.With("activity", item.ActivityID)

	resp, err := c.transport.DeleteIcon(ctx, item.ActivityID)
	if err != nil || !(resp.OK || resp.Status == http.StatusNotFound) {
		metrics.RecordIcon(OpDelete, metrics.OutcomeError)
		log.Warnw("icon delete failed", "status", resp.Status, "error", err)
		report.Failed++
		return
	}

	if err := c.icons.RemoveIconDelete(ctx, item.ActivityID); err != nil {
		log.Errorw("failed to remove icon tombstone", "error", err)
		report.Failed++
		return
	}

	metrics.RecordIcon(OpDelete, metrics.OutcomeOK)
	report.Done++
}

// Run uploads, then deletes. Both loops run even if the first fails.
func (c *Channel) Run(ctx context.Context) ([]*Report, error) {
	var reports []*Report
	up, upErr := c.SyncIcons(ctx)
	if up != nil {
		reports = append(reports, up)
	}
	del, delErr := c.SyncIconDeletions(ctx)
	if del != nil {
		reports = append(reports, del)
	}
	return reports, errors.Join(upErr, delErr)
}

func (c *Channel) finish(report *Report) {
	if report.Queued == 0 {
		return
	}
	c.logger.Infow("icon sync finished",
		"operation", report.Operation,
		"queued", report.Queued,
		"done", report.Done,
		"deferred", report.Deferred,
		"dropped", report.Dropped,
		"failed", report.Failed,
	)

	c.mu.Lock()
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()
	for _, o := range observers {
		o.IconsSynced(report)
	}
}
