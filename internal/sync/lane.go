package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pacelog/pacelog/internal/metrics"
	"github.com/pacelog/pacelog/internal/remote"
	"github.com/pacelog/pacelog/internal/schema"
)

// DefaultChunkSize is used when a lane is built with a non-positive size.
const DefaultChunkSize = 100

// Store is the part of a repository a lane needs.
type Store[T any] interface {
	GetPendingSync(ctx context.Context) ([]schema.Syncable[T], error)
	MarkSentSynced(ctx context.Context, sent []T) (int, error)
	MarkSentFailed(ctx context.Context, sent []T) (int, error)
	UpsertFromServer(ctx context.Context, records []T) error
}

// Lane is one entity type within a family: the key it is sent under, its
// chunk size and the store it reads from and applies results to.
//
// Lanes are built with NewLane.
type Lane interface {
	Key() string
	ChunkSize() int
	begin(ctx context.Context, logger *zap.SugaredLogger) (laneCycle, error)
}

// laneCycle is the per-cycle state of a lane.
type laneCycle interface {
	report() *LaneReport
	chunks() int
	// payload returns chunk i, or an empty list when the lane has fewer
	// chunks.
	payload(i int) any
	collect(res remote.Result)
	apply(ctx context.Context) error
}

type typedLane[T schema.Record] struct {
	key       string
	chunkSize int
	store     Store[T]
}

// NewLane creates a lane for records of type T.
func NewLane[T schema.Record](key string, chunkSize int, store Store[T]) Lane {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &typedLane[T]{key: key, chunkSize: chunkSize, store: store}
}

func (l *typedLane[T]) Key() string    { return l.key }
func (l *typedLane[T]) ChunkSize() int { return l.chunkSize }

func (l *typedLane[T]) begin(ctx context.Context, logger *zap.SugaredLogger) (laneCycle, error) {
	pending, err := l.store.GetPendingSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending %s: %w", l.key, err)
	}
	records := schema.Payloads(pending)
	sent := make(map[string]T, len(records))
	for _, rec := range records {
		sent[rec.RecordID()] = rec
	}
	return &typedCycle[T]{
		lane:    l,
		logger:  logger,
		pending: records,
		sent:    sent,
		rep:     LaneReport{Key: l.key, Pending: len(pending), Chunks: chunkCount(len(pending), l.chunkSize)},
	}, nil
}

type typedCycle[T schema.Record] struct {
	lane    *typedLane[T]
	logger  *zap.SugaredLogger
	pending []T
	// sent maps id to the version read for sending.
	sent map[string]T

	synced  []string
	skipped []string
	wins    []T

	rep LaneReport
}

func (c *typedCycle[T]) report() *LaneReport { return &c.rep }
func (c *typedCycle[T]) chunks() int         { return c.rep.Chunks }

func (c *typedCycle[T]) payload(i int) any {
	start := i * c.lane.chunkSize
	if start >= len(c.pending) {
		return []T{}
	}
	end := min(start+c.lane.chunkSize, len(c.pending))
	return c.pending[start:end]
}

func (c *typedCycle[T]) collect(res remote.Result) {
	c.synced = append(c.synced, res.SyncedIDs...)
	c.skipped = append(c.skipped, res.SkippedIDs...)
	for _, raw := range res.ServerWins {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warnw("dropping undecodable server record", "entity", c.lane.key, "error", err)
			continue
		}
		c.wins = append(c.wins, rec)
	}
}

// apply writes the merged results back: synced first, then failed, then
// server wins. An id both skipped and returned as a server win therefore
// ends up synced with the server's values. Synced and failed only touch
// records still holding the version that was sent, so a local edit made
// while the request was in flight stays pending. Each step runs even if an
// earlier one failed.
func (c *typedCycle[T]) apply(ctx context.Context) error {
	var errs []error

	if n, err := c.lane.store.MarkSentSynced(ctx, c.versions(c.synced)); err != nil {
		errs = append(errs, fmt.Errorf("mark %s synced: %w", c.lane.key, err))
	} else {
		c.rep.Synced = n
		metrics.RecordResolved(c.lane.key, "synced", n)
	}

	if n, err := c.lane.store.MarkSentFailed(ctx, c.versions(c.skipped)); err != nil {
		errs = append(errs, fmt.Errorf("mark %s failed: %w", c.lane.key, err))
	} else {
		c.rep.Failed = n
		metrics.RecordResolved(c.lane.key, "failed", n)
	}

	if err := c.lane.store.UpsertFromServer(ctx, c.wins); err != nil {
		errs = append(errs, fmt.Errorf("apply %s server wins: %w", c.lane.key, err))
	} else {
		c.rep.ServerWins = len(c.wins)
		metrics.RecordResolved(c.lane.key, "server_won", len(c.wins))
	}

	return errors.Join(errs...)
}

// versions returns the sent version of each id. Ids that were not sent in
// this cycle are ignored.
func (c *typedCycle[T]) versions(ids []string) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		rec, ok := c.sent[id]
		if !ok {
			c.logger.Warnw("server answered for a record that was not sent", "entity", c.lane.key, "id", id)
			continue
		}
		out = append(out, rec)
	}
	return out
}

func chunkCount(n, size int) int {
	if n == 0 {
		return 0
	}
	return (n + size - 1) / size
}
