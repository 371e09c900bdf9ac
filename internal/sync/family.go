package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pacelog/pacelog/internal/metrics"
	"github.com/pacelog/pacelog/internal/remote"
)

// ErrCycleInProgress is returned by Run when the family already has a cycle
// in flight.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// Transport sends one batch chunk and returns the per-entity results. A
// non-2xx answer must be reported as an error.
type Transport interface {
	PostBatch(ctx context.Context, path string, body any) (remote.BatchResponse, error)
}

// Observer is notified after every cycle that had something to send.
type Observer interface {
	SyncCompleted(report *Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(report *Report)

func (f ObserverFunc) SyncCompleted(report *Report) { f(report) }

// Family syncs a group of related entity types through one batch endpoint.
//
// A cycle reads every lane's pending records, splits each lane into
// chunks, and sends request i with chunk i of every lane (an empty list
// for lanes with fewer chunks). Requests go out one at a time. A
// transport failure stops the cycle; records not confirmed by an earlier
// response stay pending and are retried next cycle. Results of all
// completed requests are merged and applied once per lane at the end.
type Family struct {
	name      string
	endpoint  string
	lanes     []Lane
	transport Transport
	logger    *zap.SugaredLogger

	running atomic.Bool

	mu        stdsync.Mutex
	observers []Observer
}

// NewFamily creates a family. If logger is nil, logging is discarded.
func NewFamily(name, endpoint string, transport Transport, logger *zap.SugaredLogger, lanes ...Lane) *Family {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Family{
		name:      name,
		endpoint:  endpoint,
		lanes:     lanes,
		transport: transport,
		logger:    logger.With("family", name),
	}
}

// Name returns the family name.
func (f *Family) Name() string { return f.name }

// Endpoint returns the batch endpoint path.
func (f *Family) Endpoint() string { return f.endpoint }

// Lanes returns the family's lanes in request order.
func (f *Family) Lanes() []Lane { return f.lanes }

// AddObserver registers o for cycle reports.
func (f *Family) AddObserver(o Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, o)
}

// Running reports whether a cycle is in flight.
func (f *Family) Running() bool {
	return f.running.Load()
}

// Run performs one sync cycle.
//
// If nothing is pending, Run returns an empty report without contacting
// the server. Otherwise the returned error joins the transport error that
// aborted the cycle, if any, with every storage error hit while applying
// results. The report is returned in both cases.
func (f *Family) Run(ctx context.Context) (*Report, error) {
	if !f.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%s: %w", f.name, ErrCycleInProgress)
	}
	defer f.running.Store(false)

	start := time.Now()
	report := &Report{Family: f.name, Started: start}

	cycles := make([]laneCycle, 0, len(f.lanes))
	pending := 0
	for _, l := range f.lanes {
		c, err := l.begin(ctx, f.logger)
		if err != nil {
			return report, err
		}
		cycles = append(cycles, c)
		pending += c.report().Pending
		report.ChunksTotal = max(report.ChunksTotal, c.chunks())
	}

	if pending == 0 {
		report.Duration = time.Since(start)
		return report, nil
	}

	f.logger.Infow("sync cycle started", "pending", pending, "chunks", report.ChunksTotal)

	var transportErr error
	for i := 0; i < report.ChunksTotal; i++ {
		body := make(map[string]any, len(cycles))
		for j, c := range cycles {
			body[f.lanes[j].Key()] = c.payload(i)
		}

		resp, err := f.transport.PostBatch(ctx, f.endpoint, body)
		metrics.RecordChunk(f.name, err == nil)
		if err != nil {
			transportErr = fmt.Errorf("%s chunk %d/%d: %w", f.name, i+1, report.ChunksTotal, err)
			report.Aborted = true
			f.logger.Warnw("sync cycle aborted", "chunk", i+1, "error", err)
			break
		}
		report.ChunksSent++

		for j, c := range cycles {
			if res, ok := resp[f.lanes[j].Key()]; ok {
				c.collect(res)
			}
		}
	}

	errs := []error{transportErr}
	for _, c := range cycles {
		if err := c.apply(ctx); err != nil {
			f.logger.Errorw("failed to apply sync results", "error", err)
			errs = append(errs, err)
		}
		report.Lanes = append(report.Lanes, *c.report())
	}

	report.Duration = time.Since(start)
	metrics.RecordCycle(f.name, report.Duration, time.Now())

	err := errors.Join(errs...)
	if err != nil {
		report.Error = err.Error()
	}

	f.logger.Infow("sync cycle finished",
		"sent", report.ChunksSent,
		"synced", report.Synced(),
		"failed", report.Failed(),
		"serverWins", report.ServerWins(),
		"aborted", report.Aborted,
		"duration", report.Duration,
	)
	f.notify(report)

	return report, err
}

func (f *Family) notify(report *Report) {
	f.mu.Lock()
	observers := append([]Observer(nil), f.observers...)
	f.mu.Unlock()

	for _, o := range observers {
		o.SyncCompleted(report)
	}
}
