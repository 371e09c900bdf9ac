// Package daemon keeps the local store and the server in step while
// pacelog runs in the background.
//
// The daemon:
//  1. Runs every record family and the icon channel once at startup
//  2. Watches the database for local writes and syncs records shortly after
//  3. Syncs records and icons on fixed intervals
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pacelog/pacelog/internal/attach"
	pacesync "github.com/pacelog/pacelog/internal/sync"
)

// RecordSyncer runs all record families.
type RecordSyncer interface {
	SyncAll(ctx context.Context) ([]*pacesync.Report, error)
}

// IconSyncer drains the icon queues.
type IconSyncer interface {
	Run(ctx context.Context) ([]*attach.Report, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often every record family runs.
	SyncInterval time.Duration

	// IconSyncInterval is how often icon uploads and deletions run.
	IconSyncInterval time.Duration

	// DebounceInterval is how long the database must be quiet after a
	// write before a record sync starts. Bursts of edits share one cycle.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *zap.SugaredLogger
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		IconSyncInterval: 10 * time.Minute,
		DebounceInterval: 2 * time.Second,
	}
}

// Daemon schedules record and icon sync.
type Daemon struct {
	records RecordSyncer
	icons   IconSyncer
	config  *Config
	logger  *zap.SugaredLogger
	watcher *dbWatcher

	changed chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a daemon for the database at dbPath. icons may be nil when
// the icon channel is not used.
func New(records RecordSyncer, icons IconSyncer, dbPath string, config *Config) (*Daemon, error) {
	if records == nil {
		return nil, fmt.Errorf("records syncer cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 || config.IconSyncInterval <= 0 || config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("daemon intervals must be positive")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	watcher, err := newDBWatcher(dbPath)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		records: records,
		icons:   icons,
		config:  config,
		logger:  logger.Named("daemon"),
		watcher: watcher,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the daemon until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	defer close(d.done)
	defer cancel()
	defer func() {
		if err := d.watcher.close(); err != nil {
			d.logger.Warnw("failed to close watcher", "error", err)
		}
	}()

	if err := d.watcher.start(); err != nil {
		return err
	}
	d.logger.Infow("daemon started",
		"watching", d.watcher.dir,
		"sync_interval", d.config.SyncInterval,
		"icon_sync_interval", d.config.IconSyncInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.syncRecords(ctx)
		return d.every(ctx, d.config.SyncInterval, d.syncRecords)
	})
	if d.icons != nil {
		g.Go(func() error {
			d.syncIcons(ctx)
			return d.every(ctx, d.config.IconSyncInterval, d.syncIcons)
		})
	}
	g.Go(func() error { return d.watch(ctx) })
	g.Go(func() error { return d.debounce(ctx) })

	err := g.Wait()
	d.logger.Infow("daemon stopped")
	return err
}

// Stop cancels a running daemon and waits for it to exit.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	started, cancel := d.started, d.cancel
	d.mu.Unlock()

	if !started {
		return d.watcher.close()
	}
	if cancel != nil {
		cancel()
	}
	<-d.done
	return nil
}

// Trigger requests a record sync after the debounce interval.
func (d *Daemon) Trigger() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

func (d *Daemon) watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-d.watcher.watcher.Events:
			if !ok {
				return nil
			}
			if d.watcher.relevant(event) {
				d.Trigger()
			}

		case err, ok := <-d.watcher.watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warnw("watcher error", "error", err)
		}
	}
}

// debounce runs a record sync once no change has arrived for
// DebounceInterval.
func (d *Daemon) debounce(ctx context.Context) error {
	timer := time.NewTimer(d.config.DebounceInterval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-d.changed:
			timer.Reset(d.config.DebounceInterval)

		case <-timer.C:
			d.syncRecords(ctx)
		}
	}
}

func (d *Daemon) every(ctx context.Context, interval time.Duration, run func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run(ctx)
		}
	}
}

func (d *Daemon) syncRecords(ctx context.Context) {
	reports, err := d.records.SyncAll(ctx)
	d.logResult("records", len(reports), err)
}

func (d *Daemon) syncIcons(ctx context.Context) {
	reports, err := d.icons.Run(ctx)
	d.logResult("icons", len(reports), err)
}

func (d *Daemon) logResult(what string, reports int, err error) {
	switch {
	case err == nil:
		d.logger.Debugw("sync finished", "what", what, "reports", reports)
	case allMatch(err, isCanceled):
	case allMatch(err, isInProgress):
		d.logger.Debugw("sync skipped, cycle in progress", "what", what)
	default:
		d.logger.Warnw("sync failed", "what", what, "error", err)
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func isInProgress(err error) bool {
	return errors.Is(err, pacesync.ErrCycleInProgress) || errors.Is(err, attach.ErrCycleInProgress)
}

// allMatch reports whether every error joined into err satisfies match.
// SyncAll joins one error per family, so a skipped family must not hide
// another family's failure.
func allMatch(err error, match func(error) bool) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return match(err)
	}
	errs := joined.Unwrap()
	for _, e := range errs {
		if !allMatch(e, match) {
			return false
		}
	}
	return len(errs) > 0
}
