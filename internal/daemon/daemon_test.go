package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pacelog/pacelog/internal/attach"
	pacesync "github.com/pacelog/pacelog/internal/sync"
)

type countingRecords struct {
	calls atomic.Int32
	err   error
}

func (c *countingRecords) SyncAll(ctx context.Context) ([]*pacesync.Report, error) {
	c.calls.Add(1)
	return nil, c.err
}

type countingIcons struct {
	calls atomic.Int32
}

func (c *countingIcons) Run(ctx context.Context) ([]*attach.Report, error) {
	c.calls.Add(1)
	return nil, nil
}

func testConfig(t *testing.T) *Config {
	return &Config{
		SyncInterval:     time.Hour,
		IconSyncInterval: time.Hour,
		DebounceInterval: 50 * time.Millisecond,
		Logger:           zaptest.NewLogger(t).Sugar(),
	}
}

// startDaemon runs d in the background and stops it at cleanup.
func startDaemon(t *testing.T, d *Daemon) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(context.Background()) }()
	t.Cleanup(func() { _ = d.Stop() })
	return errCh
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_Validation(t *testing.T) {
	records := &countingRecords{}
	dbPath := filepath.Join(t.TempDir(), "pacelog.db")

	if _, err := New(nil, nil, dbPath, nil); err == nil {
		t.Error("expected error for nil records syncer")
	}
	if _, err := New(records, nil, "", nil); err == nil {
		t.Error("expected error for empty dbPath")
	}
	cfg := testConfig(t)
	cfg.DebounceInterval = 0
	if _, err := New(records, nil, dbPath, cfg); err == nil {
		t.Error("expected error for zero debounce interval")
	}

	d, err := New(records, nil, dbPath, nil)
	if err != nil {
		t.Fatalf("New with default config failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop before Start failed: %v", err)
	}
}

func TestStart_InitialSync(t *testing.T) {
	records := &countingRecords{}
	icons := &countingIcons{}
	d, err := New(records, icons, filepath.Join(t.TempDir(), "pacelog.db"), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "initial record sync", func() bool { return records.calls.Load() == 1 })
	waitFor(t, "initial icon sync", func() bool { return icons.calls.Load() == 1 })
}

func TestDatabaseWriteTriggersSync(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pacelog.db")
	records := &countingRecords{}
	d, err := New(records, nil, dbPath, testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)
	waitFor(t, "initial sync", func() bool { return records.calls.Load() == 1 })

	// Writes to unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := records.calls.Load(); got != 1 {
		t.Fatalf("unrelated write triggered sync: %d calls", got)
	}

	if err := os.WriteFile(dbPath+"-wal", []byte("x"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitFor(t, "sync after database write", func() bool { return records.calls.Load() == 2 })
}

func TestTrigger_Debounces(t *testing.T) {
	records := &countingRecords{}
	d, err := New(records, nil, filepath.Join(t.TempDir(), "pacelog.db"), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)
	waitFor(t, "initial sync", func() bool { return records.calls.Load() == 1 })

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(10 * time.Millisecond)
	}
	waitFor(t, "debounced sync", func() bool { return records.calls.Load() == 2 })

	time.Sleep(200 * time.Millisecond)
	if got := records.calls.Load(); got != 2 {
		t.Errorf("expected one debounced sync, got %d total calls", got)
	}
}

func TestSyncInterval(t *testing.T) {
	records := &countingRecords{err: pacesync.ErrCycleInProgress}
	cfg := testConfig(t)
	cfg.SyncInterval = 30 * time.Millisecond
	d, err := New(records, nil, filepath.Join(t.TempDir(), "pacelog.db"), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startDaemon(t, d)

	waitFor(t, "periodic syncs", func() bool { return records.calls.Load() >= 3 })
}

func TestStop_EndsStart(t *testing.T) {
	records := &countingRecords{}
	d, err := New(records, nil, filepath.Join(t.TempDir(), "pacelog.db"), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	errCh := startDaemon(t, d)
	waitFor(t, "initial sync", func() bool { return records.calls.Load() == 1 })

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Error("expected error when starting twice")
	}
}

func TestWatcherRelevant(t *testing.T) {
	dir := t.TempDir()
	w, err := newDBWatcher(filepath.Join(dir, "pacelog.db"))
	if err != nil {
		t.Fatalf("newDBWatcher failed: %v", err)
	}
	defer w.close()

	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"pacelog.db", fsnotify.Write, true},
		{"pacelog.db-wal", fsnotify.Write, true},
		{"pacelog.db-journal", fsnotify.Create, true},
		{"pacelog.db-shm", fsnotify.Write, false},
		{"pacelog.db", fsnotify.Chmod, false},
		{"pacelog.db", fsnotify.Remove, false},
		{"other.db", fsnotify.Write, false},
	}
	for _, tt := range tests {
		event := fsnotify.Event{Name: filepath.Join(dir, tt.name), Op: tt.op}
		if got := w.relevant(event); got != tt.want {
			t.Errorf("relevant(%s %s) = %v, want %v", tt.op, tt.name, got, tt.want)
		}
	}
}

func TestLogResult_Levels(t *testing.T) {
	skipped := fmt.Errorf("goals: %w", pacesync.ErrCycleInProgress)
	iconsSkipped := fmt.Errorf("icon uploads: %w", attach.ErrCycleInProgress)

	tests := []struct {
		name  string
		err   error
		level zapcore.Level
		logs  int
	}{
		{"success", nil, zapcore.DebugLevel, 1},
		{"cancelled", context.Canceled, zapcore.DebugLevel, 0},
		{"one family skipped", errors.Join(skipped), zapcore.DebugLevel, 1},
		{"icons skipped", errors.Join(iconsSkipped, nil), zapcore.DebugLevel, 1},
		{"skipped and failed", errors.Join(skipped, errors.New("connection refused")), zapcore.WarnLevel, 1},
		{"cancelled and failed", errors.Join(context.Canceled, errors.New("disk full")), zapcore.WarnLevel, 1},
		{"failed", errors.New("connection refused"), zapcore.WarnLevel, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			cfg := testConfig(t)
			cfg.Logger = zap.New(core).Sugar()
			d, err := New(&countingRecords{}, nil, filepath.Join(t.TempDir(), "pacelog.db"), cfg)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			t.Cleanup(func() { _ = d.Stop() })

			d.logResult("records", 0, tt.err)

			entries := logs.All()
			if len(entries) != tt.logs {
				t.Fatalf("got %d log entries, want %d", len(entries), tt.logs)
			}
			if tt.logs > 0 && entries[0].Level != tt.level {
				t.Errorf("level = %v, want %v", entries[0].Level, tt.level)
			}
		})
	}
}
