package daemon

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// dbWatcher reports writes to the database file and its SQLite sidecars
// (-wal, -journal). Events for other files in the directory are ignored.
type dbWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	base    string
}

func newDBWatcher(dbPath string) (*dbWatcher, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &dbWatcher{
		watcher: w,
		dir:     filepath.Dir(abs),
		base:    filepath.Base(abs),
	}, nil
}

// start watches the database directory. SQLite replaces sidecar files, so
// the directory is watched rather than the files themselves.
func (w *dbWatcher) start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	return nil
}

func (w *dbWatcher) close() error {
	return w.watcher.Close()
}

// relevant reports whether event is a change to the database.
func (w *dbWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(event.Name)
	if name == w.base {
		return true
	}
	suffix, ok := strings.CutPrefix(name, w.base)
	return ok && (suffix == "-wal" || suffix == "-journal")
}
