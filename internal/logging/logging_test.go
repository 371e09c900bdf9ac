package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_WritesFileAndConsole(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "pacelog.log")

	opts := DefaultOptions()
	opts.File = file
	opts.Console = &console
	logger, closeFn, err := New(opts)
	require.NoError(t, err)

	logger.Infow("sync cycle finished", "family", "goals", "synced", 3)
	logger.Debugw("hidden at info level")
	require.NoError(t, closeFn())

	require.Contains(t, console.String(), "sync cycle finished")
	require.NotContains(t, console.String(), "hidden at info level")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "goals", entry["family"])
	require.Equal(t, float64(3), entry["synced"])
}

func TestNew_InvalidLevel(t *testing.T) {
	opts := DefaultOptions()
	opts.Level = "chatty"
	_, _, err := New(opts)
	require.Error(t, err)
}
