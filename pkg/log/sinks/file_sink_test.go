package sinks_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deskstep/deskstep/pkg/log"
	"github.com/deskstep/deskstep/pkg/log/sinks"
	"github.com/deskstep/deskstep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	fs, err := sinks.NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, fs.Write(&log.LogEvent{
		Level:     types.InfoLevel,
		Message:   "Environment ready",
		Fields:    map[string]any{"task_id": "notepad_1", "width": 1280},
		Timestamp: time.Now(),
	}))
	require.NoError(t, fs.Write(&log.LogEvent{
		Level:     types.WarnLevel,
		Message:   "Accessibility tree unavailable, continuing without it",
		Fields:    map[string]any{},
		Timestamp: time.Now(),
	}))
	require.NoError(t, fs.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "Environment ready", first["message"])
	assert.Equal(t, "notepad_1", first["task_id"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "warn", second["level"])
}

func TestFileSinkCloseIsIdempotentOnNilFile(t *testing.T) {
	fs := &sinks.FileSink{}
	assert.NoError(t, fs.Close())
}
