package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "entries", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "entries=3")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	Module(logger, "indexer").Debug("scan finished", "files", 12)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "scan finished", record["msg"])
	assert.Equal(t, "indexer", record["module"])
	assert.EqualValues(t, 12, record["files"])
}

func TestNew_UnknownFormat(t *testing.T) {
	_, closer, err := New(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
	assert.NotNil(t, closer)
}

func TestNew_FileOutput(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "audiomark.log")

	logger, closer, err := New(Config{Level: "info", File: path}, &console)
	require.NoError(t, err)

	logger.With("project", "drums").Info("saved")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "msg=saved")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "saved", record["msg"])
	assert.Equal(t, "drums", record["project"])
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(t.Context(), slog.LevelError))
}
