package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metcalfc/flick/internal/config"
)

func TestSetupLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "flick.log")

	logger, closer, err := SetupLogger(config.LoggingConfig{File: path, Level: "warn"})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "book", "abc")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc", entry["book"])
	assert.Equal(t, float64(os.Getpid()), entry["pid"])
	assert.NotContains(t, entry, "source")
}

func TestSetupLoggerExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	logger, closer, err := SetupLogger(config.LoggingConfig{File: "~/logs/flick.log", Level: "debug"})
	require.NoError(t, err)
	logger.Debug("traced")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(home, "logs", "flick.log"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "traced", entry["msg"])
	assert.Contains(t, entry, "source")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" warn+1 ", slog.LevelWarn + 1},
		{"Error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), tt.in)
	}
}

func TestOrNull(t *testing.T) {
	assert.NotNil(t, OrNull(nil))

	logger := NullLogger()
	assert.Same(t, logger, OrNull(logger))
}
