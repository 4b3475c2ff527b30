// Package logging sets up the structured file logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/metcalfc/flick/internal/config"
)

// SetupLogger opens the log file named in cfg and returns a JSON logger
// writing to it. Debug logging also records the call site. The closer
// releases the file.
func SetupLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	path := config.ExpandHome(cfg.File)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	level := parseLogLevel(cfg.Level)
	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	// Several flick processes may append to the same file.
	return slog.New(handler).With("pid", os.Getpid()), f, nil
}

// parseLogLevel accepts slog level names with optional offsets ("warn+1")
// and "warning". Anything else is Info.
func parseLogLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NullLogger returns a logger that discards everything.
func NullLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNull returns logger, or a discarding logger when it is nil.
func OrNull(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NullLogger()
	}
	return logger
}
