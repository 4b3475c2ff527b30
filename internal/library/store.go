package library

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/metcalfc/flick/internal/logging"
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open returns the SQLite store at path. When it cannot be opened the error
// wraps ErrStoreUnavailable and the returned Store is an empty MemoryStore,
// so callers can keep going without persistence.
func Open(ctx context.Context, path string, logger *slog.Logger) (Store, error) {
	logger = logging.OrNull(logger)

	store, err := OpenSQLite(ctx, path)
	if err != nil {
		logger.Warn("library store unavailable, progress will not be saved",
			"path", path, "error", err)
		return NewMemoryStore(), fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	logger.Debug("library store opened", "path", path)
	return store, nil
}
