// Package service ties extraction, the library store, the book cache and
// the playback engine together for the presentation layers.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/metcalfc/flick/internal/cache"
	"github.com/metcalfc/flick/internal/config"
	"github.com/metcalfc/flick/internal/library"
	"github.com/metcalfc/flick/internal/logging"
	"github.com/metcalfc/flick/internal/reader"
)

// ErrAmbiguous is returned when an ID prefix matches more than one book.
var ErrAmbiguous = errors.New("ambiguous book id")

// Library is the book collection as the user sees it.
type Library struct {
	store  library.Store
	cache  *cache.Cache
	cfg    config.ReadingConfig
	logger *slog.Logger
}

// Item is a library entry annotated with whether its file is still present.
type Item struct {
	library.Entry
	Available bool
}

// ScanResult summarizes a directory scan.
type ScanResult struct {
	Found    int
	Imported []library.Entry
	Failed   map[string]error
}

// NewLibrary wires a Library. A nil cache disables caching.
func NewLibrary(store library.Store, c *cache.Cache, cfg config.ReadingConfig, logger *slog.Logger) *Library {
	return &Library{
		store:  store,
		cache:  c,
		cfg:    cfg,
		logger: logging.OrNull(logger),
	}
}

// OpenLibrary opens the store and cache configured in cfg. If durable
// storage is unavailable the error wraps library.ErrStoreUnavailable and the
// returned Library works in memory.
func OpenLibrary(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Library, error) {
	logger = logging.OrNull(logger)

	store, storeErr := library.Open(ctx, cfg.Library.DBPath, logger)

	c, err := cache.Open(cfg.Library.CachePath)
	if err != nil {
		logger.Warn("book cache unavailable, running uncached", "path", cfg.Library.CachePath, "error", err)
		c = nil
	}
	return NewLibrary(store, c, cfg.Reading, logger), storeErr
}

// Degraded reports whether progress is kept only in memory.
func (l *Library) Degraded() bool {
	_, ok := l.store.(*library.MemoryStore)
	return ok
}

// Store returns the underlying store.
func (l *Library) Store() library.Store { return l.store }

// Close releases the store and cache.
func (l *Library) Close() error {
	err := l.store.Close()
	if cerr := l.cache.Close(); err == nil {
		err = cerr
	}
	return err
}

// Import adds the book at path, or refreshes it when the same content is
// already in the library. Unreadable books leave the library unchanged.
func (l *Library) Import(ctx context.Context, path string) (library.Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return library.Entry{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return library.Entry{}, fmt.Errorf("%w: %w", reader.ErrUnreadableBook, err)
	}
	if info.IsDir() {
		return library.Entry{}, fmt.Errorf("%w: %s is a directory", reader.ErrUnreadableBook, path)
	}

	id, err := library.ComputeHash(abs)
	if err != nil {
		return library.Entry{}, fmt.Errorf("%w: %w", reader.ErrUnreadableBook, err)
	}

	book, err := l.load(id, abs)
	if err != nil {
		l.logger.Warn("import failed", "path", abs, "error", err)
		return library.Entry{}, err
	}

	if prev, err := l.store.GetBook(ctx, id); err == nil && prev.Path != abs {
		l.logger.Info("book moved", "id", id, "from", prev.Path, "to", abs)
	}

	meta := library.Metadata{
		ID:          id,
		Path:        abs,
		Title:       book.Title,
		Author:      book.Author,
		TotalTokens: book.Total(),
		FileSize:    info.Size(),
	}
	if err := l.store.UpsertBook(ctx, meta); err != nil {
		return library.Entry{}, err
	}

	l.logger.Info("imported book", "id", id, "title", book.Title, "tokens", book.Total())
	return l.store.GetBook(ctx, id)
}

// load returns the tokenized book for id, from the cache when possible.
func (l *Library) load(id, path string) (*reader.Book, error) {
	book, err := l.cache.Get(id)
	if err != nil {
		l.logger.Warn("ignoring cached book", "id", id, "error", err)
	}
	if book != nil {
		book.Path = path
		return book, nil
	}

	book, err = reader.Open(path)
	if err != nil {
		return nil, err
	}
	book.ID = id
	if err := l.cache.Put(book); err != nil {
		l.logger.Warn("failed to cache book", "id", id, "error", err)
	}
	return book, nil
}

// Scan imports every EPUB under dir.
func (l *Library) Scan(ctx context.Context, dir string) (ScanResult, error) {
	result := ScanResult{Failed: make(map[string]error)}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".epub") {
			return nil
		}

		result.Found++
		entry, err := l.Import(ctx, path)
		if err != nil {
			result.Failed[path] = err
			return nil
		}
		result.Imported = append(result.Imported, entry)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("scan %s: %w", dir, err)
	}

	l.logger.Info("scan complete", "dir", dir, "found", result.Found,
		"imported", len(result.Imported), "failed", len(result.Failed))
	return result, nil
}

// List returns every book, most recently read first.
func (l *Library) List(ctx context.Context) ([]Item, error) {
	entries, err := l.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	return toItems(entries), nil
}

// Search returns books whose title or author fuzzily match query.
func (l *Library) Search(ctx context.Context, query string) ([]Item, error) {
	entries, err := l.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	return toItems(library.Search(entries, query)), nil
}

func toItems(entries []library.Entry) []Item {
	items := make([]Item, len(entries))
	for i, e := range entries {
		_, err := os.Stat(e.Path)
		items[i] = Item{Entry: e, Available: err == nil}
	}
	return items
}

// Remove deletes a book, its progress and its cached tokens. The file on
// disk is untouched.
func (l *Library) Remove(ctx context.Context, id string) error {
	if err := l.store.RemoveBook(ctx, id); err != nil {
		return err
	}
	if err := l.cache.Delete(id); err != nil {
		l.logger.Warn("failed to drop cached book", "id", id, "error", err)
	}
	l.logger.Info("removed book", "id", id)
	return nil
}

// Resolve turns a command-line argument into a library entry. An existing
// file is imported (or re-imported) first; anything else goes through Find.
func (l *Library) Resolve(ctx context.Context, arg string) (library.Entry, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return l.Import(ctx, arg)
	}
	return l.Find(ctx, arg)
}

// Find looks up an entry without importing anything. arg may be a full id,
// the path a book was imported from, a file whose content is in the
// library, or a unique id prefix.
func (l *Library) Find(ctx context.Context, arg string) (library.Entry, error) {
	if arg == "" {
		return library.Entry{}, fmt.Errorf("%w: empty id", library.ErrNotFound)
	}

	entries, err := l.store.ListBooks(ctx)
	if err != nil {
		return library.Entry{}, err
	}

	var hash string
	abs, absErr := filepath.Abs(arg)
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		if h, err := library.ComputeHash(arg); err == nil {
			hash = h
		}
	}

	var matches []library.Entry
	for _, e := range entries {
		if e.ID == arg || e.ID == hash || (absErr == nil && e.Path == abs) {
			return e, nil
		}
		if strings.HasPrefix(e.ID, arg) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return library.Entry{}, fmt.Errorf("%w: %s", library.ErrNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return library.Entry{}, fmt.Errorf("%w: %q matches %d books", ErrAmbiguous, arg, len(matches))
	}
}

// Book returns the tokenized book for a library entry.
func (l *Library) Book(ctx context.Context, id string) (*reader.Book, library.Entry, error) {
	entry, err := l.store.GetBook(ctx, id)
	if err != nil {
		return nil, library.Entry{}, err
	}
	book, err := l.load(entry.ID, entry.Path)
	if err != nil {
		return nil, entry, err
	}

	if entry.TotalTokens != book.Total() {
		entry.TotalTokens = book.Total()
		if err := l.store.UpsertBook(ctx, entry.Metadata); err != nil {
			l.logger.Warn("failed to refresh book metadata", "id", id, "error", err)
		}
	}
	return book, entry, nil
}

// TOC returns the table of contents of a library book. Formats without one
// get an entry per chapter.
func (l *Library) TOC(ctx context.Context, id string) ([]reader.TOCEntry, error) {
	book, entry, err := l.Book(ctx, id)
	if err != nil {
		return nil, err
	}
	if f, ok := reader.Lookup(entry.Path); ok {
		if p, ok := f.(reader.TOCProvider); ok {
			if toc, err := p.TOC(entry.Path, book); err == nil && len(toc) > 0 {
				return toc, nil
			}
		}
	}

	toc := make([]reader.TOCEntry, len(book.Chapters))
	for i, ch := range book.Chapters {
		toc[i] = reader.TOCEntry{Title: ch.Title, WordIndex: ch.Start}
	}
	return toc, nil
}
