// Package library persists the book collection and per-book reading progress.
package library

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrStoreUnavailable means durable storage could not be opened. Open
	// still returns a usable in-memory Store alongside it.
	ErrStoreUnavailable = errors.New("library store unavailable")
	// ErrNotFound is returned for unknown book IDs.
	ErrNotFound = errors.New("book not found")
)

// Metadata is the static description of a book, keyed by its content hash.
type Metadata struct {
	ID          string
	Path        string
	Title       string
	Author      string
	TotalTokens int
	FileSize    int64
}

// Progress is the saved reading position of a book. Index is the next token
// to display. WPM is the rate last used for this book; zero means unset.
type Progress struct {
	Index     int
	UpdatedAt time.Time
	WPM       int
}

// Entry is one book in the library.
type Entry struct {
	Metadata
	Progress Progress
	AddedAt  time.Time
}

// Started reports whether the book has ever been read.
func (e Entry) Started() bool {
	return !e.Progress.UpdatedAt.IsZero()
}

// Percent returns reading progress in [0, 100].
func (e Entry) Percent() float64 {
	if e.TotalTokens <= 0 {
		return 0
	}
	p := float64(e.Progress.Index) / float64(e.TotalTokens) * 100
	return min(max(p, 0), 100)
}

// ReadingSession is one completed stretch of reading.
type ReadingSession struct {
	ID         string
	BookID     string
	StartedAt  time.Time
	EndedAt    time.Time
	StartIndex int
	EndIndex   int
	WordsRead  int
	AverageWPM int
}

// Store is the durable library. Implementations are safe for concurrent use.
type Store interface {
	// ListBooks returns every book, most recently read first, then unread
	// books newest import first.
	ListBooks(ctx context.Context) ([]Entry, error)
	GetBook(ctx context.Context, id string) (Entry, error)
	// UpsertBook inserts or refreshes static metadata. Progress is kept.
	UpsertBook(ctx context.Context, meta Metadata) error
	// GetProgress returns the zero Progress when none was saved.
	GetProgress(ctx context.Context, id string) (Progress, error)
	SaveProgress(ctx context.Context, id string, p Progress) error
	// RemoveBook deletes the book with its progress and history.
	RemoveBook(ctx context.Context, id string) error
	RecordSession(ctx context.Context, s ReadingSession) error
	// Sessions returns the reading history of a book, newest first.
	Sessions(ctx context.Context, id string) ([]ReadingSession, error)
	Close() error
}

// applyDefaults fills fields that older rows or partial writes may lack.
func applyDefaults(e *Entry) {
	if strings.TrimSpace(e.Title) == "" && e.Path != "" {
		base := filepath.Base(e.Path)
		e.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if e.TotalTokens < 0 {
		e.TotalTokens = 0
	}
	if e.Progress.Index < 0 {
		e.Progress.Index = 0
	}
	if e.Progress.WPM < 0 {
		e.Progress.WPM = 0
	}
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Started() != b.Started() {
			return a.Started()
		}
		if a.Started() && !a.Progress.UpdatedAt.Equal(b.Progress.UpdatedAt) {
			return a.Progress.UpdatedAt.After(b.Progress.UpdatedAt)
		}
		if !a.AddedAt.Equal(b.AddedAt) {
			return a.AddedAt.After(b.AddedAt)
		}
		return a.ID < b.ID
	})
}

func sortSessions(sessions []ReadingSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("empty book id")
	}
	return nil
}
