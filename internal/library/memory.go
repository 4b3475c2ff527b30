package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store that lives only as long as the process. It backs
// degraded mode when the database cannot be opened, and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	books    map[string]Entry
	sessions map[string][]ReadingSession
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:    make(map[string]Entry),
		sessions: make(map[string][]ReadingSession),
	}
}

func (m *MemoryStore) ListBooks(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.books))
	for _, e := range m.books {
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func (m *MemoryStore) GetBook(ctx context.Context, id string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.books[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (m *MemoryStore) UpsertBook(ctx context.Context, meta Metadata) error {
	if err := validID(meta.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.books[meta.ID]
	if !ok {
		e.AddedAt = time.Now().UTC()
	}
	e.Metadata = meta
	applyDefaults(&e)
	m.books[meta.ID] = e
	return nil
}

// GetProgress returns the zero Progress for books it has never seen.
func (m *MemoryStore) GetProgress(ctx context.Context, id string) (Progress, error) {
	e, err := m.GetBook(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Progress{}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	return e.Progress, nil
}

func (m *MemoryStore) SaveProgress(ctx context.Context, id string, p Progress) error {
	if p.Index < 0 {
		return fmt.Errorf("save progress %s: negative index %d", id, p.Index)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.books[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	e.Progress = p
	m.books[id] = e
	return nil
}

func (m *MemoryStore) RemoveBook(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.books, id)
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) RecordSession(ctx context.Context, rs ReadingSession) error {
	if err := validID(rs.BookID); err != nil {
		return err
	}
	if rs.ID == "" {
		rs.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[rs.BookID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rs.BookID)
	}
	m.sessions[rs.BookID] = append(m.sessions[rs.BookID], rs)
	return nil
}

func (m *MemoryStore) Sessions(ctx context.Context, id string) ([]ReadingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := append([]ReadingSession(nil), m.sessions[id]...)
	sortSessions(sessions)
	return sessions, nil
}

func (m *MemoryStore) Close() error { return nil }
