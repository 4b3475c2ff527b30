package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const bookColumns = `id, path, title, author, total_tokens, file_size, added_at,
	progress_index, progress_updated_at, wpm`

const sessionColumns = `id, book_id, started_at, ended_at, start_index, end_index,
	words_read, average_wpm`

// SQLiteStore manages library persistence backed by SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	lock *flock.Flock

	// mu serializes writes.
	mu sync.Mutex
}

// OpenSQLite opens or creates the library database at path and applies
// migrations. It holds an exclusive lock on path+".lock" until Close so a
// second process cannot write the same library.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("no library database path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("library is in use by another flick process")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps per-connection pragmas in force for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path, lock: lock}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database and releases the lock.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

func (s *SQLiteStore) ListBooks(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+bookColumns+" FROM books")
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	sortEntries(entries)
	return entries, nil
}

func (s *SQLiteStore) GetBook(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get book %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLiteStore) UpsertBook(ctx context.Context, meta Metadata) error {
	if err := validID(meta.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (id, path, title, author, total_tokens, file_size, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			author = excluded.author,
			total_tokens = excluded.total_tokens,
			file_size = excluded.file_size`,
		meta.ID,
		meta.Path,
		nullableString(meta.Title),
		nullableString(meta.Author),
		meta.TotalTokens,
		meta.FileSize,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert book %s: %w", meta.ID, err)
	}
	return nil
}

// GetProgress returns the zero Progress for books it has never seen.
func (s *SQLiteStore) GetProgress(ctx context.Context, id string) (Progress, error) {
	e, err := s.GetBook(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Progress{}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	return e.Progress, nil
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, id string, p Progress) error {
	if p.Index < 0 {
		return fmt.Errorf("save progress %s: negative index %d", id, p.Index)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE books SET progress_index = ?, progress_updated_at = ?, wpm = ? WHERE id = ?",
		p.Index, formatTime(p.UpdatedAt), nullableInt(p.WPM), id,
	)
	if err != nil {
		return fmt.Errorf("save progress %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) RemoveBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM reading_sessions WHERE book_id = ?", id); err != nil {
		return fmt.Errorf("remove sessions %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove book %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) RecordSession(ctx context.Context, rs ReadingSession) error {
	if err := validID(rs.BookID); err != nil {
		return err
	}
	if rs.ID == "" {
		rs.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reading_sessions (`+sessionColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM books WHERE id = ?)`,
		rs.ID,
		rs.BookID,
		formatTime(rs.StartedAt),
		formatTime(rs.EndedAt),
		rs.StartIndex,
		rs.EndIndex,
		rs.WordsRead,
		rs.AverageWPM,
		rs.BookID,
	)
	if err != nil {
		return fmt.Errorf("record session for %s: %w", rs.BookID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, rs.BookID)
	}
	return nil
}

func (s *SQLiteStore) Sessions(ctx context.Context, id string) ([]ReadingSession, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM reading_sessions WHERE book_id = ? ORDER BY started_at DESC", id)
	if err != nil {
		return nil, fmt.Errorf("list sessions %s: %w", id, err)
	}
	defer rows.Close()

	var sessions []ReadingSession
	for rows.Next() {
		var (
			rs                   ReadingSession
			startedRaw, endedRaw string
		)
		if err := rows.Scan(&rs.ID, &rs.BookID, &startedRaw, &endedRaw,
			&rs.StartIndex, &rs.EndIndex, &rs.WordsRead, &rs.AverageWPM); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if t, err := parseTimeString(startedRaw); err == nil {
			rs.StartedAt = t
		}
		if t, err := parseTimeString(endedRaw); err == nil {
			rs.EndedAt = t
		}
		sessions = append(sessions, rs)
	}
	return sessions, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		e          Entry
		title      sql.NullString
		author     sql.NullString
		total      sql.NullInt64
		size       sql.NullInt64
		addedRaw   sql.NullString
		index      sql.NullInt64
		updatedRaw sql.NullString
		wpm        sql.NullInt64
	)
	if err := scanner.Scan(
		&e.ID,
		&e.Path,
		&title,
		&author,
		&total,
		&size,
		&addedRaw,
		&index,
		&updatedRaw,
		&wpm,
	); err != nil {
		return Entry{}, err
	}

	e.Title = title.String
	e.Author = author.String
	e.TotalTokens = int(total.Int64)
	e.FileSize = size.Int64
	e.Progress.Index = int(index.Int64)
	e.Progress.WPM = int(wpm.Int64)
	if added, err := parseTimeString(addedRaw.String); err == nil {
		e.AddedAt = added
	}
	if updatedRaw.Valid {
		if updated, err := parseTimeString(updatedRaw.String); err == nil {
			e.Progress.UpdatedAt = updated
		}
	}
	applyDefaults(&e)
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}
