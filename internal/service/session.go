package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metcalfc/flick/internal/library"
	"github.com/metcalfc/flick/internal/reader"
)

// OpenOptions adjust how a book is opened.
type OpenOptions struct {
	// Fresh starts from the beginning, ignoring saved progress.
	Fresh bool
	// WPM overrides the saved and configured rate when non-zero.
	WPM int
	// Scheduler replaces the wall clock, for tests.
	Scheduler reader.Scheduler
	// Observers are registered before the book is loaded.
	Observers []reader.Observer
}

// Session is one open book: a Reader plus the bookkeeping that writes its
// progress back to the library. It is safe for concurrent use.
type Session struct {
	id     string
	store  library.Store
	logger *slog.Logger
	reader *reader.Reader
	entry  library.Entry

	saveEvery int

	mu          sync.Mutex
	sinceSave   int
	startedAt   time.Time
	startIndex  int
	wordsRead   int
	playingFrom time.Time
	active      time.Duration
	closed      bool
}

var _ reader.Observer = (*Session)(nil)

// Open loads a library book into a new Session positioned at its saved
// progress. Saved positions outside the book are reset to the start.
func (l *Library) Open(ctx context.Context, id string, opts OpenOptions) (*Session, error) {
	book, entry, err := l.Book(ctx, id)
	if err != nil {
		return nil, err
	}

	start := entry.Progress.Index
	if opts.Fresh {
		start = 0
	} else if err := reader.ValidatePosition(start, book.Total()); err != nil {
		l.logger.Warn("saved position out of range, starting over",
			"id", id, "index", start, "total", book.Total(), "error", err)
		start = 0
		reset := library.Progress{Index: 0, WPM: entry.Progress.WPM}
		if err := l.store.SaveProgress(ctx, id, reset); err != nil {
			l.logger.Warn("failed to reset progress", "id", id, "error", err)
		}
	}

	wpm := opts.WPM
	if wpm == 0 {
		wpm = entry.Progress.WPM
	}
	if wpm == 0 {
		wpm = l.cfg.WPM
	}

	ropts := []reader.Option{
		reader.WithRateLimits(l.cfg.MinWPM, l.cfg.MaxWPM),
		reader.WithWordsPerPage(l.cfg.WordsPerPage),
	}
	if opts.Scheduler != nil {
		ropts = append(ropts, reader.WithScheduler(opts.Scheduler))
	}
	for _, o := range opts.Observers {
		ropts = append(ropts, reader.WithObserver(o))
	}
	r := reader.NewReader(wpm, ropts...)

	s := &Session{
		id:         uuid.NewString(),
		store:      l.store,
		logger:     l.logger.With("book", entry.ID),
		reader:     r,
		entry:      entry,
		saveEvery:  l.cfg.SaveEvery,
		startedAt:  time.Now(),
		startIndex: start,
	}
	r.Observe(s)
	if err := r.Load(book, start); err != nil {
		return nil, err
	}

	l.logger.Info("opened book", "id", entry.ID, "title", book.Title, "position", start, "wpm", r.Rate())
	return s, nil
}

// ID identifies the session in reading history.
func (s *Session) ID() string { return s.id }

// Reader returns the playback engine.
func (s *Session) Reader() *reader.Reader { return s.reader }

// Entry returns the library entry as it was when the session opened.
func (s *Session) Entry() library.Entry { return s.entry }

// OnToken counts displayed words and saves every saveEvery of them.
func (s *Session) OnToken(text string, chapter, position int) {
	s.mu.Lock()
	s.wordsRead++
	s.sinceSave++
	due := s.saveEvery > 0 && s.sinceSave >= s.saveEvery
	if due {
		s.sinceSave = 0
	}
	s.mu.Unlock()

	if due {
		s.Save()
	}
}

// OnStateChange saves whenever playback stops.
func (s *Session) OnStateChange(state reader.State) {
	s.mu.Lock()
	switch state {
	case reader.StatePlaying:
		s.playingFrom = time.Now()
	case reader.StatePaused, reader.StateFinished:
		if !s.playingFrom.IsZero() {
			s.active += time.Since(s.playingFrom)
			s.playingFrom = time.Time{}
		}
	}
	closed := s.closed
	s.mu.Unlock()

	if !closed && (state == reader.StatePaused || state == reader.StateFinished) {
		s.Save()
	}
}

// Save writes the current position and rate. Failures are logged and
// returned; they never stop playback.
func (s *Session) Save() error {
	p := library.Progress{
		Index:     s.reader.Position(),
		WPM:       s.reader.Rate(),
		UpdatedAt: time.Now(),
	}
	s.mu.Lock()
	s.sinceSave = 0
	s.mu.Unlock()

	if err := s.store.SaveProgress(context.Background(), s.entry.ID, p); err != nil {
		s.logger.Warn("failed to save progress", "index", p.Index, "error", err)
		return err
	}
	s.logger.Debug("saved progress", "index", p.Index, "wpm", p.WPM)
	return nil
}

// Close stops playback, saves progress and records the session in the
// reading history. Calling it twice is harmless.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.reader.Pause()
	err := s.Save()

	end := s.reader.Position()
	s.mu.Lock()
	words := s.wordsRead
	active := s.active
	s.mu.Unlock()

	if words > 0 {
		rs := library.ReadingSession{
			ID:         s.id,
			BookID:     s.entry.ID,
			StartedAt:  s.startedAt,
			EndedAt:    time.Now(),
			StartIndex: s.startIndex,
			EndIndex:   end,
			WordsRead:  words,
			AverageWPM: averageWPM(words, active, s.reader.Rate()),
		}
		if rerr := s.store.RecordSession(context.Background(), rs); rerr != nil {
			s.logger.Warn("failed to record reading session", "error", rerr)
			if err == nil {
				err = rerr
			}
		}
	}

	s.reader.Unload()
	return err
}

// averageWPM falls back to the configured rate for stretches too short to
// measure.
func averageWPM(words int, active time.Duration, rate int) int {
	if active < time.Second {
		return rate
	}
	return int(float64(words) / active.Minutes())
}
