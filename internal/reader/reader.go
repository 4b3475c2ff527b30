// Package reader provides core RSVP (Rapid Serial Visual Presentation) speed reading logic.
package reader

import (
	"sync"
	"time"
	"unicode/utf8"
)

// Reading rate limits used when no others are configured.
const (
	DefaultMinWPM = 100
	DefaultMaxWPM = 1000
)

// State is the playback state of a Reader.
type State int

const (
	StateIdle State = iota
	StateReady
	StatePlaying
	StatePaused
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// Observer receives playback events. Callbacks run on the timer goroutine,
// outside the Reader's lock, one at a time.
type Observer interface {
	// OnToken is called once per displayed token with its absolute index.
	OnToken(text string, chapter, position int)
	OnStateChange(state State)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Token func(text string, chapter, position int)
	State func(state State)
}

func (o ObserverFuncs) OnToken(text string, chapter, position int) {
	if o.Token != nil {
		o.Token(text, chapter, position)
	}
}

func (o ObserverFuncs) OnStateChange(state State) {
	if o.State != nil {
		o.State(state)
	}
}

// Option configures a Reader.
type Option func(*Reader)

// WithScheduler replaces the wall clock, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(r *Reader) { r.sched = s }
}

// WithRateLimits sets the accepted words-per-minute range.
func WithRateLimits(min, max int) Option {
	return func(r *Reader) {
		if min > 0 && max >= min {
			r.minWPM, r.maxWPM = min, max
		}
	}
}

// WithWordsPerPage sets the page size used by page navigation.
func WithWordsPerPage(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.wordsPerPage = n
		}
	}
}

// WithObserver registers an observer at construction.
func WithObserver(o Observer) Option {
	return func(r *Reader) { r.observers = append(r.observers, o) }
}

// Reader holds the state for an RSVP speed reading session: the token
// sequence of one book, the position, the rate, and a single pending timer.
//
// Position is the index of the next token to display. Pausing keeps it
// exactly; resuming displays that token first.
type Reader struct {
	mu sync.Mutex

	book           *Book
	sentenceStarts []int
	position       int
	state          State

	wpm          int
	minWPM       int
	maxWPM       int
	wordsPerPage int

	sched     Scheduler
	timer     Timer
	gen       uint64
	observers []Observer
}

// NewReader creates an idle Reader at the given rate.
func NewReader(wpm int, opts ...Option) *Reader {
	r := &Reader{
		minWPM:       DefaultMinWPM,
		maxWPM:       DefaultMaxWPM,
		wordsPerPage: DefaultWordsPerPage,
		sched:        WallClock,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wpm = clamp(wpm, r.minWPM, r.maxWPM)
	return r
}

// Observe registers an observer.
func (r *Reader) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Load replaces the current book and positions the reader at start, clamped
// into [0, total]. Any running playback stops. The reader ends up Ready.
func (r *Reader) Load(book *Book, start int) error {
	if book == nil {
		return ErrNoBookLoaded
	}
	r.mu.Lock()
	r.stopLocked()
	r.book = book
	r.sentenceStarts = book.SentenceStarts()
	r.position = clamp(start, 0, book.Total())
	r.state = StateReady
	obs := r.observersLocked()
	r.mu.Unlock()

	notifyState(obs, StateReady)
	return nil
}

// Unload drops the current book and returns to Idle.
func (r *Reader) Unload() {
	r.mu.Lock()
	r.stopLocked()
	r.book = nil
	r.sentenceStarts = nil
	r.position = 0
	changed := r.state != StateIdle
	r.state = StateIdle
	obs := r.observersLocked()
	r.mu.Unlock()

	if changed {
		notifyState(obs, StateIdle)
	}
}

// Play starts or resumes playback. It is a no-op while playing or finished.
func (r *Reader) Play() error {
	r.mu.Lock()
	switch r.state {
	case StateIdle:
		r.mu.Unlock()
		return ErrNoBookLoaded
	case StatePlaying, StateFinished:
		r.mu.Unlock()
		return nil
	}

	next := StatePlaying
	if r.position >= r.book.Total() {
		next = StateFinished
	}
	r.stopLocked()
	r.state = next
	gen := r.gen
	obs := r.observersLocked()
	r.mu.Unlock()

	notifyState(obs, next)
	if next == StatePlaying {
		r.scheduleIfCurrent(gen, 0)
	}
	return nil
}

// Pause halts playback. It is a no-op unless playing.
func (r *Reader) Pause() {
	r.mu.Lock()
	if r.state != StatePlaying {
		r.mu.Unlock()
		return
	}
	r.stopLocked()
	r.state = StatePaused
	obs := r.observersLocked()
	r.mu.Unlock()

	notifyState(obs, StatePaused)
}

// Toggle pauses while playing and plays otherwise.
func (r *Reader) Toggle() error {
	if r.State() == StatePlaying {
		r.Pause()
		return nil
	}
	return r.Play()
}

// Seek moves to index, clamped into [0, total]. Playback keeps going from
// the new position; stopped readers stay stopped.
func (r *Reader) Seek(index int) error {
	r.mu.Lock()
	if r.state == StateIdle {
		r.mu.Unlock()
		return ErrNoBookLoaded
	}
	total := r.book.Total()
	r.position = clamp(index, 0, total)

	next := r.state
	switch r.state {
	case StatePlaying:
		r.stopLocked()
		if r.position >= total {
			next = StateFinished
		} else {
			r.scheduleLocked(r.gen, 0)
		}
	case StateFinished:
		if r.position < total {
			next = StatePaused
		}
	}
	changed := next != r.state
	r.state = next
	obs := r.observersLocked()
	r.mu.Unlock()

	if changed {
		notifyState(obs, next)
	}
	return nil
}

// SetRate changes the words-per-minute rate, clamped to the configured
// range, and returns the applied value. It takes effect at the next display.
func (r *Reader) SetRate(wpm int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wpm = clamp(wpm, r.minWPM, r.maxWPM)
	return r.wpm
}

// Rate returns the current words-per-minute rate.
func (r *Reader) Rate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wpm
}

// RateLimits returns the accepted words-per-minute range.
func (r *Reader) RateLimits() (min, max int) {
	return r.minWPM, r.maxWPM
}

// State returns the current playback state.
func (r *Reader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Position returns the absolute index of the next token to display.
func (r *Reader) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// Book returns the loaded book, or nil when idle.
func (r *Reader) Book() *Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book
}

// GetDelay returns the base display duration of a word at the current rate.
func (r *Reader) GetDelay() time.Duration {
	return TokenDuration(r.Rate(), BaseWeight)
}

// CurrentWord returns the word at the current position.
func (r *Reader) CurrentWord() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.book != nil && r.position >= 0 && r.position < len(r.book.Tokens) {
		return r.book.Tokens[r.position].Text
	}
	return ""
}

// Progress returns the current position and total token count.
func (r *Reader) Progress() (current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position, r.book.Total()
}

// AtEnd reports whether every token has been displayed.
func (r *Reader) AtEnd() bool {
	current, total := r.Progress()
	return current >= total
}

// CurrentChapter returns the index of the chapter containing the position.
func (r *Reader) CurrentChapter() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book.ChapterAt(r.position)
}

// CurrentChapterTitle returns the title of the current chapter.
func (r *Reader) CurrentChapterTitle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := r.book.ChapterAt(r.position); n >= 0 {
		return r.book.Chapters[n].Title
	}
	return ""
}

// JumpToChapter seeks to the first token of chapter n.
func (r *Reader) JumpToChapter(n int) error {
	book := r.Book()
	if book == nil {
		return ErrNoBookLoaded
	}
	start, err := book.ChapterStart(n)
	if err != nil {
		return err
	}
	return r.Seek(start)
}

// Page returns the 1-based page containing the position.
func (r *Reader) Page() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return PageAt(r.position, r.book.Total(), r.wordsPerPage)
}

// PageCount returns the number of pages in the loaded book.
func (r *Reader) PageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return PageCount(r.book.Total(), r.wordsPerPage)
}

// JumpToPage seeks to the first token of page p, clamped to the valid pages.
func (r *Reader) JumpToPage(p int) error {
	r.mu.Lock()
	if r.book == nil {
		r.mu.Unlock()
		return ErrNoBookLoaded
	}
	p = clamp(p, 1, PageCount(r.book.Total(), r.wordsPerPage))
	index := (p - 1) * r.wordsPerPage
	r.mu.Unlock()
	return r.Seek(index)
}

// JumpToPrevSentence moves to the start of the previous sentence.
func (r *Reader) JumpToPrevSentence() error {
	r.mu.Lock()
	starts, current := r.sentenceStarts, r.position
	r.mu.Unlock()

	for i := len(starts) - 1; i >= 0; i-- {
		if starts[i] < current {
			return r.Seek(starts[i])
		}
	}
	return r.Seek(0)
}

// JumpToNextSentence moves to the start of the next sentence.
func (r *Reader) JumpToNextSentence() error {
	r.mu.Lock()
	starts, current := r.sentenceStarts, r.position
	total := r.book.Total()
	r.mu.Unlock()

	for _, s := range starts {
		if s > current {
			return r.Seek(s)
		}
	}
	if total > 0 {
		return r.Seek(total - 1)
	}
	return r.Seek(0)
}

// Restart seeks back to the first token.
func (r *Reader) Restart() error {
	return r.Seek(0)
}

// advance displays the token at the current position and arms the timer for
// the next one. Stale timers from before a pause, seek or load are ignored.
func (r *Reader) advance(gen uint64) {
	r.mu.Lock()
	if r.gen != gen || r.state != StatePlaying {
		r.mu.Unlock()
		return
	}
	r.timer = nil

	total := r.book.Total()
	if r.position >= total {
		r.state = StateFinished
		r.gen++
		obs := r.observersLocked()
		r.mu.Unlock()
		notifyState(obs, StateFinished)
		return
	}

	index := r.position
	tok := r.book.Tokens[index]
	chapter := r.book.ChapterAt(index)
	r.position++
	finished := r.position >= total
	if finished {
		r.state = StateFinished
		r.gen++
	}
	obs := r.observersLocked()
	r.mu.Unlock()

	for _, o := range obs {
		o.OnToken(tok.Text, chapter, index)
	}
	if finished {
		notifyState(obs, StateFinished)
		return
	}

	r.mu.Lock()
	if r.gen == gen && r.state == StatePlaying {
		r.scheduleLocked(gen, TokenDuration(r.wpm, tok.Weight))
	}
	r.mu.Unlock()
}

func (r *Reader) scheduleIfCurrent(gen uint64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen == gen && r.state == StatePlaying && r.timer == nil {
		r.scheduleLocked(gen, d)
	}
}

func (r *Reader) scheduleLocked(gen uint64, d time.Duration) {
	r.timer = r.sched.AfterFunc(d, func() { r.advance(gen) })
}

// stopLocked cancels the pending timer and invalidates any callback that
// already fired but has not taken the lock yet.
func (r *Reader) stopLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reader) observersLocked() []Observer {
	return append([]Observer(nil), r.observers...)
}

func notifyState(obs []Observer, s State) {
	for _, o := range obs {
		o.OnStateChange(s)
	}
}

// GetORPPosition returns the Optimal Recognition Point index for a word.
// This is the character (rune) position where the eye should focus for fastest recognition.
func GetORPPosition(word string) int {
	length := utf8.RuneCountInString(word)
	if length <= 1 {
		return 0
	} else if length <= 5 {
		return 1
	}
	return length / 3
}
