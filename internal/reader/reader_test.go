package reader

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeScheduler records every requested delay and fires timers on demand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

// Step fires the oldest live timer and reports whether there was one.
func (s *fakeScheduler) Step() bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}

// Drain fires timers until none are left.
func (s *fakeScheduler) Drain(t *testing.T) {
	t.Helper()
	for i := 0; s.Step(); i++ {
		if i > 10000 {
			t.Fatal("scheduler did not drain")
		}
	}
}

// FireStopped runs callbacks of stopped timers, as if they raced a Stop.
func (s *fakeScheduler) FireStopped() {
	s.mu.Lock()
	var fns []func()
	for _, t := range s.timers {
		if t.stopped && !t.fired {
			t.fired = true
			fns = append(fns, t.f)
		}
	}
	s.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type recorder struct {
	mu        sync.Mutex
	words     []string
	positions []int
	chapters  []int
	states    []State
}

func (r *recorder) OnToken(text string, chapter, position int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.words = append(r.words, text)
	r.chapters = append(r.chapters, chapter)
	r.positions = append(r.positions, position)
}

func (r *recorder) OnStateChange(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func newTestReader(t *testing.T, book *Book, opts ...Option) (*Reader, *fakeScheduler, *recorder) {
	t.Helper()
	sched := &fakeScheduler{}
	rec := &recorder{}
	opts = append([]Option{WithScheduler(sched), WithObserver(rec)}, opts...)
	r := NewReader(300, opts...)
	if book != nil {
		if err := r.Load(book, 0); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	return r, sched, rec
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlayEmitsEveryTokenOnce(t *testing.T) {
	book := bookFromText("one two three four five")
	r, sched, rec := newTestReader(t, book)

	if err := r.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	sched.Drain(t)

	if !equalInts(rec.positions, []int{0, 1, 2, 3, 4}) {
		t.Errorf("positions = %v", rec.positions)
	}
	if got := rec.words[4]; got != "five" {
		t.Errorf("last word = %q, want five", got)
	}
	want := []State{StateReady, StatePlaying, StateFinished}
	if !equalStates(rec.states, want) {
		t.Errorf("states = %v, want %v", rec.states, want)
	}
	if r.State() != StateFinished || !r.AtEnd() {
		t.Errorf("State() = %v, AtEnd() = %v", r.State(), r.AtEnd())
	}
}

func TestTokenDisplayDurations(t *testing.T) {
	book := bookFromText("Hello, world. Next sentence!")
	r, sched, _ := newTestReader(t, book)

	if err := r.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	sched.Drain(t)

	want := []time.Duration{0, 300 * time.Millisecond, 400 * time.Millisecond, 200 * time.Millisecond}
	if len(sched.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sched.delays, want)
	}
	for i := range want {
		if sched.delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, sched.delays[i], want[i])
		}
	}
}

func TestTokenDuration(t *testing.T) {
	if got := TokenDuration(300, BaseWeight); got != 200*time.Millisecond {
		t.Errorf("TokenDuration(300, 1) = %v, want 200ms", got)
	}
	if got := TokenDurationMs(600, SentenceWeight); got != 200 {
		t.Errorf("TokenDurationMs(600, 2) = %v, want 200", got)
	}
}

func TestPauseKeepsNextToken(t *testing.T) {
	book := bookFromText("a b c d e")
	r, sched, rec := newTestReader(t, book)

	r.Play()
	sched.Step()
	sched.Step()
	r.Pause()

	if got := r.Position(); got != 2 {
		t.Fatalf("Position() after pause = %d, want 2", got)
	}
	if r.State() != StatePaused {
		t.Fatalf("State() = %v, want paused", r.State())
	}
	if sched.Step() {
		t.Fatal("timer still pending after pause")
	}

	r.Play()
	sched.Step()
	if !equalInts(rec.positions, []int{0, 1, 2}) {
		t.Errorf("positions = %v, want [0 1 2]", rec.positions)
	}
}

func TestStaleTimerIgnored(t *testing.T) {
	book := bookFromText("a b c")
	r, sched, rec := newTestReader(t, book)

	r.Play()
	r.Pause()
	sched.FireStopped()

	if len(rec.words) != 0 {
		t.Errorf("stale timer displayed %v", rec.words)
	}
	if r.Position() != 0 {
		t.Errorf("Position() = %d, want 0", r.Position())
	}
}

func TestSeek(t *testing.T) {
	book := bookFromText("a b c d e")
	r, sched, rec := newTestReader(t, book)

	t.Run("clamps", func(t *testing.T) {
		r.Seek(-5)
		if r.Position() != 0 {
			t.Errorf("Seek(-5) position = %d", r.Position())
		}
		r.Seek(99)
		if r.Position() != 5 {
			t.Errorf("Seek(99) position = %d", r.Position())
		}
		if r.State() != StateReady {
			t.Errorf("State() = %v, want ready", r.State())
		}
	})

	t.Run("while playing continues from target", func(t *testing.T) {
		r.Seek(0)
		r.Play()
		sched.Step()
		r.Seek(3)
		sched.Step()
		if got := rec.positions[len(rec.positions)-1]; got != 3 {
			t.Errorf("displayed %d after seek, want 3", got)
		}
		if r.State() != StatePlaying {
			t.Errorf("State() = %v, want playing", r.State())
		}
	})

	t.Run("to end while playing finishes", func(t *testing.T) {
		r.Seek(5)
		if r.State() != StateFinished {
			t.Errorf("State() = %v, want finished", r.State())
		}
		if sched.Step() {
			t.Error("timer pending after finish")
		}
	})

	t.Run("back from finished pauses", func(t *testing.T) {
		r.Seek(1)
		if r.State() != StatePaused {
			t.Errorf("State() = %v, want paused", r.State())
		}
	})
}

func TestIdleReader(t *testing.T) {
	r, _, _ := newTestReader(t, nil)

	if r.State() != StateIdle {
		t.Fatalf("State() = %v, want idle", r.State())
	}
	if err := r.Play(); !errors.Is(err, ErrNoBookLoaded) {
		t.Errorf("Play() = %v, want ErrNoBookLoaded", err)
	}
	if err := r.Seek(3); !errors.Is(err, ErrNoBookLoaded) {
		t.Errorf("Seek() = %v, want ErrNoBookLoaded", err)
	}
	if err := r.JumpToChapter(0); !errors.Is(err, ErrNoBookLoaded) {
		t.Errorf("JumpToChapter() = %v, want ErrNoBookLoaded", err)
	}
	if err := r.Load(nil, 0); !errors.Is(err, ErrNoBookLoaded) {
		t.Errorf("Load(nil) = %v, want ErrNoBookLoaded", err)
	}
	if r.CurrentWord() != "" || r.CurrentChapter() != -1 {
		t.Errorf("idle reader reports word %q chapter %d", r.CurrentWord(), r.CurrentChapter())
	}
}

func TestPlayAtEndFinishes(t *testing.T) {
	book := bookFromText("a b")
	r, sched, rec := newTestReader(t, book)
	r.Load(book, 2)

	r.Play()
	if r.State() != StateFinished {
		t.Errorf("State() = %v, want finished", r.State())
	}
	if sched.Step() || len(rec.words) != 0 {
		t.Error("finished reader displayed a token")
	}

	empty := NewBook(&Document{})
	r.Load(empty, 0)
	r.Play()
	if r.State() != StateFinished {
		t.Errorf("empty book State() = %v, want finished", r.State())
	}
}

func TestLoadClampsStart(t *testing.T) {
	book := bookFromText("a b c")
	r, _, _ := newTestReader(t, nil)

	r.Load(book, 10)
	if r.Position() != 3 {
		t.Errorf("Load(book, 10) position = %d, want 3", r.Position())
	}
	r.Load(book, -1)
	if r.Position() != 0 {
		t.Errorf("Load(book, -1) position = %d, want 0", r.Position())
	}
}

func TestSetRate(t *testing.T) {
	r, _, _ := newTestReader(t, nil)

	tests := []struct {
		in, want int
	}{
		{450, 450},
		{50, DefaultMinWPM},
		{5000, DefaultMaxWPM},
	}
	for _, tt := range tests {
		if got := r.SetRate(tt.in); got != tt.want {
			t.Errorf("SetRate(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}

	limited := NewReader(50, WithRateLimits(200, 400))
	if limited.Rate() != 200 {
		t.Errorf("Rate() = %d, want 200", limited.Rate())
	}
}

func TestSetRateAppliesToNextDisplay(t *testing.T) {
	book := bookFromText("a b c")
	r, sched, _ := newTestReader(t, book)

	r.Play()
	sched.Step()
	r.SetRate(600)
	sched.Step()

	last := sched.delays[len(sched.delays)-1]
	if last != 100*time.Millisecond {
		t.Errorf("delay after rate change = %v, want 100ms", last)
	}
}

func TestObserverChapter(t *testing.T) {
	book := bookWithCounts(10, 0, 5)
	r, sched, rec := newTestReader(t, book)

	r.Seek(12)
	r.Play()
	sched.Step()

	if rec.chapters[0] != 2 || rec.positions[0] != 12 {
		t.Errorf("got chapter %d position %d, want 2 and 12", rec.chapters[0], rec.positions[0])
	}
	if r.CurrentChapterTitle() != "Part 3" {
		t.Errorf("CurrentChapterTitle() = %q", r.CurrentChapterTitle())
	}
}

func TestChapterAndPageNavigation(t *testing.T) {
	book := bookWithCounts(4, 6)
	r, _, _ := newTestReader(t, book, WithWordsPerPage(3))

	if err := r.JumpToChapter(1); err != nil {
		t.Fatalf("JumpToChapter(1): %v", err)
	}
	if r.Position() != 4 || r.CurrentChapter() != 1 {
		t.Errorf("position %d chapter %d, want 4 and 1", r.Position(), r.CurrentChapter())
	}
	if err := r.JumpToChapter(5); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("JumpToChapter(5) = %v, want ErrInvalidPosition", err)
	}

	if r.PageCount() != 4 {
		t.Errorf("PageCount() = %d, want 4", r.PageCount())
	}
	r.JumpToPage(3)
	if r.Position() != 6 || r.Page() != 3 {
		t.Errorf("JumpToPage(3) position %d page %d", r.Position(), r.Page())
	}
	r.JumpToPage(99)
	if r.Position() != 9 {
		t.Errorf("JumpToPage(99) position = %d, want 9", r.Position())
	}
}

func TestSentenceNavigation(t *testing.T) {
	book := bookFromText("A b. C d. E f.")
	r, _, _ := newTestReader(t, book)

	steps := []struct {
		name string
		move func() error
		want int
	}{
		{"seek", func() error { return r.Seek(3) }, 3},
		{"prev", r.JumpToPrevSentence, 2},
		{"prev again", r.JumpToPrevSentence, 0},
		{"prev at start", r.JumpToPrevSentence, 0},
		{"next", r.JumpToNextSentence, 2},
		{"next again", r.JumpToNextSentence, 4},
		{"next at last sentence", r.JumpToNextSentence, 5},
		{"restart", r.Restart, 0},
	}
	for _, s := range steps {
		if err := s.move(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if got := r.Position(); got != s.want {
			t.Errorf("%s: position = %d, want %d", s.name, got, s.want)
		}
	}
}

func TestCurrentWordAndProgress(t *testing.T) {
	book := bookFromText("alpha beta gamma")
	r, _, _ := newTestReader(t, book)

	r.Seek(1)
	if r.CurrentWord() != "beta" {
		t.Errorf("CurrentWord() = %q, want beta", r.CurrentWord())
	}
	current, total := r.Progress()
	if current != 1 || total != 3 {
		t.Errorf("Progress() = %d/%d, want 1/3", current, total)
	}
	if r.GetDelay() != 200*time.Millisecond {
		t.Errorf("GetDelay() = %v, want 200ms", r.GetDelay())
	}
}

func TestToggle(t *testing.T) {
	book := bookFromText("a b c")
	r, _, _ := newTestReader(t, book)

	r.Toggle()
	if r.State() != StatePlaying {
		t.Errorf("State() = %v, want playing", r.State())
	}
	r.Toggle()
	if r.State() != StatePaused {
		t.Errorf("State() = %v, want paused", r.State())
	}
}

func TestUnload(t *testing.T) {
	book := bookFromText("a b c")
	r, sched, rec := newTestReader(t, book)

	r.Play()
	r.Unload()
	if sched.Step() {
		t.Error("timer pending after unload")
	}
	if r.State() != StateIdle || r.Book() != nil {
		t.Errorf("State() = %v, Book() = %v", r.State(), r.Book())
	}
	if rec.states[len(rec.states)-1] != StateIdle {
		t.Errorf("last state = %v, want idle", rec.states[len(rec.states)-1])
	}
}

func TestGetORPPosition(t *testing.T) {
	tests := []struct {
		name     string
		word     string
		expected int
	}{
		{"single char", "a", 0},
		{"two chars", "ab", 1},
		{"three chars", "abc", 1},
		{"four chars", "abcd", 1},
		{"five chars", "abcde", 1},
		{"six chars", "abcdef", 2},
		{"nine chars", "abcdefghi", 3},
		{"twelve chars", "abcdefghijkl", 4},
		{"empty string", "", 0},
		{"multibyte", "éèêëēė", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetORPPosition(tt.word)
			if result != tt.expected {
				t.Errorf("GetORPPosition(%q) = %v, want %v", tt.word, result, tt.expected)
			}
		})
	}
}
