//go:build !gui

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/metcalfc/flick/internal/reader"
	"github.com/metcalfc/flick/internal/service"
)

var (
	erpStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))

	wordBeforeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	wordAfterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	controlsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	completeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))
)

type keyMap struct {
	Toggle      key.Binding
	Faster      key.Binding
	Slower      key.Binding
	PrevSent    key.Binding
	NextSent    key.Binding
	PrevChapter key.Binding
	NextChapter key.Binding
	PrevPage    key.Binding
	NextPage    key.Binding
	Restart     key.Binding
	TOC         key.Binding
	Select      key.Binding
	Back        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Toggle:      key.NewBinding(key.WithKeys(" "), key.WithHelp("SPACE", "pause/play")),
		Faster:      key.NewBinding(key.WithKeys("up", "+", "="), key.WithHelp("↑", "faster")),
		Slower:      key.NewBinding(key.WithKeys("down", "-"), key.WithHelp("↓", "slower")),
		PrevSent:    key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "sentence")),
		NextSent:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "sentence")),
		PrevChapter: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev chapter")),
		NextChapter: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next chapter")),
		PrevPage:    key.NewBinding(key.WithKeys("pgup"), key.WithHelp("PgUp", "page")),
		NextPage:    key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("PgDn", "page")),
		Restart:     key.NewBinding(key.WithKeys("r", "R"), key.WithHelp("R", "restart")),
		TOC:         key.NewBinding(key.WithKeys("t", "T"), key.WithHelp("T", "contents")),
		Select:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("ENTER", "open")),
		Back:        key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("ESC", "back")),
		Quit:        key.NewBinding(key.WithKeys("q", "Q", "ctrl+c"), key.WithHelp("Q", "quit")),
	}
}

const rateStep = 50

type view int

const (
	viewLibrary view = iota
	viewReader
	viewTOC
)

// readerMsg tells the model the engine displayed a token or changed state.
type readerMsg struct{}

// teaObserver turns engine callbacks into Bubble Tea messages. Callbacks can
// arrive from inside Update (Play, Seek), so they never block: bursts
// collapse into one pending wake-up and the view reads the rest from the
// engine.
type teaObserver struct {
	mu   sync.Mutex
	word string

	wake chan struct{}
	done chan struct{}
}

func newTeaObserver() *teaObserver {
	return &teaObserver{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (o *teaObserver) OnToken(text string, chapter, position int) {
	o.mu.Lock()
	o.word = text
	o.mu.Unlock()
	o.poke()
}

func (o *teaObserver) OnStateChange(reader.State) { o.poke() }

func (o *teaObserver) poke() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *teaObserver) lastWord() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.word
}

func (o *teaObserver) setWord(w string) {
	o.mu.Lock()
	o.word = w
	o.mu.Unlock()
}

func (o *teaObserver) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-o.wake:
			return readerMsg{}
		case <-o.done:
			return nil
		}
	}
}

func (o *teaObserver) stop() {
	select {
	case <-o.done:
	default:
		close(o.done)
	}
}

type bookItem struct{ service.Item }

func (i bookItem) Title() string { return i.Item.Title }

func (i bookItem) Description() string {
	parts := []string{}
	if i.Author != "" {
		parts = append(parts, i.Author)
	}
	parts = append(parts, formatPercent(i.Percent()))
	if !i.Available {
		parts = append(parts, "file missing")
	} else if i.Started() {
		parts = append(parts, "read "+formatLastRead(i.Progress.UpdatedAt))
	}
	return strings.Join(parts, " · ")
}

func (i bookItem) FilterValue() string { return i.Item.Title + " " + i.Author }

type tocItem struct{ reader.TOCEntry }

func (i tocItem) Title() string       { return strings.Repeat("  ", i.Level) + i.TOCEntry.Title }
func (i tocItem) Description() string { return i.Preview }
func (i tocItem) FilterValue() string { return i.TOCEntry.Title }

type model struct {
	ctx  context.Context
	lib  *service.Library
	opts readOptions
	keys keyMap

	view     view
	browsing bool
	books    list.Model
	toc      list.Model
	bar      progress.Model

	session *service.Session
	obs     *teaObserver
	sched   reader.Scheduler

	lastArrow time.Time
	notice    string
	quitting  bool
	width     int
	height    int
}

func newModel(ctx context.Context, lib *service.Library, opts readOptions) *model {
	books := list.New(nil, list.NewDefaultDelegate(), 80, 22)
	books.Title = "Library"
	books.SetShowHelp(false)

	toc := list.New(nil, list.NewDefaultDelegate(), 80, 22)
	toc.Title = "Contents"
	toc.SetShowHelp(false)
	toc.SetFilteringEnabled(false)

	return &model{
		ctx:    ctx,
		lib:    lib,
		opts:   opts,
		keys:   defaultKeyMap(),
		books:  books,
		toc:    toc,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:  80,
		height: 24,
	}
}

func (m *model) reader() *reader.Reader {
	if m.session == nil {
		return nil
	}
	return m.session.Reader()
}

func (m *model) refreshBooks() {
	items, err := m.lib.List(m.ctx)
	if err != nil {
		m.notice = err.Error()
		return
	}
	listItems := make([]list.Item, len(items))
	for i, it := range items {
		listItems[i] = bookItem{it}
	}
	m.books.SetItems(listItems)
}

// openBook starts a session for id and switches to the reader.
func (m *model) openBook(id string) error {
	m.closeSession()

	obs := newTeaObserver()
	s, err := m.lib.Open(m.ctx, id, service.OpenOptions{
		Fresh:     m.opts.Fresh,
		WPM:       m.opts.WPM,
		Scheduler: m.sched,
		Observers: []reader.Observer{obs},
	})
	if err != nil {
		return err
	}
	m.session = s
	m.obs = obs
	obs.setWord(s.Reader().CurrentWord())
	m.view = viewReader
	m.notice = ""

	if m.opts.ShowTOC {
		m.showTOC()
	}
	return nil
}

func (m *model) closeSession() {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		m.notice = "progress not saved: " + err.Error()
	}
	m.obs.stop()
	m.session = nil
	m.obs = nil
}

func (m *model) showTOC() {
	toc, err := m.lib.TOC(m.ctx, m.session.Entry().ID)
	if err != nil || len(toc) == 0 {
		m.notice = "no table of contents"
		return
	}
	m.reader().Pause()
	items := make([]list.Item, len(toc))
	for i, e := range toc {
		items[i] = tocItem{e}
	}
	m.toc.SetItems(items)
	m.view = viewTOC
}

func (m *model) Init() tea.Cmd {
	if m.obs != nil {
		return m.obs.wait()
	}
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.books.SetSize(msg.Width, max(msg.Height-1, 1))
		m.toc.SetSize(msg.Width, max(msg.Height-1, 1))
		m.bar.Width = max(msg.Width-4, 10)
		return m, nil

	case readerMsg:
		if m.obs == nil {
			return m, nil
		}
		return m, m.obs.wait()

	case tea.KeyMsg:
		switch m.view {
		case viewLibrary:
			return m.updateLibrary(msg)
		case viewTOC:
			return m.updateTOC(msg)
		default:
			return m.updateReader(msg)
		}
	}

	var cmd tea.Cmd
	switch m.view {
	case viewLibrary:
		m.books, cmd = m.books.Update(msg)
	case viewTOC:
		m.toc, cmd = m.toc.Update(msg)
	}
	return m, cmd
}

func (m *model) quit() (tea.Model, tea.Cmd) {
	m.closeSession()
	m.quitting = true
	return m, tea.Quit
}

func (m *model) updateLibrary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.books.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.books, cmd = m.books.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Select):
		item, ok := m.books.SelectedItem().(bookItem)
		if !ok {
			return m, nil
		}
		if !item.Available {
			m.notice = "file missing: " + item.Path
			return m, nil
		}
		if err := m.openBook(item.ID); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		return m, m.obs.wait()
	}

	var cmd tea.Cmd
	m.books, cmd = m.books.Update(msg)
	return m, cmd
}

func (m *model) updateTOC(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit) && msg.String() == "ctrl+c":
		return m.quit()
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.TOC):
		m.view = viewReader
		return m, nil
	case key.Matches(msg, m.keys.Select):
		if item, ok := m.toc.SelectedItem().(tocItem); ok {
			m.seek(item.WordIndex)
		}
		m.view = viewReader
		return m, nil
	}

	var cmd tea.Cmd
	m.toc, cmd = m.toc.Update(msg)
	return m, cmd
}

// seek moves the reader and previews the word playback resumes with.
func (m *model) seek(index int) {
	r := m.reader()
	r.Seek(index)
	if r.State() != reader.StatePlaying {
		m.obs.setWord(r.CurrentWord())
	}
}

// navigate runs a jump and refreshes the previewed word.
func (m *model) navigate(jump func() error) {
	r := m.reader()
	if err := jump(); err != nil {
		m.notice = err.Error()
		return
	}
	if r.State() != reader.StatePlaying {
		m.obs.setWord(r.CurrentWord())
	}
}

func (m *model) updateReader(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	r := m.reader()
	if r == nil {
		return m.quit()
	}
	m.notice = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Back):
		if !m.browsing {
			return m.quit()
		}
		m.closeSession()
		m.refreshBooks()
		m.view = viewLibrary

	case key.Matches(msg, m.keys.Toggle):
		r.Toggle()

	case key.Matches(msg, m.keys.Faster):
		r.SetRate(r.Rate() + rateStep)

	case key.Matches(msg, m.keys.Slower):
		r.SetRate(r.Rate() - rateStep)

	case key.Matches(msg, m.keys.PrevSent), key.Matches(msg, m.keys.NextSent):
		// The first press of a burst pauses so the jump can be read.
		now := time.Now()
		if now.Sub(m.lastArrow) > 500*time.Millisecond {
			r.Pause()
		}
		m.lastArrow = now
		if key.Matches(msg, m.keys.PrevSent) {
			m.navigate(r.JumpToPrevSentence)
		} else {
			m.navigate(r.JumpToNextSentence)
		}

	case key.Matches(msg, m.keys.PrevChapter):
		ch := r.CurrentChapter()
		if b := r.Book(); b != nil && ch >= 0 && r.Position() == b.Chapters[ch].Start {
			ch--
		}
		m.navigate(func() error { return r.JumpToChapter(max(ch, 0)) })

	case key.Matches(msg, m.keys.NextChapter):
		m.navigate(func() error { return r.JumpToChapter(r.CurrentChapter() + 1) })

	case key.Matches(msg, m.keys.PrevPage):
		m.navigate(func() error { return r.JumpToPage(r.Page() - 1) })

	case key.Matches(msg, m.keys.NextPage):
		m.navigate(func() error { return r.JumpToPage(r.Page() + 1) })

	case key.Matches(msg, m.keys.Restart):
		m.navigate(r.Restart)

	case key.Matches(msg, m.keys.TOC):
		m.showTOC()
	}
	return m, nil
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	switch m.view {
	case viewLibrary:
		return m.books.View() + "\n" + m.footer()
	case viewTOC:
		return m.toc.View() + "\n" + controlsStyle.Render("ENTER: jump  T/ESC: close")
	}

	r := m.reader()
	if r == nil || r.Book() == nil {
		return "No book loaded."
	}
	if r.Book().Total() == 0 {
		return "This book has no readable text.\n" + controlsStyle.Render("Q: quit")
	}

	word := m.obs.lastWord()
	state := r.State()

	badge := ""
	switch state {
	case reader.StatePaused, reader.StateReady:
		badge = pausedStyle.Render(" [PAUSED]")
	case reader.StateFinished:
		badge = completeStyle.Render(" [FINISHED]")
	}

	current, total := r.Progress()
	status := statusStyle.Render(
		fmt.Sprintf("%s | Word %d/%d | Page %d/%d | %d WPM%s",
			r.CurrentChapterTitle(),
			current,
			total,
			r.Page(),
			r.PageCount(),
			r.Rate(),
			badge,
		),
	)

	// Reserve 4 lines: status, progress bar, notice and controls
	avail := max(m.height-4, 1)
	vPad := avail / 2

	var sb strings.Builder
	sb.WriteString(status)
	sb.WriteString("\n")
	for range vPad {
		sb.WriteString("\n")
	}
	if state == reader.StateFinished && word == "" {
		sb.WriteString(completeStyle.Render("  Reading complete!"))
	} else {
		sb.WriteString(anchorORPText(formatWord(word), word, m.width))
	}
	for range avail - vPad {
		sb.WriteString("\n")
	}

	percent := 0.0
	if total > 0 {
		percent = float64(current) / float64(total)
	}
	sb.WriteString("  " + m.bar.ViewAs(percent))
	sb.WriteString("\n")
	sb.WriteString(m.footer())
	return sb.String()
}

func (m *model) footer() string {
	if m.notice != "" {
		return warnStyle.Render(m.notice)
	}
	if m.view == viewLibrary {
		return controlsStyle.Render("ENTER: read  /: filter  Q: quit")
	}
	back := ""
	if m.browsing {
		back = "  ESC: library"
	}
	return controlsStyle.Render("SPACE: pause/play  ↑/↓: speed  ←/→: sentence  [/]: chapter  T: contents  R: restart" + back + "  Q: quit")
}

// formatWord colors the word with its recognition point highlighted.
func formatWord(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return ""
	}
	orp := min(reader.GetORPPosition(word), len(runes)-1)

	before := string(runes[:orp])
	focus := string(runes[orp])
	after := string(runes[orp+1:])

	return wordBeforeStyle.Render(before) +
		erpStyle.Render(focus) +
		wordAfterStyle.Render(after)
}

// anchorORPText pads text so the recognition point sits at the screen
// center.
func anchorORPText(text string, word string, width int) string {
	anchor := width / 2
	orp := reader.GetORPPosition(word)
	pad := max(anchor-orp, 0)
	return strings.Repeat(" ", pad) + text
}

func runProgram(ctx context.Context, m *model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.closeSession()
	return err
}

func runReader(ctx context.Context, lib *service.Library, id string, opts readOptions) error {
	m := newModel(ctx, lib, opts)
	if err := m.openBook(id); err != nil {
		return err
	}
	return runProgram(ctx, m)
}

func runBrowser(ctx context.Context, lib *service.Library, opts readOptions) error {
	m := newModel(ctx, lib, opts)
	m.browsing = true
	m.refreshBooks()
	if len(m.books.Items()) == 0 {
		return fmt.Errorf("library is empty; add books with `flick library add <file>` or `flick library scan <dir>`")
	}
	return runProgram(ctx, m)
}
