//go:build gui

package main

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/metcalfc/flick/internal/reader"
	"github.com/metcalfc/flick/internal/service"
)

const rateStep = 50

type gui struct {
	ctx  context.Context
	lib  *service.Library
	opts readOptions

	app fyne.App
	w   fyne.Window

	session *service.Session
	toc     []reader.TOCEntry
	items   []service.Item

	mu       sync.Mutex
	word     string
	fontSize float32

	lastArrow   time.Time
	statusLabel *widget.Label
	bar         *widget.ProgressBar
	wordBox     *fyne.Container
	tocPanel    *container.Split
	done        chan struct{}
	closeOnce   sync.Once
}

// guiObserver redraws the reading view on the UI goroutine.
type guiObserver struct{ g *gui }

func (o guiObserver) OnToken(text string, chapter, position int) {
	o.g.setWord(text)
	fyne.Do(o.g.updateDisplay)
}

func (o guiObserver) OnStateChange(reader.State) {
	fyne.Do(o.g.updateDisplay)
}

func newGUI(ctx context.Context, lib *service.Library, opts readOptions) *gui {
	a := app.New()
	g := &gui{
		ctx:      ctx,
		lib:      lib,
		opts:     opts,
		app:      a,
		w:        a.NewWindow("flick"),
		fontSize: 72,
		done:     make(chan struct{}),
	}
	g.w.Resize(fyne.NewSize(800, 600))
	g.w.SetOnClosed(g.shutdown)
	g.w.Canvas().SetOnTypedKey(g.onKey)
	g.w.Canvas().SetOnTypedRune(g.onRune)
	return g
}

func (g *gui) setWord(w string) {
	g.mu.Lock()
	g.word = w
	g.mu.Unlock()
}

func (g *gui) currentWord() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.word
}

func (g *gui) reader() *reader.Reader {
	if g.session == nil {
		return nil
	}
	return g.session.Reader()
}

func (g *gui) shutdown() {
	g.closeSession()
	g.closeOnce.Do(func() { close(g.done) })
}

func (g *gui) closeSession() {
	if g.session == nil {
		return
	}
	g.session.Close()
	g.session = nil
}

func (g *gui) showLibrary() error {
	items, err := g.lib.List(g.ctx)
	if err != nil {
		return err
	}
	g.items = items

	list := widget.NewList(
		func() int { return len(g.items) },
		func() fyne.CanvasObject {
			return container.NewVBox(
				widget.NewLabel("Title"),
				widget.NewLabel("Details"),
			)
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			it := g.items[id]
			vbox := obj.(*fyne.Container)
			titleLabel := vbox.Objects[0].(*widget.Label)
			detailLabel := vbox.Objects[1].(*widget.Label)

			titleLabel.TextStyle.Bold = true
			titleLabel.SetText(it.Title)
			details := []string{}
			if it.Author != "" {
				details = append(details, it.Author)
			}
			details = append(details, formatPercent(it.Percent()))
			if !it.Available {
				details = append(details, "file missing")
			} else {
				details = append(details, "last read "+formatLastRead(it.Progress.UpdatedAt))
			}
			detailLabel.SetText(strings.Join(details, " · "))
		},
	)
	status := widget.NewLabel("Select a book to start reading")
	list.OnSelected = func(id widget.ListItemID) {
		list.UnselectAll()
		if id >= len(g.items) {
			return
		}
		it := g.items[id]
		if !it.Available {
			status.SetText("File missing: " + it.Path)
			return
		}
		if err := g.open(it.ID); err != nil {
			status.SetText(err.Error())
		}
	}

	g.w.SetTitle("flick - Library")
	g.w.SetContent(container.NewBorder(widget.NewLabel("Library"), status, nil, nil, list))
	return nil
}

// open starts a session for id and shows the reading view.
func (g *gui) open(id string) error {
	g.closeSession()

	s, err := g.lib.Open(g.ctx, id, service.OpenOptions{
		Fresh:     g.opts.Fresh,
		WPM:       g.opts.WPM,
		Observers: []reader.Observer{guiObserver{g}},
	})
	if err != nil {
		return err
	}
	g.session = s
	g.setWord(s.Reader().CurrentWord())

	toc, err := g.lib.TOC(g.ctx, s.Entry().ID)
	if err != nil {
		toc = nil
	}
	g.toc = toc

	g.w.SetTitle("flick - " + s.Reader().Book().Title)
	g.w.SetContent(g.readingView())
	if g.opts.ShowTOC && g.tocPanel != nil {
		g.tocPanel.Leading.Show()
		g.tocPanel.Refresh()
	}
	g.updateDisplay()
	return nil
}

func (g *gui) readingView() fyne.CanvasObject {
	g.statusLabel = widget.NewLabel("")
	g.statusLabel.Alignment = fyne.TextAlignCenter
	g.bar = widget.NewProgressBar()
	g.wordBox = container.NewStack()
	g.tocPanel = nil

	tocHint := ""
	if len(g.toc) > 0 {
		tocHint = "  T: contents"
	}
	controls := widget.NewLabel("SPACE: pause  ↑/↓: speed  +/-: font  ←/→: sentence  [/]: chapter  R: restart" + tocHint + "  F: fullscreen  ESC: library  Q: quit")
	controls.Alignment = fyne.TextAlignCenter

	readingContent := container.NewBorder(
		g.statusLabel,
		container.NewVBox(g.bar, controls),
		nil, nil,
		g.wordBox,
	)
	if len(g.toc) == 0 {
		return readingContent
	}

	tocList := widget.NewList(
		func() int { return len(g.toc) },
		func() fyne.CanvasObject {
			return container.NewVBox(
				widget.NewLabel("Title"),
				widget.NewLabel("Preview"),
			)
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			entry := g.toc[id]
			vbox := obj.(*fyne.Container)
			titleLabel := vbox.Objects[0].(*widget.Label)
			previewLabel := vbox.Objects[1].(*widget.Label)

			indent := strings.Repeat("  ", entry.Level)
			titleLabel.TextStyle.Bold = true
			titleLabel.SetText(indent + entry.Title)

			preview := []rune(entry.Preview)
			if len(preview) > 50 {
				preview = append(preview[:50], []rune("...")...)
			}
			previewLabel.SetText(indent + string(preview))
		},
	)
	tocList.OnSelected = func(id widget.ListItemID) {
		tocList.UnselectAll()
		if id < len(g.toc) {
			g.navigate(func(r *reader.Reader) error { return r.Seek(g.toc[id].WordIndex) })
			g.tocPanel.Leading.Hide()
			g.tocPanel.Refresh()
		}
	}

	tocContainer := container.NewBorder(
		widget.NewLabel("Table of Contents"),
		widget.NewLabel("Click to jump • T to close"),
		nil, nil,
		tocList,
	)
	g.tocPanel = container.NewHSplit(tocContainer, readingContent)
	g.tocPanel.Offset = 0.33
	tocContainer.Hide()
	return g.tocPanel
}

func (g *gui) updateDisplay() {
	r := g.reader()
	if r == nil || r.Book() == nil || g.wordBox == nil {
		return
	}

	canvasWidth := g.w.Canvas().Size().Width
	if canvasWidth <= 0 {
		canvasWidth = 800
	}
	g.wordBox.Objects = []fyne.CanvasObject{createWordDisplay(g.currentWord(), g.fontSize, canvasWidth)}
	g.wordBox.Refresh()

	badge := ""
	switch r.State() {
	case reader.StatePaused, reader.StateReady:
		badge = " [PAUSED]"
	case reader.StateFinished:
		badge = " [FINISHED]"
	}
	current, total := r.Progress()
	g.statusLabel.SetText(fmt.Sprintf("%s | Word %d/%d | Page %d/%d | %d WPM | Font: %.0f%s",
		r.CurrentChapterTitle(), current, total, r.Page(), r.PageCount(), r.Rate(), g.fontSize, badge))
	if total > 0 {
		g.bar.SetValue(float64(current) / float64(total))
	}
}

// navigate runs a jump and previews the word playback resumes with.
func (g *gui) navigate(jump func(*reader.Reader) error) {
	r := g.reader()
	if r == nil {
		return
	}
	if err := jump(r); err != nil {
		return
	}
	if r.State() != reader.StatePlaying {
		g.setWord(r.CurrentWord())
	}
	g.updateDisplay()
}

func (g *gui) onKey(key *fyne.KeyEvent) {
	r := g.reader()
	if r == nil {
		if key.Name == fyne.KeyEscape || key.Name == fyne.KeyQ {
			g.w.Close()
		}
		return
	}

	switch key.Name {
	case fyne.KeySpace:
		r.Toggle()

	case fyne.KeyUp:
		r.SetRate(r.Rate() + rateStep)
		g.updateDisplay()

	case fyne.KeyDown:
		r.SetRate(r.Rate() - rateStep)
		g.updateDisplay()

	case fyne.KeyLeft, fyne.KeyRight:
		now := time.Now()
		if now.Sub(g.lastArrow) > 500*time.Millisecond {
			r.Pause()
		}
		g.lastArrow = now
		if key.Name == fyne.KeyLeft {
			g.navigate((*reader.Reader).JumpToPrevSentence)
		} else {
			g.navigate((*reader.Reader).JumpToNextSentence)
		}

	case fyne.KeyPageUp:
		g.navigate(func(r *reader.Reader) error { return r.JumpToPage(r.Page() - 1) })

	case fyne.KeyPageDown:
		g.navigate(func(r *reader.Reader) error { return r.JumpToPage(r.Page() + 1) })

	case fyne.KeyF:
		g.w.SetFullScreen(!g.w.FullScreen())

	case fyne.KeyEscape:
		g.closeSession()
		if err := g.showLibrary(); err != nil {
			g.w.Close()
		}

	case fyne.KeyQ:
		g.w.Close()
	}
}

func (g *gui) onRune(ch rune) {
	r := g.reader()
	if r == nil {
		return
	}

	switch ch {
	case 't', 'T':
		if g.tocPanel == nil {
			return
		}
		if g.tocPanel.Leading.Visible() {
			g.tocPanel.Leading.Hide()
		} else {
			r.Pause()
			g.tocPanel.Leading.Show()
		}
		g.tocPanel.Refresh()

	case 'r', 'R':
		g.navigate((*reader.Reader).Restart)

	case '[':
		g.navigate(func(r *reader.Reader) error {
			n := r.CurrentChapter()
			if b := r.Book(); n > 0 && r.Position() == b.Chapters[n].Start {
				n--
			}
			return r.JumpToChapter(max(n, 0))
		})

	case ']':
		g.navigate(func(r *reader.Reader) error { return r.JumpToChapter(r.CurrentChapter() + 1) })

	case '+', '=':
		if g.fontSize < 200 {
			g.fontSize += 5
			g.updateDisplay()
		}

	case '-':
		if g.fontSize > 20 {
			g.fontSize -= 5
			g.updateDisplay()
		}
	}
}

// watchResize pauses and redraws when the window width changes, since the
// word is positioned in absolute coordinates.
func (g *gui) watchResize() {
	lastWidth := float32(800)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-g.ctx.Done():
			fyne.Do(func() { g.w.Close() })
			return
		case <-ticker.C:
			fyne.Do(func() {
				currentWidth := g.w.Canvas().Size().Width
				if currentWidth > 0 && currentWidth != lastWidth {
					lastWidth = currentWidth
					if r := g.reader(); r != nil {
						r.Pause()
					}
					g.updateDisplay()
				}
			})
		}
	}
}

func (g *gui) run() {
	go g.watchResize()
	g.w.ShowAndRun()
	g.shutdown()
}

func createWordDisplay(word string, fontSize float32, windowWidth float32) *fyne.Container {
	runes := []rune(word)
	if len(runes) == 0 {
		return container.NewStack()
	}
	orp := min(max(reader.GetORPPosition(word), 0), len(runes)-1)

	before := string(runes[:orp])
	focus := string(runes[orp])
	after := string(runes[orp+1:])

	beforeText := canvas.NewText(before, color.White)
	beforeText.TextSize = fontSize
	beforeText.TextStyle.Bold = true

	focusText := canvas.NewText(focus, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	focusText.TextSize = fontSize
	focusText.TextStyle.Bold = true

	afterText := canvas.NewText(after, color.White)
	afterText.TextSize = fontSize
	afterText.TextStyle.Bold = true

	// Horizontal: anchor ORP at center
	centerX := windowWidth / 2
	beforeX := max(centerX-beforeText.MinSize().Width, 0)
	focusX := centerX
	afterX := centerX + focusText.MinSize().Width

	c := &fyne.Container{
		Layout:  &centerVerticalLayout{},
		Objects: []fyne.CanvasObject{beforeText, focusText, afterText},
	}
	beforeText.Move(fyne.NewPos(beforeX, 0))
	focusText.Move(fyne.NewPos(focusX, 0))
	afterText.Move(fyne.NewPos(afterX, 0))
	return c
}

// centerVerticalLayout centers children vertically and keeps their X.
type centerVerticalLayout struct{}

func (l *centerVerticalLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	var maxH float32
	for _, o := range objects {
		maxH = max(maxH, o.MinSize().Height)
	}
	return fyne.NewSize(0, maxH)
}

func (l *centerVerticalLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	var maxH float32
	for _, o := range objects {
		maxH = max(maxH, o.MinSize().Height)
	}
	y := max((size.Height-maxH)/2, 0)
	for _, o := range objects {
		o.Move(fyne.NewPos(o.Position().X, y))
		o.Resize(o.MinSize())
	}
}

func runReader(ctx context.Context, lib *service.Library, id string, opts readOptions) error {
	g := newGUI(ctx, lib, opts)
	if err := g.open(id); err != nil {
		return err
	}
	g.run()
	return nil
}

func runBrowser(ctx context.Context, lib *service.Library, opts readOptions) error {
	g := newGUI(ctx, lib, opts)
	if err := g.showLibrary(); err != nil {
		return err
	}
	g.run()
	return nil
}
