package reader

import (
	"errors"
	"testing"

	"github.com/metcalfc/flick/internal/testsupport"
)

func TestEPUBExtract(t *testing.T) {
	path := testsupport.WriteEPUB(t, t.TempDir(), "book.epub", testsupport.EPUB{
		Title:  "A Study",
		Author: "A. Writer",
		Chapters: []testsupport.Chapter{
			{Title: "Opening", Body: testsupport.Paragraphs("It begins here.")},
			{Title: "Middle", Body: testsupport.Paragraphs("Then, things happen.")},
			{Title: "Ending", Body: testsupport.Paragraphs("It ends.")},
		},
	})

	doc, err := (&EPUBFormat{}).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Title != "A Study" || doc.Author != "A. Writer" {
		t.Errorf("metadata = %q by %q", doc.Title, doc.Author)
	}

	wantLabels := []string{"Opening", "Middle", "Ending"}
	if len(doc.Sections) != len(wantLabels) {
		t.Fatalf("got %d sections, want %d", len(doc.Sections), len(wantLabels))
	}
	for i, s := range doc.Sections {
		if s.Label != wantLabels[i] {
			t.Errorf("section %d label = %q, want %q", i, s.Label, wantLabels[i])
		}
	}
}

func TestOpenBook(t *testing.T) {
	path := testsupport.WriteEPUB(t, t.TempDir(), "counts.epub", testsupport.EPUB{
		Title: "Counts",
		Chapters: []testsupport.Chapter{
			{Title: "One", Body: testsupport.Words("a", 10)},
			{Title: "Two", Body: ""},
			{Title: "Three", Body: testsupport.Words("c", 5)},
		},
	})

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Total() != 15 {
		t.Fatalf("Total() = %d, want 15", b.Total())
	}
	if b.Path != path {
		t.Errorf("Path = %q, want %q", b.Path, path)
	}

	wantStarts := []int{0, 10, 10}
	wantCounts := []int{10, 0, 5}
	for i, ch := range b.Chapters {
		if ch.Start != wantStarts[i] || ch.Count != wantCounts[i] {
			t.Errorf("chapter %d = [%d,+%d), want [%d,+%d)", i, ch.Start, ch.Count, wantStarts[i], wantCounts[i])
		}
	}
	if b.Tokens[10].Text != "c0" {
		t.Errorf("Tokens[10] = %q, want c0", b.Tokens[10].Text)
	}
	if got := b.ChapterAt(12); got != 2 {
		t.Errorf("ChapterAt(12) = %d, want 2", got)
	}
}

func TestOpenBookTitleFallback(t *testing.T) {
	path := testsupport.WriteEPUB(t, t.TempDir(), "untitled.epub", testsupport.EPUB{
		Chapters: []testsupport.Chapter{{Title: "Only", Body: testsupport.Paragraphs("words")}},
	})

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Title != "untitled" {
		t.Errorf("Title = %q, want untitled", b.Title)
	}
}

func TestEPUBLabelFallback(t *testing.T) {
	chapters := []testsupport.Chapter{
		{Title: "Named", Body: testsupport.Paragraphs("one")},
		{Title: "", Body: testsupport.Paragraphs("two")},
		{Title: "Also named", Body: testsupport.Paragraphs("three")},
	}

	t.Run("missing toc entry", func(t *testing.T) {
		path := testsupport.WriteEPUB(t, t.TempDir(), "partial.epub", testsupport.EPUB{
			Title:    "Partial",
			Chapters: chapters,
		})
		doc, err := Extract(path)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		want := []string{"Named", "Chapter 2", "Also named"}
		for i, s := range doc.Sections {
			if s.Label != want[i] {
				t.Errorf("section %d label = %q, want %q", i, s.Label, want[i])
			}
		}
	})

	t.Run("no toc at all", func(t *testing.T) {
		path := testsupport.WriteEPUB(t, t.TempDir(), "bare.epub", testsupport.EPUB{
			Title:    "Bare",
			Chapters: chapters,
			NoNCX:    true,
		})
		doc, err := Extract(path)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		for i, s := range doc.Sections {
			want := []string{"Chapter 1", "Chapter 2", "Chapter 3"}[i]
			if s.Label != want {
				t.Errorf("section %d label = %q, want %q", i, s.Label, want)
			}
		}
	})

	t.Run("navigation document", func(t *testing.T) {
		path := testsupport.WriteEPUB(t, t.TempDir(), "nav.epub", testsupport.EPUB{
			Title:    "Nav",
			Chapters: chapters,
			Nav:      true,
		})
		doc, err := Extract(path)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if doc.Sections[0].Label != "Named" || doc.Sections[2].Label != "Also named" {
			t.Errorf("labels = %q, %q", doc.Sections[0].Label, doc.Sections[2].Label)
		}
	})
}

func TestEPUBUnreadable(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"not a zip", testsupport.WriteBytes(t, dir, "junk.epub", []byte("this is not a zip archive"))},
		{"missing container", testsupport.WriteZip(t, dir, "nocontainer.epub",
			testsupport.File("mimetype", "application/epub+zip"),
			testsupport.File("OEBPS/ch1.xhtml", "<p>hello</p>"))},
		{"container points nowhere", testsupport.WriteZip(t, dir, "dangling.epub",
			testsupport.File("META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/missing.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`))},
		{"missing file", dir + "/absent.epub"},
		{"unsupported extension", testsupport.WriteBytes(t, dir, "notes.txt", []byte("plain text"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path)
			if !errors.Is(err, ErrUnreadableBook) {
				t.Errorf("Open() error = %v, want ErrUnreadableBook", err)
			}
		})
	}
}
