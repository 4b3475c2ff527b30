package reader

import (
	"strings"
	"testing"

	"github.com/metcalfc/flick/internal/testsupport"
)

func TestEPUBTOC(t *testing.T) {
	for _, nav := range []bool{false, true} {
		name := "ncx"
		if nav {
			name = "nav"
		}
		t.Run(name, func(t *testing.T) {
			path := testsupport.WriteEPUB(t, t.TempDir(), "toc.epub", testsupport.EPUB{
				Title: "TOC",
				Nav:   nav,
				Chapters: []testsupport.Chapter{
					{Title: "First", Body: testsupport.Words("f", 12)},
					{Title: "Second", Body: testsupport.Words("s", 3)},
				},
			})

			toc, err := tocOf(t, path)
			if err != nil {
				t.Fatalf("TOC extraction failed: %v", err)
			}
			if len(toc) != 2 {
				t.Fatalf("got %d TOC entries, want 2", len(toc))
			}

			if toc[0].Title != "First" || toc[0].WordIndex != 0 || toc[0].Level != 0 {
				t.Errorf("toc[0] = %+v", toc[0])
			}
			if toc[1].Title != "Second" || toc[1].WordIndex != 12 {
				t.Errorf("toc[1] = %+v", toc[1])
			}
			if !strings.HasPrefix(toc[0].Preview, "f0 f1") || !strings.HasSuffix(toc[0].Preview, "...") {
				t.Errorf("toc[0].Preview = %q", toc[0].Preview)
			}
			if toc[1].Preview != "s0 s1 s2" {
				t.Errorf("toc[1].Preview = %q", toc[1].Preview)
			}
		})
	}
}

func TestEPUBTOCMissing(t *testing.T) {
	path := testsupport.WriteEPUB(t, t.TempDir(), "bare.epub", testsupport.EPUB{
		Title:    "Bare",
		NoNCX:    true,
		Chapters: []testsupport.Chapter{{Body: testsupport.Paragraphs("text")}},
	})

	if _, err := tocOf(t, path); err == nil {
		t.Error("expected error for book without a table of contents")
	}
}

func TestEPUBTOCSkipsEntriesOutsideSpine(t *testing.T) {
	for _, nav := range []bool{false, true} {
		path := testsupport.WriteEPUB(t, t.TempDir(), "dangling.epub", testsupport.EPUB{
			Title:    "Dangling",
			Nav:      nav,
			Dangling: "Cover",
			Chapters: []testsupport.Chapter{
				{Title: "First", Body: testsupport.Words("f", 4)},
				{Title: "Second", Body: testsupport.Words("s", 3)},
			},
		})

		toc, err := tocOf(t, path)
		if err != nil {
			t.Fatalf("nav=%v: TOC extraction failed: %v", nav, err)
		}
		if len(toc) != 2 {
			t.Fatalf("nav=%v: got %d TOC entries, want 2: %+v", nav, len(toc), toc)
		}
		if toc[0].Title != "First" || toc[1].Title != "Second" || toc[1].WordIndex != 4 {
			t.Errorf("nav=%v: toc = %+v", nav, toc)
		}
	}
}

func TestEPUBTOCUsesLoadedBook(t *testing.T) {
	path := testsupport.WriteEPUB(t, t.TempDir(), "toc.epub", testsupport.EPUB{
		Title: "Loaded",
		Chapters: []testsupport.Chapter{
			{Title: "First", Body: testsupport.Words("f", 2)},
			{Title: "Second", Body: testsupport.Words("s", 2)},
		},
	})
	book, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Offsets come from the book passed in, not from re-reading the file.
	book.Chapters[1].Start = 7
	book.Tokens = append(book.Tokens, make([]Token, 5)...)

	toc, err := (&EPUBFormat{}).TOC(path, book)
	if err != nil {
		t.Fatalf("TOC: %v", err)
	}
	if toc[1].WordIndex != 7 {
		t.Errorf("toc[1].WordIndex = %d, want 7", toc[1].WordIndex)
	}
}

func TestEPUBTOCWithoutHrefs(t *testing.T) {
	path := testsupport.WriteEPUB(t, t.TempDir(), "toc.epub", testsupport.EPUB{
		Title:    "Old cache",
		Chapters: []testsupport.Chapter{{Title: "First", Body: testsupport.Words("f", 2)}},
	})
	book := bookFromText("no hrefs here")
	if _, err := (&EPUBFormat{}).TOC(path, book); err == nil {
		t.Error("expected error when no entry matches a chapter")
	}
}

func tocOf(t *testing.T, path string) ([]TOCEntry, error) {
	t.Helper()
	book, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	return (&EPUBFormat{}).TOC(path, book)
}

func TestResolveHref(t *testing.T) {
	tests := []struct {
		dir, href, want string
	}{
		{".", "text/ch1.xhtml#part", "text/ch1.xhtml"},
		{"", "ch%201.xhtml", "ch 1.xhtml"},
		{"text", "ch2.xhtml", "text/ch2.xhtml"},
		{"text", "../ch3.xhtml", "ch3.xhtml"},
	}
	for _, tt := range tests {
		if got := resolveHref(tt.dir, tt.href); got != tt.want {
			t.Errorf("resolveHref(%q, %q) = %q, want %q", tt.dir, tt.href, got, tt.want)
		}
	}
}
