package reader

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// bookWithCounts builds a book whose chapters hold the given number of words.
func bookWithCounts(counts ...int) *Book {
	doc := &Document{Title: "Counts"}
	for i, n := range counts {
		words := make([]string, n)
		for j := range words {
			words[j] = fmt.Sprintf("c%dw%d", i, j)
		}
		doc.Sections = append(doc.Sections, Section{
			Href:  fmt.Sprintf("ch%d.xhtml", i),
			Label: fmt.Sprintf("Part %d", i+1),
			HTML:  "<p>" + strings.Join(words, " ") + "</p>",
		})
	}
	return NewBook(doc)
}

// bookFromText builds a single-chapter book from plain prose.
func bookFromText(text string) *Book {
	return NewBook(&Document{Sections: []Section{{Label: "Only", HTML: "<p>" + text + "</p>"}}})
}

func TestNewBookChapterRanges(t *testing.T) {
	b := bookWithCounts(10, 0, 5)

	if b.Total() != 15 {
		t.Fatalf("Total() = %d, want 15", b.Total())
	}
	want := []Chapter{
		{Index: 0, Title: "Part 1", Start: 0, Count: 10, Href: "ch0.xhtml"},
		{Index: 1, Title: "Part 2", Start: 10, Count: 0, Href: "ch1.xhtml"},
		{Index: 2, Title: "Part 3", Start: 10, Count: 5, Href: "ch2.xhtml"},
	}
	if len(b.Chapters) != len(want) {
		t.Fatalf("got %d chapters, want %d", len(b.Chapters), len(want))
	}
	for i, ch := range b.Chapters {
		if ch != want[i] {
			t.Errorf("chapter %d = %+v, want %+v", i, ch, want[i])
		}
	}
}

func TestChapterAt(t *testing.T) {
	b := bookWithCounts(10, 0, 5)

	tests := []struct {
		index int
		want  int
	}{
		{0, 0},
		{9, 0},
		{10, 2},
		{12, 2},
		{14, 2},
		{15, 2},
		{-3, 0},
		{99, 2},
	}
	for _, tt := range tests {
		if got := b.ChapterAt(tt.index); got != tt.want {
			t.Errorf("ChapterAt(%d) = %d, want %d", tt.index, got, tt.want)
		}
	}
}

func TestChapterAtContainsEveryIndex(t *testing.T) {
	for _, counts := range [][]int{{1}, {3, 3, 3}, {0, 4, 0, 0, 2, 0}, {7, 1, 0, 1}} {
		b := bookWithCounts(counts...)
		for i := 0; i < b.Total(); i++ {
			c := b.ChapterAt(i)
			if c < 0 || !b.Chapters[c].Contains(i) {
				t.Errorf("counts %v: ChapterAt(%d) = %d, which does not contain it", counts, i, c)
			}
		}
	}
}

func TestChapterAtNoChapters(t *testing.T) {
	b := NewBook(&Document{})
	if got := b.ChapterAt(0); got != -1 {
		t.Errorf("ChapterAt(0) = %d, want -1", got)
	}
}

func TestChapterStart(t *testing.T) {
	b := bookWithCounts(4, 6)

	start, err := b.ChapterStart(1)
	if err != nil {
		t.Fatalf("ChapterStart(1): %v", err)
	}
	if start != 4 {
		t.Errorf("ChapterStart(1) = %d, want 4", start)
	}

	for _, n := range []int{-1, 2} {
		if _, err := b.ChapterStart(n); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("ChapterStart(%d) error = %v, want ErrInvalidPosition", n, err)
		}
	}
}

func TestNewBookLabelFallback(t *testing.T) {
	b := NewBook(&Document{Sections: []Section{
		{Label: "Intro", HTML: "<p>a</p>"},
		{Label: "  ", HTML: "<p>b</p>"},
	}})
	if got := b.Chapters[1].Title; got != "Chapter 2" {
		t.Errorf("Chapters[1].Title = %q, want %q", got, "Chapter 2")
	}
}

func TestFindSentenceStarts(t *testing.T) {
	b := bookFromText("One two. Three four? Five six!")
	got := b.SentenceStarts()
	want := []int{0, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("SentenceStarts() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SentenceStarts()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPages(t *testing.T) {
	tests := []struct {
		total, perPage, wantPages int
	}{
		{0, 300, 1},
		{1, 300, 1},
		{300, 300, 1},
		{301, 300, 2},
		{900, 300, 3},
		{10, 0, 1},
	}
	for _, tt := range tests {
		if got := PageCount(tt.total, tt.perPage); got != tt.wantPages {
			t.Errorf("PageCount(%d, %d) = %d, want %d", tt.total, tt.perPage, got, tt.wantPages)
		}
	}

	if got := PageAt(0, 301, 300); got != 1 {
		t.Errorf("PageAt(0) = %d, want 1", got)
	}
	if got := PageAt(300, 301, 300); got != 2 {
		t.Errorf("PageAt(300) = %d, want 2", got)
	}
	if got := PageAt(301, 301, 300); got != 2 {
		t.Errorf("PageAt(301) = %d, want 2", got)
	}
}

func TestValidatePosition(t *testing.T) {
	for _, i := range []int{0, 5, 10} {
		if err := ValidatePosition(i, 10); err != nil {
			t.Errorf("ValidatePosition(%d, 10) = %v", i, err)
		}
	}
	for _, i := range []int{-1, 11} {
		if err := ValidatePosition(i, 10); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("ValidatePosition(%d, 10) = %v, want ErrInvalidPosition", i, err)
		}
	}
}
