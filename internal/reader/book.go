package reader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultWordsPerPage is the page size used for page navigation.
const DefaultWordsPerPage = 300

// Chapter is a contiguous token range of a book. Chapters never overlap and
// together cover the whole token sequence in spine order; empty spine
// documents produce zero-width chapters.
type Chapter struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Start int    `json:"start"`
	Count int    `json:"count"`
	// Href is the spine document the chapter came from, when known.
	Href string `json:"href,omitempty"`
}

// End returns the exclusive end offset of the chapter.
func (c Chapter) End() int { return c.Start + c.Count }

// Contains reports whether the absolute token index falls inside the chapter.
func (c Chapter) Contains(index int) bool {
	return index >= c.Start && index < c.End()
}

// Book is an extracted, tokenized book. It is immutable once built.
type Book struct {
	ID       string    `json:"id"`
	Path     string    `json:"-"`
	Title    string    `json:"title"`
	Author   string    `json:"author"`
	Chapters []Chapter `json:"chapters"`
	Tokens   []Token   `json:"tokens"`
}

// NewBook tokenizes every section of doc into a single flattened sequence.
func NewBook(doc *Document) *Book {
	b := &Book{
		Title:  doc.Title,
		Author: doc.Author,
	}
	for i, s := range doc.Sections {
		tokens := Tokenize(ExtractProse(s.HTML))
		label := strings.TrimSpace(s.Label)
		if label == "" {
			label = fmt.Sprintf("Chapter %d", i+1)
		}
		b.Chapters = append(b.Chapters, Chapter{
			Index: i,
			Title: label,
			Start: len(b.Tokens),
			Count: len(tokens),
			Href:  s.Href,
		})
		b.Tokens = append(b.Tokens, tokens...)
	}
	return b
}

// Open extracts and tokenizes the book at filename.
func Open(filename string) (*Book, error) {
	doc, err := Extract(filename)
	if err != nil {
		return nil, err
	}
	b := NewBook(doc)
	b.Path = filename
	if b.Title == "" {
		b.Title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return b, nil
}

// Total returns the number of tokens in the book.
func (b *Book) Total() int {
	if b == nil {
		return 0
	}
	return len(b.Tokens)
}

// ChapterAt returns the index of the chapter containing the absolute token
// index. An index equal to Total maps to the last chapter. It returns -1 for
// books without chapters.
func (b *Book) ChapterAt(index int) int {
	if b == nil || len(b.Chapters) == 0 {
		return -1
	}
	index = clamp(index, 0, b.Total())
	if index >= b.Total() {
		return len(b.Chapters) - 1
	}
	// The last chapter starting at or before index is the one containing it:
	// a zero-width chapter at index is always followed by one starting there too.
	n := sort.Search(len(b.Chapters), func(i int) bool {
		return b.Chapters[i].Start > index
	})
	return n - 1
}

// ChapterStart returns the first token index of chapter n.
func (b *Book) ChapterStart(n int) (int, error) {
	if b == nil || n < 0 || n >= len(b.Chapters) {
		return 0, fmt.Errorf("chapter %d: %w", n, ErrInvalidPosition)
	}
	return b.Chapters[n].Start, nil
}

// SentenceStarts returns indices of tokens that start sentences.
func (b *Book) SentenceStarts() []int {
	return FindSentenceStarts(b.Tokens)
}

// FindSentenceStarts returns indices of tokens that start sentences.
func FindSentenceStarts(tokens []Token) []int {
	starts := []int{0}
	for i, t := range tokens {
		if t.Weight >= SentenceWeight && i+1 < len(tokens) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// PageCount returns the number of pages of perPage tokens, at least one.
func PageCount(total, perPage int) int {
	if perPage <= 0 {
		perPage = DefaultWordsPerPage
	}
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		return 1
	}
	return pages
}

// PageAt returns the 1-based page containing the token index.
func PageAt(index, total, perPage int) int {
	if perPage <= 0 {
		perPage = DefaultWordsPerPage
	}
	return clamp(index/perPage+1, 1, PageCount(total, perPage))
}

// ValidatePosition reports whether index is a usable position in a sequence
// of total tokens.
func ValidatePosition(index, total int) error {
	if index < 0 || index > total {
		return fmt.Errorf("index %d not in [0, %d]: %w", index, total, ErrInvalidPosition)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
