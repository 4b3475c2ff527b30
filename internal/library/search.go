package library

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// searchIndex implements fuzzy.Source over "title author" of each entry.
type searchIndex struct {
	entries []Entry
	lower   []string
}

func newSearchIndex(entries []Entry) *searchIndex {
	idx := &searchIndex{entries: entries, lower: make([]string, len(entries))}
	for i, e := range entries {
		idx.lower[i] = strings.ToLower(strings.TrimSpace(e.Title + " " + e.Author))
	}
	return idx
}

func (idx *searchIndex) String(i int) string { return idx.lower[i] }
func (idx *searchIndex) Len() int            { return len(idx.entries) }

// Search returns entries fuzzily matching query, best match first. An empty
// query returns entries unchanged.
func Search(entries []Entry, query string) []Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return entries
	}

	matches := fuzzy.FindFrom(query, newSearchIndex(entries))
	out := make([]Entry, len(matches))
	for i, m := range matches {
		out[i] = entries[m.Index]
	}
	return out
}
