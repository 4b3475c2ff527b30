package reader

// TOCEntry represents a single entry in a table of contents
type TOCEntry struct {
	Title     string
	Preview   string
	WordIndex int
	Level     int
}

// Section is one spine document of a book, in reading order.
type Section struct {
	Href  string
	Label string
	HTML  string
}

// Document is the raw output of a Format: metadata plus spine sections.
type Document struct {
	Title    string
	Author   string
	Sections []Section
}

// TOCProvider is an optional interface for formats that support TOC
// extraction. book must have been extracted from filename; entries are
// placed on its chapters.
type TOCProvider interface {
	TOC(filename string, book *Book) ([]TOCEntry, error)
}
