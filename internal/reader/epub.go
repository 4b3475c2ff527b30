package reader

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
)

const containerPath = "META-INF/container.xml"

// EPUBFormat implements Format for EPUB files.
type EPUBFormat struct{}

func init() {
	Register(&EPUBFormat{})
}

func (f *EPUBFormat) Name() string         { return "EPUB" }
func (f *EPUBFormat) Extensions() []string { return []string{".epub"} }

// Extract reads every spine document of an EPUB in reading order. Labels
// come from the table of contents when it names the document.
func (f *EPUBFormat) Extract(filename string) (*Document, error) {
	rc, book, err := openEPUB(filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return extractDocument(filename, book)
}

func extractDocument(filename string, book *epub.Rootfile) (*Document, error) {
	labels := buildTOCHrefMap(readTOCPoints(book))

	doc := &Document{
		Title:  strings.TrimSpace(book.Title),
		Author: strings.TrimSpace(book.Creator),
	}
	for _, ref := range book.Spine.Itemrefs {
		if ref.Item == nil || !isDocument(ref.Item) {
			continue
		}
		data, err := readItem(ref.Item)
		if err != nil {
			return nil, unreadable(filename, fmt.Errorf("read %s: %w", ref.Item.HREF, err))
		}
		n := len(doc.Sections) + 1
		doc.Sections = append(doc.Sections, Section{
			Href:  ref.Item.HREF,
			Label: labelFor(labels, ref.Item.HREF, n),
			HTML:  string(data),
		})
	}
	if len(doc.Sections) == 0 {
		return nil, unreadable(filename, fmt.Errorf("spine has no content documents"))
	}
	return doc, nil
}

// openEPUB validates the archive and returns its first package document.
func openEPUB(filename string) (*epub.ReadCloser, *epub.Rootfile, error) {
	if err := checkContainer(filename); err != nil {
		return nil, nil, unreadable(filename, err)
	}

	rc, err := epub.OpenReader(filename)
	if err != nil {
		return nil, nil, unreadable(filename, err)
	}
	if len(rc.Rootfiles) == 0 {
		rc.Close()
		return nil, nil, unreadable(filename, fmt.Errorf("no rootfiles found in epub"))
	}
	return rc, rc.Rootfiles[0], nil
}

// checkContainer fails fast on files that are not zip archives or that lack
// the OCF container document.
func checkContainer(filename string) error {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name == containerPath {
			return nil
		}
	}
	return fmt.Errorf("missing %s", containerPath)
}

func readItem(item *epub.Item) ([]byte, error) {
	r, err := item.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func isDocument(item *epub.Item) bool {
	mt := strings.ToLower(item.MediaType)
	if strings.Contains(mt, "html") {
		return true
	}
	if mt != "" {
		return false
	}
	switch strings.ToLower(path.Ext(item.HREF)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}

func labelFor(labels map[string]string, href string, n int) string {
	if t, ok := labels[href]; ok && t != "" {
		return t
	}
	if t, ok := labels[path.Base(href)]; ok && t != "" {
		return t
	}
	return fmt.Sprintf("Chapter %d", n)
}

func unreadable(filename string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnreadableBook, filepath.Base(filename), err)
}
