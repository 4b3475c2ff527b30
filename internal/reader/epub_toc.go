package reader

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NCX XML structures for parsing toc.ncx
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     navLabel   `xml:"navLabel"`
	Content   navContent `xml:"content"`
	Children  []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// tocPoint is one table of contents entry with its href resolved against
// the package document directory and the fragment removed.
type tocPoint struct {
	Title string
	Href  string
	Level int
}

// TOC reads the table of contents of an EPUB file and places each entry at
// the start of the chapter it points to. Entries that point outside the
// spine are dropped.
func (f *EPUBFormat) TOC(filename string, book *Book) ([]TOCEntry, error) {
	rc, root, err := openEPUB(filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	points := readTOCPoints(root)
	if len(points) == 0 {
		return nil, fmt.Errorf("no table of contents found in %s", path.Base(filename))
	}

	chapters := make(map[string]Chapter)
	for _, ch := range book.Chapters {
		if ch.Href == "" {
			continue
		}
		for _, k := range []string{ch.Href, path.Base(ch.Href)} {
			if _, ok := chapters[k]; !ok {
				chapters[k] = ch
			}
		}
	}

	entries := make([]TOCEntry, 0, len(points))
	for _, p := range points {
		ch, ok := chapters[p.Href]
		if !ok {
			ch, ok = chapters[path.Base(p.Href)]
		}
		if !ok {
			continue
		}
		entries = append(entries, TOCEntry{
			Title:     p.Title,
			Preview:   preview(book.Tokens[ch.Start:ch.End()], 10),
			WordIndex: ch.Start,
			Level:     p.Level,
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("table of contents of %s matches no chapter", path.Base(filename))
	}
	return entries, nil
}

func preview(tokens []Token, n int) string {
	if len(tokens) == 0 {
		return ""
	}
	words := make([]string, 0, n)
	for i := 0; i < len(tokens) && i < n; i++ {
		words = append(words, tokens[i].Text)
	}
	s := strings.Join(words, " ")
	if len(tokens) > n {
		s += "..."
	}
	return s
}

// buildTOCHrefMap returns a map of href (and href base name) to the first
// title that points at it.
func buildTOCHrefMap(points []tocPoint) map[string]string {
	result := make(map[string]string)
	for _, p := range points {
		if p.Title == "" {
			continue
		}
		if _, exists := result[p.Href]; !exists {
			result[p.Href] = p.Title
		}
		base := path.Base(p.Href)
		if _, exists := result[base]; !exists {
			result[base] = p.Title
		}
	}
	return result
}

// readTOCPoints prefers the EPUB 2 NCX and falls back to the EPUB 3
// navigation document.
func readTOCPoints(book *epub.Rootfile) []tocPoint {
	if points := readNCX(book); len(points) > 0 {
		return points
	}
	return readNavDoc(book)
}

func readNCX(book *epub.Rootfile) []tocPoint {
	item := findManifestItem(book, func(it *epub.Item) bool {
		return it.MediaType == "application/x-dtbncx+xml" ||
			strings.HasSuffix(strings.ToLower(it.HREF), ".ncx")
	})
	if item == nil {
		return nil
	}
	data, err := readItem(item)
	if err != nil {
		return nil
	}

	var toc ncx
	if err := xml.Unmarshal(data, &toc); err != nil {
		return nil
	}

	dir := path.Dir(item.HREF)
	var points []tocPoint
	var flatten func(nps []navPoint, level int)
	flatten = func(nps []navPoint, level int) {
		for _, np := range nps {
			points = append(points, tocPoint{
				Title: strings.Join(strings.Fields(np.Label.Text), " "),
				Href:  resolveHref(dir, np.Content.Src),
				Level: level,
			})
			flatten(np.Children, level+1)
		}
	}
	flatten(toc.NavMap.NavPoints, 0)
	return points
}

func readNavDoc(book *epub.Rootfile) []tocPoint {
	item := findManifestItem(book, func(it *epub.Item) bool {
		if !isDocument(it) {
			return false
		}
		switch strings.ToLower(path.Base(it.HREF)) {
		case "nav.xhtml", "nav.html", "toc.xhtml", "toc.html":
			return true
		}
		return it.ID == "nav" || it.ID == "toc"
	})
	if item == nil {
		return nil
	}
	data, err := readItem(item)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil
	}

	nav := findNav(doc)
	if nav == nil {
		return nil
	}

	dir := path.Dir(item.HREF)
	var points []tocPoint
	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Ol, atom.Ul:
				depth++
			case atom.A:
				if href := attr(n, "href"); href != "" {
					points = append(points, tocPoint{
						Title: strings.Join(strings.Fields(textContent(n)), " "),
						Href:  resolveHref(dir, href),
						Level: max(depth-1, 0),
					})
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth)
		}
	}
	walk(nav, 0)
	return points
}

// findNav returns the <nav epub:type="toc"> element, or the first <nav>.
func findNav(doc *html.Node) *html.Node {
	var first, toc *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if toc != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			if first == nil {
				first = n
			}
			for _, a := range n.Attr {
				if (a.Key == "epub:type" || (a.Namespace == "epub" && a.Key == "type")) &&
					strings.Contains(a.Val, "toc") {
					toc = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if toc != nil {
		return toc
	}
	return first
}

func findManifestItem(book *epub.Rootfile, match func(*epub.Item) bool) *epub.Item {
	for i := range book.Manifest.Items {
		if it := &book.Manifest.Items[i]; match(it) {
			return it
		}
	}
	return nil
}

// resolveHref makes a TOC href relative to the package document directory,
// matching manifest hrefs.
func resolveHref(dir, href string) string {
	if i := strings.Index(href, "#"); i != -1 {
		href = href[:i]
	}
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	if dir == "." || dir == "" {
		return path.Clean(href)
	}
	return path.Join(dir, href)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
