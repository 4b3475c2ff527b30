package testsupport

import (
	"archive/zip"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Chapter is one spine document of a generated EPUB. Body is inserted into
// the XHTML <body> verbatim.
type Chapter struct {
	Title string
	Body  string
}

// EPUB describes a minimal EPUB 2 package.
type EPUB struct {
	Title    string
	Author   string
	Chapters []Chapter
	// NoNCX omits the toc.ncx so labels fall back to "Chapter N".
	NoNCX bool
	// Nav adds an EPUB 3 navigation document instead of relying on the NCX.
	Nav bool
	// Dangling, when set, is the title of a first contents entry that
	// points at a file missing from the spine.
	Dangling string
}

// Paragraphs wraps each string in a <p> element.
func Paragraphs(paras ...string) string {
	var sb strings.Builder
	for _, p := range paras {
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(p))
		sb.WriteString("</p>\n")
	}
	return sb.String()
}

// Words returns n distinct words, w0 through w(n-1), as a paragraph.
func Words(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return Paragraphs(strings.Join(words, " "))
}

// WriteEPUB writes book into dir/name and returns the full path.
func WriteEPUB(t testing.TB, dir, name string, book EPUB) string {
	t.Helper()

	files := []Entry{
		{name: "mimetype", body: "application/epub+zip", store: true},
		{name: "META-INF/container.xml", body: containerXML},
	}

	var manifest, spine, navPoints, navItems strings.Builder
	if book.Dangling != "" {
		fmt.Fprintf(&navPoints, "    <navPoint id=\"np0\" playOrder=\"0\"><navLabel><text>%s</text></navLabel><content src=\"text/missing.xhtml\"/></navPoint>\n",
			html.EscapeString(book.Dangling))
		fmt.Fprintf(&navItems, "      <li><a href=\"text/missing.xhtml\">%s</a></li>\n", html.EscapeString(book.Dangling))
	}
	for i, ch := range book.Chapters {
		id := fmt.Sprintf("ch%d", i+1)
		href := fmt.Sprintf("text/%s.xhtml", id)
		fmt.Fprintf(&manifest, "    <item id=%q href=%q media-type=\"application/xhtml+xml\"/>\n", id, href)
		fmt.Fprintf(&spine, "    <itemref idref=%q/>\n", id)
		if ch.Title != "" {
			fmt.Fprintf(&navPoints, "    <navPoint id=\"np%d\" playOrder=\"%d\"><navLabel><text>%s</text></navLabel><content src=\"%s\"/></navPoint>\n",
				i+1, i+1, html.EscapeString(ch.Title), href)
			fmt.Fprintf(&navItems, "      <li><a href=\"%s\">%s</a></li>\n", href, html.EscapeString(ch.Title))
		}
		files = append(files, Entry{
			name: "OEBPS/" + href,
			body: fmt.Sprintf(chapterXHTML, html.EscapeString(ch.Title), ch.Body),
		})
	}

	tocAttr := ""
	if !book.NoNCX && !book.Nav {
		manifest.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
		tocAttr = ` toc="ncx"`
		files = append(files, Entry{
			name: "OEBPS/toc.ncx",
			body: fmt.Sprintf(ncxXML, html.EscapeString(book.Title), navPoints.String()),
		})
	}
	if book.Nav {
		manifest.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
		files = append(files, Entry{
			name: "OEBPS/nav.xhtml",
			body: fmt.Sprintf(navXHTML, navItems.String()),
		})
	}

	files = append(files, Entry{
		name: "OEBPS/content.opf",
		body: fmt.Sprintf(opfXML,
			html.EscapeString(book.Title), html.EscapeString(book.Author),
			manifest.String(), tocAttr, spine.String()),
	})

	return WriteZip(t, dir, name, files...)
}

// Entry is one file of a zip archive.
type Entry struct {
	name  string
	body  string
	store bool
}

// File returns a zip entry for WriteZip.
func File(name, body string) Entry {
	return Entry{name: name, body: body}
}

// WriteZip writes an arbitrary zip archive, for malformed-book tests.
func WriteZip(t testing.TB, dir, name string, entries ...Entry) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", p, err)
	}
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		method := zip.Deflate
		if e.store {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		if err != nil {
			t.Fatalf("zip %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("zip %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip %s: %v", p, err)
	}
	return p
}

// WriteBytes writes raw data to dir/name and returns the full path.
func WriteBytes(t testing.TB, dir, name string, data []byte) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", p, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

const opfXML = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>%s</dc:title>
    <dc:creator>%s</dc:creator>
    <dc:identifier id="bookid">urn:uuid:00000000-0000-0000-0000-000000000000</dc:identifier>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
%s  </manifest>
  <spine%s>
%s  </spine>
</package>
`

const chapterXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body>
%s
</body>
</html>
`

const ncxXML = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <docTitle><text>%s</text></docTitle>
  <navMap>
%s  </navMap>
</ncx>
`

const navXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
  <nav epub:type="toc">
    <ol>
%s    </ol>
  </nav>
</body>
</html>
`
