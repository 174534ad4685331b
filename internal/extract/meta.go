package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var authorSelectors = []string{
	".author",
	".byline",
	"[rel='author']",
	".post-author",
	".article-author",
	".entry-author",
}

// Meta is page-level metadata independent of the content stage.
type Meta struct {
	Title  string
	Author string
}

// ReadMeta pulls title and author from document metadata and common byline
// markup.
func ReadMeta(htmlBytes []byte) Meta {
	if len(htmlBytes) == 0 {
		return Meta{}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		return Meta{}
	}
	return metaFromDoc(doc)
}

func metaFromDoc(doc *goquery.Document) Meta {
	var m Meta
	m.Title = firstNonEmpty(
		attr(doc, `meta[property="og:title"]`, "content"),
		text(doc, "h1"),
		text(doc, "title"),
	)
	m.Author = firstNonEmpty(
		attr(doc, `meta[name="author"]`, "content"),
		attr(doc, `meta[property="article:author"]`, "content"),
	)
	if m.Author == "" {
		for _, sel := range authorSelectors {
			if a := cleanByline(text(doc, sel)); a != "" {
				m.Author = a
				break
			}
		}
	}
	return m
}

func attr(doc *goquery.Document, sel, name string) string {
	v, _ := doc.Find(sel).First().Attr(name)
	return strings.TrimSpace(v)
}

func text(doc *goquery.Document, sel string) string {
	return strings.Join(strings.Fields(doc.Find(sel).First().Text()), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// cleanByline turns "By Jane Doe" into "Jane Doe" and rejects long blobs
// that are clearly not a name.
func cleanByline(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 3 && strings.EqualFold(s[:3], "by ") {
		s = strings.TrimSpace(s[3:])
	}
	if i := strings.IndexAny(s, "|·•"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	if len(strings.Fields(s)) > 6 {
		return ""
	}
	return s
}
