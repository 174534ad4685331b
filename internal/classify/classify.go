// Package classify decides the coarse type of a resource from its location,
// an optional caller hint, and later its Content-Type header.
package classify

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// Classify returns the type of uri. The .pdf extension wins over the
// declared type; http(s) URLs default to blog until a fetch says otherwise.
func Classify(uri string, declared corpus.Type) corpus.Type {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return corpus.TypeUnknown
	}
	p := uri
	isHTTP := false
	if u, err := url.Parse(uri); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			isHTTP = true
			p = u.Path
		}
	}
	if strings.EqualFold(path.Ext(p), ".pdf") {
		return corpus.TypePDF
	}
	if declared != "" && declared != corpus.TypeUnknown {
		return declared
	}
	if isHTTP {
		return corpus.TypeBlog
	}
	return corpus.TypeUnknown
}

// Source classifies a corpus.Source.
func Source(src corpus.Source) corpus.Type {
	return Classify(src.URI, src.Declared)
}

// FromContentType maps a Content-Type header value to a type.
func FromContentType(ct string) corpus.Type {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	switch {
	case mt == "application/pdf" || mt == "application/x-pdf":
		return corpus.TypePDF
	case mt == "text/html" || mt == "application/xhtml+xml":
		return corpus.TypeBlog
	default:
		return corpus.TypeUnknown
	}
}

// Refine combines an earlier classification with the Content-Type seen at
// fetch time. A concrete header always wins.
func Refine(t corpus.Type, contentType string) corpus.Type {
	if ct := FromContentType(contentType); ct != corpus.TypeUnknown {
		return ct
	}
	return t
}
