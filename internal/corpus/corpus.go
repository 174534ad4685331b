// Package corpus holds the data model shared by discovery, extraction and the
// pipeline: sources, candidate links, output items and the batch envelope.
package corpus

import (
	"net/url"
	"strings"
)

// Kind tells whether a Source points at the network or at the local disk.
type Kind string

const (
	KindURL  Kind = "url"
	KindFile Kind = "file"
)

// Type is the coarse classification of a resource.
type Type string

const (
	TypeBlog    Type = "blog"
	TypePDF     Type = "pdf"
	TypeUnknown Type = "unknown"
)

// ParseType maps free-form input to a Type. Unrecognized values are unknown.
func ParseType(s string) Type {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blog", "article", "html", "web":
		return TypeBlog
	case "pdf", "book":
		return TypePDF
	default:
		return TypeUnknown
	}
}

// Source is one raw input to the pipeline.
type Source struct {
	URI      string
	Kind     Kind
	Declared Type
}

// NewSource builds a Source from raw user input. Anything with an http(s)
// scheme is a URL; everything else is treated as a file path.
func NewSource(raw string, declared Type) Source {
	raw = strings.TrimSpace(raw)
	if declared == "" {
		declared = TypeUnknown
	}
	kind := KindFile
	if u, err := url.Parse(raw); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			kind = KindURL
		}
	}
	return Source{URI: raw, Kind: kind, Declared: declared}
}

// IsURL reports whether the source should be fetched over HTTP.
func (s Source) IsURL() bool { return s.Kind == KindURL }

// StrategyID names a discovery or extraction strategy.
type StrategyID string

// CandidateLink is a content URL produced by discovery.
type CandidateLink struct {
	URL          string     `json:"url"`
	Type         Type       `json:"type"`
	DiscoveredBy StrategyID `json:"discovered_by"`
	Confidence   float64    `json:"confidence"`
}

// ContentType is the output taxonomy consumed by the persistence layer.
type ContentType string

const (
	ContentBlog              ContentType = "blog"
	ContentPodcastTranscript ContentType = "podcast_transcript"
	ContentCallTranscript    ContentType = "call_transcript"
	ContentLinkedInPost      ContentType = "linkedin_post"
	ContentRedditComment     ContentType = "reddit_comment"
	ContentBook              ContentType = "book"
	ContentOther             ContentType = "other"
)

// ContentTypeFor maps a classified resource type to its output content type.
func ContentTypeFor(t Type) ContentType {
	switch t {
	case TypeBlog:
		return ContentBlog
	case TypePDF:
		return ContentBook
	default:
		return ContentOther
	}
}

// Item is the output unit. Field names are fixed by downstream consumers.
type Item struct {
	Title       string      `json:"title" bson:"title"`
	Content     string      `json:"content" bson:"content"`
	ContentType ContentType `json:"content_type" bson:"content_type"`
	SourceURL   string      `json:"source_url,omitempty" bson:"source_url,omitempty"`
	Author      string      `json:"author" bson:"author"`
	UserID      string      `json:"user_id" bson:"user_id"`
}

// Result is the persisted batch envelope.
type Result struct {
	TeamID string `json:"team_id"`
	Items  []Item `json:"items"`
}
