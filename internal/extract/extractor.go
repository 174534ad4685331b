package extract

import (
	"context"
	"errors"

	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// Stage IDs of the blog chain in escalation order, plus the PDF stage.
const (
	StageReadability corpus.StrategyID = "readability"
	StageDensity     corpus.StrategyID = "density"
	StageParagraphs  corpus.StrategyID = "paragraphs"
	StageRendered    corpus.StrategyID = "rendered"
	StageBody        corpus.StrategyID = "body"
	StagePDF         corpus.StrategyID = "pdf"
)

// Page is the input shared by every stage of one extraction.
type Page struct {
	URL string
	// HTML is the statically fetched document; nil when the fetch failed.
	HTML []byte
}

// Document is what a stage produces before scoring.
type Document struct {
	Title  string
	Author string
	Text   string
}

// Stage is one extraction technique. Implementations must not retain page.
type Stage interface {
	ID() corpus.StrategyID
	Attempt(ctx context.Context, page *Page) (Document, error)
}

var errNoHTML = errors.New("no static html")
