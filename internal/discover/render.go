package discover

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/gocorpus/internal/browser"
	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// BrowserStrategy renders the start page, scrolls to trigger lazy loading
// and harvests links from the resulting DOM.
type BrowserStrategy struct{}

func (*BrowserStrategy) ID() corpus.StrategyID { return StrategyBrowser }
func (*BrowserStrategy) Confidence() float64   { return ConfidenceBrowser }

func (s *BrowserStrategy) Discover(ctx context.Context, run *Run) ([]corpus.CandidateLink, error) {
	pool := run.Browser()
	if !pool.Available() {
		return nil, browser.ErrUnavailable
	}
	if !run.Budget.Take() {
		return nil, corpus.ErrBudgetExhausted
	}
	html, err := pool.Render(ctx, run.StartURL, run.engine.Scroll)
	if err != nil {
		run.Budget.Release()
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: rendered dom: %w", corpus.ErrParse, err)
	}
	c := newCollector()
	harvestAnchors(run, doc.Selection, run.Start, StrategyBrowser, ConfidenceBrowser, c)
	return c.links, nil
}
