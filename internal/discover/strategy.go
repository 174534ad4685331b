package discover

import (
	"context"

	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// Strategy IDs in escalation order.
const (
	StrategyFeed    corpus.StrategyID = "feed"
	StrategyAPI     corpus.StrategyID = "api"
	StrategyBrowser corpus.StrategyID = "browser"
	StrategyStatic  corpus.StrategyID = "static"
	StrategySitemap corpus.StrategyID = "sitemap"
)

// Nominal confidences per strategy.
const (
	ConfidenceFeed     = 1.0
	ConfidenceAPI      = 0.9
	ConfidenceAPILoose = 0.45
	ConfidenceBrowser  = 0.7
	ConfidenceStatic   = 0.5
	ConfidenceSitemap  = 0.3
)

// Strategy is one discovery technique. Discover returns the links it found,
// even alongside an error, so partial results survive budget exhaustion.
type Strategy interface {
	ID() corpus.StrategyID
	Confidence() float64
	Discover(ctx context.Context, run *Run) ([]corpus.CandidateLink, error)
}

// DefaultStrategies returns the full chain in escalation order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		&FeedStrategy{},
		&APIStrategy{},
		&BrowserStrategy{},
		&StaticStrategy{},
		&SitemapStrategy{},
	}
}
