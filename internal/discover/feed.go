package discover

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/hyperifyio/gocorpus/internal/aggregate"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
)

// commonFeedPaths are probed when the start page advertises no feed.
var commonFeedPaths = []string{
	"/feed",
	"/rss",
	"/feed.xml",
	"/rss.xml",
	"/atom.xml",
	"/index.xml",
	"/blog/feed",
	"/blog/rss.xml",
}

const (
	htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	feedAccept = "application/rss+xml,application/atom+xml,application/feed+json,application/xml;q=0.9,*/*;q=0.8"
)

// FeedStrategy reads RSS, Atom and JSON feeds.
type FeedStrategy struct{}

func (*FeedStrategy) ID() corpus.StrategyID { return StrategyFeed }
func (*FeedStrategy) Confidence() float64   { return ConfidenceFeed }

func (s *FeedStrategy) Discover(ctx context.Context, run *Run) ([]corpus.CandidateLink, error) {
	var candidates []string
	resp, err := run.Fetch(ctx, run.StartURL, fetch.Options{NoBypass: true, Accept: htmlAccept})
	if errors.Is(err, corpus.ErrBudgetExhausted) {
		return nil, err
	}
	if err == nil {
		if links := feedLinks(run, resp.Body); len(links) > 0 {
			return links, nil
		}
		candidates = feedCandidates(run, resp.Body)
	}
	if run.Profile != nil {
		for _, p := range run.Profile.FeedPaths {
			candidates = append(candidates, siteURL(run, p))
		}
	}
	for _, p := range commonFeedPaths {
		candidates = append(candidates, siteURL(run, p))
	}

	tried := make(map[string]bool)
	var lastErr error
	for _, c := range candidates {
		key, err := aggregate.NormalizeURL(c)
		if err != nil || tried[key] {
			continue
		}
		tried[key] = true
		resp, err := run.Fetch(ctx, c, fetch.Options{NoBypass: true, Accept: feedAccept})
		if err != nil {
			if errors.Is(err, corpus.ErrBudgetExhausted) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if links := feedLinks(run, resp.Body); len(links) > 0 {
			return links, nil
		}
	}
	if len(tried) > 0 && lastErr != nil && errors.Is(lastErr, corpus.ErrBlocked) {
		return nil, lastErr
	}
	return nil, nil
}

// feedLinks parses body as a feed and returns its entries as candidates.
// Entries pointing off-site are kept: feeds are authoritative about their
// own content.
func feedLinks(run *Run, body []byte) []corpus.CandidateLink {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !(trimmed[0] == '<' || trimmed[0] == '{') {
		return nil
	}
	f, err := gofeed.NewParser().Parse(bytes.NewReader(trimmed))
	if err != nil || f == nil {
		return nil
	}
	c := newCollector()
	for _, item := range f.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			link = item.GUID
		}
		abs, ok := aggregate.Resolve(run.Start, link)
		if !ok {
			continue
		}
		t := corpus.TypeBlog
		if u, err := run.Start.Parse(abs); err == nil {
			if lt, ok := linkType(u); ok {
				t = lt
			}
		}
		c.add(corpus.CandidateLink{URL: abs, Type: t, DiscoveredBy: StrategyFeed, Confidence: ConfidenceFeed})
	}
	return c.links
}

// feedCandidates returns feed URLs advertised by an HTML page, in order of
// reliability: <link rel=alternate> first, then anchors.
func feedCandidates(run *Run, body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find(`link[rel="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		typ, _ := sel.Attr("type")
		if !isFeedType(typ) {
			return
		}
		if href, ok := sel.Attr("href"); ok {
			if abs, ok := aggregate.Resolve(run.Start, href); ok {
				out = append(out, abs)
			}
		}
	})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		h := strings.ToLower(href)
		if !strings.Contains(h, "rss") && !strings.Contains(h, "atom") && !strings.Contains(h, "/feed") {
			return
		}
		if abs, ok := aggregate.Resolve(run.Start, href); ok && aggregate.SameSite(abs, run.StartURL) {
			out = append(out, abs)
		}
	})
	return out
}

func isFeedType(t string) bool {
	t = strings.ToLower(t)
	return strings.Contains(t, "rss+xml") || strings.Contains(t, "atom+xml") || strings.Contains(t, "feed+json")
}

// siteURL resolves p against the site root.
func siteURL(run *Run, p string) string {
	if abs, ok := aggregate.Resolve(run.Start, p); ok {
		return abs
	}
	return p
}
