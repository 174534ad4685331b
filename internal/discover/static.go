package discover

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/hyperifyio/gocorpus/internal/aggregate"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
)

// containerSelectors locate article-like blocks on listing pages.
var containerSelectors = []string{
	"article",
	".post",
	".blog-post",
	".post-preview",
	".entry",
	"[class*='card']",
	"main",
}

var paginationSelectors = []string{
	"a[rel='next']",
	"link[rel='next']",
	".pagination a",
	".next-page",
	"a.next",
}

var pageNumber = regexp.MustCompile(`(?:/page/\d+/?$|[?&]page=\d+)`)

// StaticStrategy crawls listing pages without rendering them.
type StaticStrategy struct{}

func (*StaticStrategy) ID() corpus.StrategyID { return StrategyStatic }
func (*StaticStrategy) Confidence() float64   { return ConfidenceStatic }

func (s *StaticStrategy) Discover(ctx context.Context, run *Run) ([]corpus.CandidateLink, error) {
	if run.Profile != nil && run.Profile.RequiresJS {
		return nil, errors.New("site requires javascript")
	}
	found := newCollector()
	var budgetErr error
	listings := 0

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.MaxDepth(run.maxListingPages()),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(&fetch.Transport{Get: run.Get})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		listings++
		harvestAnchors(run, e.DOM, e.Request.URL, StrategyStatic, ConfidenceStatic, found)
		if listings >= run.maxListingPages() {
			return
		}
		if next := nextPage(e.DOM, e.Request.URL); next != "" && aggregate.SameSite(next, run.StartURL) {
			_ = e.Request.Visit(next)
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		if errors.Is(err, corpus.ErrBudgetExhausted) {
			budgetErr = err
		}
	})

	err := c.Visit(run.StartURL)
	if budgetErr != nil {
		return found.links, budgetErr
	}
	var visited *colly.AlreadyVisitedError
	if err != nil && !errors.As(err, &visited) {
		return found.links, err
	}
	return found.links, nil
}

// harvestAnchors collects content links from a parsed page. Anchors inside
// article-like containers or profile selectors only need to be same-site
// and not excluded; other anchors must match a content-path pattern.
// Card headings without a link are turned into slug URLs.
func harvestAnchors(run *Run, root *goquery.Selection, page *url.URL, by corpus.StrategyID, conf float64, c *collector) {
	if page == nil {
		page = run.Start
	}
	add := func(href string, strict bool) {
		abs, ok := aggregate.Resolve(page, href)
		if !ok {
			return
		}
		if l, ok := run.Candidate(abs, strict, by, conf); ok {
			c.add(l)
		}
	}

	if run.Profile != nil {
		for _, sel := range run.Profile.Selectors {
			root.Find(sel).Each(func(_ int, s *goquery.Selection) {
				if href, ok := s.Attr("href"); ok {
					add(href, false)
				}
			})
		}
	}
	root.Find(strings.Join(containerSelectors, ", ")).Each(func(_ int, box *goquery.Selection) {
		if box.Is("main") {
			return
		}
		box.Find("h1 a[href], h2 a[href], h3 a[href], a[href].post-link, a[href][class*='title']").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			add(href, false)
		})
		if box.Find("a[href]").Length() == 0 {
			if title := strings.TrimSpace(box.Find("h1, h2, h3").First().Text()); title != "" {
				if slug := slugify(title); slug != "" {
					add(slugURL(run, slug), true)
				}
			}
		}
	})
	root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		add(href, true)
	})
}

// nextPage finds the pagination link following page.
func nextPage(root *goquery.Selection, page *url.URL) string {
	for _, sel := range paginationSelectors {
		var next string
		root.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			if sel == ".pagination a" && !isNextLabel(s.Text()) && !pageNumber.MatchString(href) {
				return true
			}
			if abs, ok := aggregate.Resolve(page, href); ok && abs != page.String() {
				next = abs
				return false
			}
			return true
		})
		if next != "" {
			return next
		}
	}
	return ""
}

func isNextLabel(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "next" || strings.HasPrefix(s, "next ") || s == "›" || s == "»" || s == "older posts"
}
