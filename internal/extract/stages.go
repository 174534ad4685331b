package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/hyperifyio/gocorpus/internal/browser"
	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// DefaultStages returns the blog chain in escalation order. pool may be nil,
// in which case the rendered stage always escalates.
func DefaultStages(pool *browser.Pool, scroll browser.ScrollOptions) []Stage {
	return []Stage{
		readabilityStage{},
		densityStage{},
		paragraphsStage{},
		&renderedStage{pool: pool, scroll: scroll},
		bodyStage{},
	}
}

var errNoContent = errors.New("no content found")

type readabilityStage struct{}

func (readabilityStage) ID() corpus.StrategyID { return StageReadability }

func (readabilityStage) Attempt(_ context.Context, page *Page) (Document, error) {
	if len(page.HTML) == 0 {
		return Document{}, errNoHTML
	}
	u, err := url.Parse(page.URL)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", corpus.ErrParse, err)
	}
	article, err := readability.FromReader(bytes.NewReader(page.HTML), u)
	if err != nil {
		return Document{}, fmt.Errorf("%w: readability: %w", corpus.ErrParse, err)
	}
	node, err := html.Parse(strings.NewReader(article.Content))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", corpus.ErrParse, err)
	}
	return Document{
		Title:  strings.TrimSpace(article.Title),
		Author: cleanByline(article.Byline),
		Text:   renderMarkdown(node, renderOptions{}),
	}, nil
}

var (
	positiveSignal = regexp.MustCompile(`(?i)article|content|post|entry|body|main|text|story|blog`)
	negativeSignal = regexp.MustCompile(`(?i)comment|footer|sidebar|nav|menu|share|related|promo|(^|[\s_-])ads?([\s_-]|$)|banner|cookie|subscribe|social|widget`)
)

const stripSelector = "script, style, noscript, template, nav, footer, aside, form, iframe, button"

type densityStage struct{}

func (densityStage) ID() corpus.StrategyID { return StageDensity }

func (densityStage) Attempt(_ context.Context, page *Page) (Document, error) {
	if len(page.HTML) == 0 {
		return Document{}, errNoHTML
	}
	return densityFromHTML(page.HTML)
}

func densityFromHTML(b []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", corpus.ErrParse, err)
	}
	return densityFromDoc(doc)
}

// densityFromDoc scores block containers by the paragraphs they hold,
// weighted by tag and class/id signals and discounted by link density, and
// renders the best one.
func densityFromDoc(doc *goquery.Document) (Document, error) {
	title := text(doc, "title")
	doc.Find(stripSelector).Remove()

	scores := make(map[*html.Node]float64)
	var order []*html.Node
	credit := func(n *html.Node, v float64) {
		if n == nil || n.Type != html.ElementNode {
			return
		}
		if _, ok := scores[n]; !ok {
			scores[n] = initialScore(n)
			order = append(order, n)
		}
		scores[n] += v
	}
	doc.Find("p, pre, td, blockquote").Each(func(_ int, p *goquery.Selection) {
		t := strings.Join(strings.Fields(p.Text()), " ")
		if len(t) < 25 {
			return
		}
		v := 1 + float64(strings.Count(t, ",")) + min(float64(len(t))/100, 3)
		n := p.Nodes[0]
		credit(n.Parent, v)
		if n.Parent != nil {
			credit(n.Parent.Parent, v/2)
		}
	})

	var best *html.Node
	bestScore := 0.0
	for _, n := range order {
		s := scores[n] * (1 - linkDensity(goquery.NewDocumentFromNode(n).Selection))
		if s > bestScore {
			best, bestScore = n, s
		}
	}
	if best == nil {
		return Document{Title: title}, errNoContent
	}
	return Document{Title: title, Text: renderMarkdown(best, renderOptions{})}, nil
}

func initialScore(n *html.Node) float64 {
	s := 0.0
	switch strings.ToLower(n.Data) {
	case "article":
		s += 10
	case "main", "section":
		s += 5
	case "div":
		s += 3
	case "td", "blockquote", "pre":
		s += 2
	case "form", "ul", "ol", "li", "header", "dl":
		s -= 3
	case "h1", "h2", "h3", "h4", "h5", "h6", "th":
		s -= 5
	}
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		if negativeSignal.MatchString(a.Val) {
			s -= 25
		}
		if positiveSignal.MatchString(a.Val) {
			s += 25
		}
	}
	return s
}

func linkDensity(s *goquery.Selection) float64 {
	total := len(strings.Join(strings.Fields(s.Text()), " "))
	if total == 0 {
		return 1
	}
	links := 0
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		links += len(strings.Join(strings.Fields(a.Text()), " "))
	})
	return float64(links) / float64(total)
}

type paragraphsStage struct{}

func (paragraphsStage) ID() corpus.StrategyID { return StageParagraphs }

// Attempt joins every substantial <p> that sits outside page chrome.
func (paragraphsStage) Attempt(_ context.Context, page *Page) (Document, error) {
	if len(page.HTML) == 0 {
		return Document{}, errNoHTML
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", corpus.ErrParse, err)
	}
	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if inChrome(p) {
			return
		}
		t := strings.Join(strings.Fields(p.Text()), " ")
		if len(t) >= 40 {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return Document{Title: text(doc, "title")}, errNoContent
	}
	return Document{Title: text(doc, "title"), Text: strings.Join(parts, "\n\n")}, nil
}

func inChrome(s *goquery.Selection) bool {
	if s.ParentsFiltered("nav, footer, aside, header, form").Length() > 0 {
		return true
	}
	chrome := false
	s.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		for _, key := range []string{"class", "id"} {
			if v, ok := p.Attr(key); ok && negativeSignal.MatchString(v) && !positiveSignal.MatchString(v) {
				chrome = true
				return false
			}
		}
		return true
	})
	return chrome
}

// renderedStage re-runs the density heuristic on the browser-rendered DOM.
type renderedStage struct {
	pool   *browser.Pool
	scroll browser.ScrollOptions
}

func (*renderedStage) ID() corpus.StrategyID { return StageRendered }

func (s *renderedStage) Attempt(ctx context.Context, page *Page) (Document, error) {
	if !s.pool.Available() {
		return Document{}, browser.ErrUnavailable
	}
	if !strings.HasPrefix(page.URL, "http://") && !strings.HasPrefix(page.URL, "https://") {
		return Document{}, fmt.Errorf("%w: not a web page", corpus.ErrRender)
	}
	rendered, err := s.pool.Render(ctx, page.URL, s.scroll)
	if err != nil {
		return Document{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", corpus.ErrParse, err)
	}
	m := metaFromDoc(doc)
	d, err := densityFromDoc(doc)
	if m.Title != "" {
		d.Title = m.Title
	}
	d.Author = m.Author
	return d, err
}
