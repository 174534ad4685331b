// Package discover finds content URLs on a site by escalating through feed,
// API, rendered, static and sitemap strategies under a shared page budget.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocorpus/internal/aggregate"
	"github.com/hyperifyio/gocorpus/internal/browser"
	"github.com/hyperifyio/gocorpus/internal/budget"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
	"github.com/hyperifyio/gocorpus/internal/robots"
)

// DefaultMinConfidence is the confidence a strategy must reach to stop
// escalation.
const DefaultMinConfidence = 0.5

// Fetcher retrieves pages. *fetch.Client implements it.
type Fetcher interface {
	Do(ctx context.Context, url string, opts fetch.Options) (*fetch.Response, error)
}

// Engine runs the discovery chain. The zero value is not usable; Fetcher is
// required.
type Engine struct {
	Fetcher Fetcher
	// Browser is optional. Without it the browser strategy escalates.
	Browser *browser.Pool
	// Robots supplies sitemap hints and, with RespectRobots, filters links.
	Robots        *robots.Manager
	RespectRobots bool

	Strategies    []Strategy
	MinConfidence float64
	Profiles      []Profile
	Scroll        browser.ScrollOptions
	// MaxListingPages bounds pagination per strategy. Zero means 5.
	MaxListingPages int
}

// Attempt records one strategy run.
type Attempt struct {
	Strategy   corpus.StrategyID `json:"strategy"`
	Found      int               `json:"found"`
	Confidence float64           `json:"confidence"`
	Err        string            `json:"error,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// Report is the outcome of one discovery run.
type Report struct {
	StartURL        string                 `json:"start_url"`
	Links           []corpus.CandidateLink `json:"links"`
	Succeeded       corpus.StrategyID      `json:"succeeded,omitempty"`
	Attempts        []Attempt              `json:"attempts"`
	PagesVisited    int                    `json:"pages_visited"`
	BudgetExhausted bool                   `json:"budget_exhausted"`
}

// ByType groups the links by inferred type.
func (r *Report) ByType() map[corpus.Type][]corpus.CandidateLink {
	return aggregate.GroupByType(r.Links)
}

// URLsByType is the caller-facing discover() result.
func (r *Report) URLsByType() map[string][]string {
	out := make(map[string][]string)
	for _, l := range r.Links {
		out[string(l.Type)] = append(out[string(l.Type)], l.URL)
	}
	return out
}

// Discover runs the strategy chain against startURL visiting at most
// maxPages pages. Only an invalid start URL is returned as an error; budget
// exhaustion yields a partial report.
func (e *Engine) Discover(ctx context.Context, startURL string, maxPages int) (*Report, error) {
	start, err := url.Parse(startURL)
	if err != nil || (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return nil, fmt.Errorf("invalid start url %q", startURL)
	}
	if e.Fetcher == nil {
		return nil, errors.New("discover: no fetcher configured")
	}
	profiles := append(append([]Profile(nil), e.Profiles...), BuiltinProfiles()...)
	run := &Run{
		Start:    start,
		StartURL: start.String(),
		Profile:  matchProfile(profiles, start.Hostname()),
		Budget:   budget.NewPages(maxPages),
		engine:   e,
		pages:    make(map[string]*fetch.Response),
		failed:   make(map[string]error),
	}
	run.match = matcher{start: start, profile: run.Profile}

	minConf := e.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}
	strategies := e.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}

	report := &Report{StartURL: run.StartURL}
	found := aggregate.NewLinkSet()
	logger := log.With().Str("url", run.StartURL).Logger()

	for _, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		if run.Budget.Exhausted() {
			report.BudgetExhausted = true
			break
		}
		began := time.Now()
		links, serr := safeDiscover(ctx, s, run)
		links = e.filter(ctx, links)
		conf := confidenceOf(s, links)
		added := 0
		for _, l := range links {
			if found.Add(l) {
				added++
			}
		}
		a := Attempt{Strategy: s.ID(), Found: len(links), Confidence: conf, Duration: time.Since(began)}
		if serr != nil {
			a.Err = serr.Error()
		}
		report.Attempts = append(report.Attempts, a)
		logger.Debug().Str("strategy", string(s.ID())).Int("found", len(links)).Int("new", added).
			Float64("confidence", conf).Int("pages", run.Budget.Used()).AnErr("error", serr).Msg("discovery strategy finished")

		if errors.Is(serr, corpus.ErrBudgetExhausted) {
			report.BudgetExhausted = true
		}
		if len(links) > 0 && conf >= minConf {
			report.Succeeded = s.ID()
			break
		}
		if report.BudgetExhausted {
			break
		}
	}
	report.Links = found.Links()
	report.PagesVisited = run.Budget.Used()
	if report.BudgetExhausted {
		logger.Info().Int("pages", report.PagesVisited).Msg("discovery stopped: page budget exhausted")
	}
	return report, nil
}

// safeDiscover converts strategy panics into errors.
func safeDiscover(ctx context.Context, s Strategy, run *Run) (links []corpus.CandidateLink, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panic: %v", s.ID(), r)
		}
	}()
	return s.Discover(ctx, run)
}

func confidenceOf(s Strategy, links []corpus.CandidateLink) float64 {
	best := 0.0
	for _, l := range links {
		if l.Confidence > best {
			best = l.Confidence
		}
	}
	if best == 0 && len(links) > 0 {
		return s.Confidence()
	}
	return best
}

func (e *Engine) filter(ctx context.Context, links []corpus.CandidateLink) []corpus.CandidateLink {
	if !e.RespectRobots || e.Robots == nil {
		return links
	}
	out := links[:0]
	for _, l := range links {
		if e.Robots.Allowed(ctx, l.URL) {
			out = append(out, l)
		}
	}
	return out
}

// Run is the per-site state shared by the strategies of one discovery run.
type Run struct {
	Start    *url.URL
	StartURL string
	// Profile is nil when no site profile matches.
	Profile *Profile
	Budget  *budget.Pages

	engine *Engine
	match  matcher

	mu     sync.Mutex
	pages  map[string]*fetch.Response
	failed map[string]error
}

// Fetch retrieves rawURL through the engine's fetcher, charging the page
// budget once per normalized URL. Pages that fail to load are refunded.
func (r *Run) Fetch(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Response, error) {
	key, err := aggregate.NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", corpus.ErrFetch, err)
	}
	fkey := key
	if opts.NoBypass {
		fkey += "#nobypass"
	}
	r.mu.Lock()
	if resp, ok := r.pages[key]; ok {
		r.mu.Unlock()
		return resp, nil
	}
	if err, ok := r.failed[fkey]; ok {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	if !r.Budget.Take() {
		return nil, corpus.ErrBudgetExhausted
	}
	resp, err := r.engine.Fetcher.Do(ctx, rawURL, opts)
	if err != nil {
		r.Budget.Release()
		if ctx.Err() == nil {
			r.mu.Lock()
			r.failed[fkey] = err
			r.mu.Unlock()
		}
		return nil, err
	}
	r.mu.Lock()
	r.pages[key] = resp
	r.mu.Unlock()
	return resp, nil
}

// Get fetches with anti-bot bypass enabled. It satisfies fetch.Getter.
func (r *Run) Get(ctx context.Context, rawURL string) (*fetch.Response, error) {
	return r.Fetch(ctx, rawURL, fetch.Options{})
}

// Browser returns the engine's browser pool, possibly nil.
func (r *Run) Browser() *browser.Pool { return r.engine.Browser }

// Robots returns the engine's robots manager, possibly nil.
func (r *Run) Robots() *robots.Manager { return r.engine.Robots }

// Candidate classifies raw as a content link found by strategy s.
func (r *Run) Candidate(raw string, strict bool, by corpus.StrategyID, conf float64) (corpus.CandidateLink, bool) {
	t, ok := r.match.candidate(raw, strict)
	if !ok {
		return corpus.CandidateLink{}, false
	}
	return corpus.CandidateLink{URL: raw, Type: t, DiscoveredBy: by, Confidence: conf}, true
}

func (r *Run) maxListingPages() int {
	if r.engine.MaxListingPages > 0 {
		return r.engine.MaxListingPages
	}
	return 5
}

// collector deduplicates links within one strategy.
type collector struct {
	seen  map[string]bool
	links []corpus.CandidateLink
}

func newCollector() *collector { return &collector{seen: make(map[string]bool)} }

func (c *collector) add(l corpus.CandidateLink) bool {
	key, err := aggregate.NormalizeURL(l.URL)
	if err != nil || c.seen[key] {
		return false
	}
	c.seen[key] = true
	l.URL = key
	c.links = append(c.links, l)
	return true
}
