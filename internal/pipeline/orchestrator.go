// Package pipeline turns a list of sources into chunked Items: sites are
// discovered, every resulting document is extracted on a bounded pool, and
// one failing document never takes the batch down with it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/gocorpus/internal/aggregate"
	"github.com/hyperifyio/gocorpus/internal/chunk"
	"github.com/hyperifyio/gocorpus/internal/classify"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/discover"
	"github.com/hyperifyio/gocorpus/internal/extract"
	"github.com/hyperifyio/gocorpus/internal/metrics"
)

const (
	DefaultConcurrency     = 4
	DefaultSiteConcurrency = 2
	DefaultItemTimeout     = 90 * time.Second
	DefaultSiteTimeout     = 3 * time.Minute
	DefaultMaxPages        = 10
)

// ErrInvalidInput reports a batch that cannot start at all.
var ErrInvalidInput = errors.New("invalid input")

// Discoverer finds content links on a site. *discover.Engine implements it.
type Discoverer interface {
	Discover(ctx context.Context, startURL string, maxPages int) (*discover.Report, error)
}

// Extractor turns one source into text. *extract.Engine implements it.
type Extractor interface {
	ExtractSource(ctx context.Context, src corpus.Source) (extract.Result, error)
}

// Orchestrator wires discovery, extraction and chunking together.
type Orchestrator struct {
	Discoverer Discoverer
	Extractor  Extractor
	Chunker    chunk.Chunker

	// Concurrency bounds documents extracted at once.
	Concurrency int
	// SiteConcurrency bounds sites discovered at once.
	SiteConcurrency int
	ItemTimeout     time.Duration
	SiteTimeout     time.Duration
	MaxPages        int
	// IncludeStartPage extracts the site's start URL alongside its links.
	IncludeStartPage bool
	// NumberParts suffixes titles of multi-chunk documents with " (part N)".
	NumberParts bool

	Metrics          *metrics.Metrics
	ProgressInterval time.Duration
}

// Skip describes a source or document that produced no items.
type Skip struct {
	Source string `json:"source"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`

	err error
}

// Err returns the underlying error.
func (s Skip) Err() error { return s.err }

// Batch is the outcome of Run.
type Batch struct {
	RunID    string        `json:"run_id"`
	Result   corpus.Result `json:"result"`
	Skipped  []Skip        `json:"skipped"`
	Progress Snapshot      `json:"progress"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}

func (o *Orchestrator) siteConcurrency() int {
	if o.SiteConcurrency > 0 {
		return o.SiteConcurrency
	}
	return DefaultSiteConcurrency
}

func (o *Orchestrator) itemTimeout() time.Duration {
	if o.ItemTimeout > 0 {
		return o.ItemTimeout
	}
	return DefaultItemTimeout
}

func (o *Orchestrator) siteTimeout() time.Duration {
	if o.SiteTimeout > 0 {
		return o.SiteTimeout
	}
	return DefaultSiteTimeout
}

func (o *Orchestrator) maxPages(n int) int {
	switch {
	case n > 0:
		return n
	case o.MaxPages > 0:
		return o.MaxPages
	default:
		return DefaultMaxPages
	}
}

// Discover returns the content URLs of a site grouped by type.
func (o *Orchestrator) Discover(ctx context.Context, startURL string, maxPages int) (map[string][]string, error) {
	rep, err := o.DiscoverReport(ctx, startURL, maxPages)
	if err != nil {
		return nil, err
	}
	return rep.URLsByType(), nil
}

// DiscoverReport runs discovery and returns the full report, including the
// strategy attempts.
func (o *Orchestrator) DiscoverReport(ctx context.Context, startURL string, maxPages int) (*discover.Report, error) {
	if o.Discoverer == nil {
		return nil, fmt.Errorf("%w: no discoverer configured", ErrInvalidInput)
	}
	rep, err := o.Discoverer.Discover(ctx, startURL, o.maxPages(maxPages))
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, l := range rep.Links {
		counts[string(l.Type)]++
	}
	o.Metrics.ObserveDiscovery(string(rep.Succeeded), rep.PagesVisited, counts)
	log.Info().Str("url", startURL).Str("strategy", string(rep.Succeeded)).Int("links", len(rep.Links)).
		Int("pages", rep.PagesVisited).Bool("budget_exhausted", rep.BudgetExhausted).Msg("discovery finished")
	return rep, nil
}

// ExtractAndChunk processes one source. The error is non-nil only when the
// source produced no items.
func (o *Orchestrator) ExtractAndChunk(ctx context.Context, src corpus.Source, teamID, userID string) ([]corpus.Item, error) {
	b, err := o.Run(ctx, []corpus.Source{src}, teamID, userID)
	if err != nil {
		return nil, err
	}
	if len(b.Result.Items) == 0 && len(b.Skipped) > 0 {
		errs := make([]error, 0, len(b.Skipped))
		for _, s := range b.Skipped {
			errs = append(errs, s.err)
		}
		return nil, errors.Join(errs...)
	}
	return b.Result.Items, nil
}

// Run processes a batch. Only unusable input is returned as an error;
// failures of individual sources and documents are reported in
// Batch.Skipped. Items keep source order, then discovery order, then chunk
// order.
func (o *Orchestrator) Run(ctx context.Context, sources []corpus.Source, teamID, userID string) (*Batch, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no sources", ErrInvalidInput)
	}
	if teamID == "" {
		return nil, fmt.Errorf("%w: empty team id", ErrInvalidInput)
	}
	if o.Extractor == nil {
		return nil, fmt.Errorf("%w: no extractor configured", ErrInvalidInput)
	}
	b := &Batch{RunID: uuid.NewString(), Result: corpus.Result{TeamID: teamID, Items: []corpus.Item{}}, Started: time.Now()}
	logger := log.With().Str("run_id", b.RunID).Logger()
	logger.Info().Int("sources", len(sources)).Msg("batch started")

	progress := &Progress{}
	stop := progress.Report(ctx, o.ProgressInterval, o.Metrics)

	plans := o.plan(ctx, sources)

	var docs []corpus.Source
	var skips []Skip
	seen := make(map[string]bool)
	for _, p := range plans {
		if p.skip != nil {
			skips = append(skips, *p.skip)
			progress.Add(1)
			progress.Done(false)
			continue
		}
		for _, src := range p.docs {
			key := dedupKey(src)
			if seen[key] {
				continue
			}
			seen[key] = true
			docs = append(docs, src)
		}
	}

	progress.Add(len(docs))
	items := make([][]corpus.Item, len(docs))
	failed := make([]*Skip, len(docs))
	var g errgroup.Group
	g.SetLimit(o.concurrency())
	for i, src := range docs {
		g.Go(func() error {
			out, err := o.process(ctx, src, userID)
			if err != nil {
				s := skipFor(src.URI, err)
				failed[i] = &s
				progress.Done(false)
				return nil
			}
			items[i] = out
			progress.Done(true)
			return nil
		})
	}
	_ = g.Wait()
	stop()

	for i := range docs {
		if failed[i] != nil {
			skips = append(skips, *failed[i])
			continue
		}
		b.Result.Items = append(b.Result.Items, items[i]...)
	}
	b.Skipped = skips
	b.Progress = progress.Snapshot()
	b.Finished = time.Now()
	logger.Info().Int("items", len(b.Result.Items)).Int("skipped", len(b.Skipped)).
		Dur("took", b.Finished.Sub(b.Started)).Msg("batch finished")
	return b, nil
}

type plan struct {
	docs []corpus.Source
	skip *Skip
}

// plan expands every source into the documents to extract. Sites are
// discovered concurrently; everything else maps to itself.
func (o *Orchestrator) plan(ctx context.Context, sources []corpus.Source) []plan {
	plans := make([]plan, len(sources))
	var g errgroup.Group
	g.SetLimit(o.siteConcurrency())
	for i, src := range sources {
		if !src.IsURL() || classify.Source(src) == corpus.TypePDF || o.Discoverer == nil {
			plans[i] = plan{docs: []corpus.Source{src}}
			continue
		}
		g.Go(func() error {
			plans[i] = o.planSite(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return plans
}

func (o *Orchestrator) planSite(ctx context.Context, src corpus.Source) plan {
	dctx, cancel := context.WithTimeout(ctx, o.siteTimeout())
	defer cancel()
	rep, err := o.DiscoverReport(dctx, src.URI, 0)
	if err == nil && dctx.Err() != nil {
		err = fmt.Errorf("discover %s: %w", src.URI, dctx.Err())
	}
	if err != nil {
		s := skipFor(src.URI, &corpus.StageError{Source: src.URI, Stage: "discover", Err: err})
		o.Metrics.ObserveSkip(s.Reason)
		log.Warn().Str("source", src.URI).Str("stage", s.Stage).Str("reason", s.Reason).Err(err).Msg("site skipped")
		return plan{skip: &s}
	}
	var docs []corpus.Source
	if o.IncludeStartPage || len(rep.Links) == 0 {
		docs = append(docs, corpus.NewSource(src.URI, src.Declared))
	}
	for _, l := range rep.Links {
		docs = append(docs, corpus.NewSource(l.URL, l.Type))
	}
	return plan{docs: docs}
}

// process extracts and chunks one document under the per-item timeout.
func (o *Orchestrator) process(ctx context.Context, src corpus.Source, userID string) ([]corpus.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, &corpus.StageError{Source: src.URI, Stage: "schedule", Err: err}
	}
	ictx, cancel := context.WithTimeout(ctx, o.itemTimeout())
	defer cancel()
	res, err := o.Extractor.ExtractSource(ictx, src)
	if err == nil && ictx.Err() != nil {
		err = &corpus.StageError{Source: src.URI, Stage: string(res.Strategy), Err: ictx.Err()}
	}
	if err != nil {
		s := skipFor(src.URI, err)
		o.Metrics.ObserveExtraction(s.Stage, s.Reason, res.Quality)
		o.Metrics.ObserveSkip(s.Reason)
		log.Warn().Str("source", src.URI).Str("stage", s.Stage).Str("reason", s.Reason).Err(err).Msg("document skipped")
		return nil, err
	}
	o.Metrics.ObserveExtraction(string(res.Strategy), "", res.Quality)
	items := o.items(res, src, userID)
	if len(items) == 0 {
		err := &corpus.StageError{Source: src.URI, Stage: "chunk", Err: fmt.Errorf("%w: empty text", corpus.ErrQualityTooLow)}
		log.Warn().Str("source", src.URI).Str("stage", "chunk").Str("reason", corpus.Reason(err)).Msg("document skipped")
		return nil, err
	}
	o.Metrics.ObserveItems(string(items[0].ContentType), len(items))
	log.Debug().Str("source", src.URI).Str("stage", string(res.Strategy)).Float64("quality", res.Quality).
		Int("items", len(items)).Msg("document extracted")
	return items, nil
}

func (o *Orchestrator) items(res extract.Result, src corpus.Source, userID string) []corpus.Item {
	chunks := o.Chunker.Split(res.Text)
	if len(chunks) == 0 {
		return nil
	}
	t := res.Type
	if t == "" {
		t = classify.Source(src)
	}
	title := res.Title
	if title == "" {
		title = src.URI
	}
	sourceURL := res.SourceURL
	if sourceURL == "" || !src.IsURL() {
		sourceURL = src.URI
	}
	out := make([]corpus.Item, 0, len(chunks))
	for i, c := range chunks {
		it := corpus.Item{
			Title:       title,
			Content:     c,
			ContentType: corpus.ContentTypeFor(t),
			SourceURL:   sourceURL,
			Author:      res.Author,
			UserID:      userID,
		}
		if o.NumberParts && len(chunks) > 1 {
			it.Title = fmt.Sprintf("%s (part %d)", title, i+1)
		}
		out = append(out, it)
	}
	return out
}

func skipFor(source string, err error) Skip {
	stage := corpus.StageOf(err)
	if stage == "" {
		stage = "extract"
	}
	return Skip{Source: source, Stage: stage, Reason: corpus.Reason(err), Error: err.Error(), err: err}
}

// dedupKey identifies a document across the batch.
func dedupKey(src corpus.Source) string {
	if src.IsURL() {
		if k, err := aggregate.NormalizeURL(src.URI); err == nil {
			return k
		}
		return src.URI
	}
	if abs, err := filepath.Abs(src.URI); err == nil {
		return "file:" + abs
	}
	return "file:" + filepath.Clean(src.URI)
}
