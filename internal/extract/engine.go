// Package extract turns one resource into clean markdown by escalating
// through extraction stages until a quality gate passes.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocorpus/internal/browser"
	"github.com/hyperifyio/gocorpus/internal/classify"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
)

// DefaultThreshold is the quality a stage must reach to stop escalation.
const DefaultThreshold = 0.4

// Fetcher retrieves pages. *fetch.Client implements it.
type Fetcher interface {
	Do(ctx context.Context, url string, opts fetch.Options) (*fetch.Response, error)
}

// Attempt records one stage run.
type Attempt struct {
	Stage    corpus.StrategyID
	Quality  float64
	Err      error
	Duration time.Duration
}

// Result is the outcome of extracting one source.
type Result struct {
	Title     string
	Author    string
	Text      string
	Success   bool
	Strategy  corpus.StrategyID
	Quality   float64
	Type      corpus.Type
	SourceURL string
	Attempts  []Attempt
}

// Engine extracts blog pages and PDFs.
type Engine struct {
	Fetcher Fetcher
	Browser *browser.Pool
	Scroll  browser.ScrollOptions
	// Stages overrides the blog chain.
	Stages    []Stage
	Threshold float64
	// AcceptBelowThreshold returns the best result even when no stage
	// passes the gate.
	AcceptBelowThreshold bool
	PDF                  PDFOptions
}

func (e *Engine) threshold() float64 {
	if e.Threshold > 0 {
		return e.Threshold
	}
	return DefaultThreshold
}

func (e *Engine) stages() []Stage {
	if len(e.Stages) > 0 {
		return e.Stages
	}
	return DefaultStages(e.Browser, e.Scroll)
}

// Extract processes a discovered link.
func (e *Engine) Extract(ctx context.Context, link corpus.CandidateLink) (Result, error) {
	return e.ExtractSource(ctx, corpus.NewSource(link.URL, link.Type))
}

// ExtractSource processes a URL or a local file. Failures carry a
// corpus.StageError naming the stage that ended the chain.
func (e *Engine) ExtractSource(ctx context.Context, src corpus.Source) (Result, error) {
	t := classify.Source(src)
	if !src.IsURL() {
		return e.extractFile(ctx, src, t)
	}
	if e.Fetcher == nil {
		return Result{}, &corpus.StageError{Source: src.URI, Stage: "fetch", Err: fmt.Errorf("%w: no fetcher configured", corpus.ErrFetch)}
	}
	resp, ferr := e.Fetcher.Do(ctx, src.URI, fetch.Options{})
	if ferr == nil {
		t = classify.Refine(t, resp.ContentType)
		if t == corpus.TypeUnknown && isPDF(resp.Body) {
			t = corpus.TypePDF
		}
	}
	if t == corpus.TypePDF {
		if ferr != nil {
			return Result{Type: t, SourceURL: src.URI}, &corpus.StageError{Source: src.URI, Stage: "fetch", Err: ferr}
		}
		res, err := e.ExtractPDF(resp.Body, titleFromPath(src.URI))
		res.SourceURL = src.URI
		if err != nil {
			return res, &corpus.StageError{Source: src.URI, Stage: string(StagePDF), Err: err}
		}
		return res, nil
	}
	page := &Page{URL: src.URI}
	if ferr == nil {
		page.HTML = resp.Body
		if resp.FinalURL != "" {
			page.URL = resp.FinalURL
		}
	} else {
		log.Debug().Str("source", src.URI).Err(ferr).Msg("static fetch failed; only rendered stages can succeed")
	}
	res, err := e.ExtractPage(ctx, page)
	res.SourceURL = src.URI
	if err != nil && ferr != nil && res.Text == "" {
		err = ferr
	}
	if err != nil {
		return res, &corpus.StageError{Source: src.URI, Stage: lastStage(res), Err: err}
	}
	return res, nil
}

func (e *Engine) extractFile(ctx context.Context, src corpus.Source, t corpus.Type) (Result, error) {
	data, err := os.ReadFile(src.URI)
	if err != nil {
		return Result{}, &corpus.StageError{Source: src.URI, Stage: "read", Err: fmt.Errorf("%w: %w", corpus.ErrFetch, err)}
	}
	if t == corpus.TypePDF || isPDF(data) {
		res, err := e.ExtractPDF(data, titleFromPath(src.URI))
		if err != nil {
			return res, &corpus.StageError{Source: src.URI, Stage: string(StagePDF), Err: err}
		}
		return res, nil
	}
	ext := strings.ToLower(filepath.Ext(src.URI))
	if ext != ".html" && ext != ".htm" && t != corpus.TypeBlog {
		return Result{}, &corpus.StageError{Source: src.URI, Stage: "classify", Err: fmt.Errorf("%w: %s", corpus.ErrUnsupportedDocument, ext)}
	}
	abs, _ := filepath.Abs(src.URI)
	res, err := e.ExtractPage(ctx, &Page{URL: "file://" + filepath.ToSlash(abs), HTML: data})
	if err != nil {
		return res, &corpus.StageError{Source: src.URI, Stage: lastStage(res), Err: err}
	}
	return res, nil
}

// ExtractPage runs the blog chain over page. The first stage reaching the
// threshold wins and later stages are not invoked; otherwise the best
// result is returned with corpus.ErrQualityTooLow.
func (e *Engine) ExtractPage(ctx context.Context, page *Page) (Result, error) {
	threshold := e.threshold()
	best := Result{Type: corpus.TypeBlog, SourceURL: page.URL}
	var attempts []Attempt
	found := false
	for _, st := range e.stages() {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Stage: st.ID(), Err: err})
			break
		}
		began := time.Now()
		doc, err := runStage(ctx, st, page)
		a := Attempt{Stage: st.ID(), Err: err, Duration: time.Since(began)}
		if err == nil {
			doc.Text = Clean(doc.Text)
			a.Quality = Quality(doc.Text)
			if doc.Text == "" {
				a.Err = errNoContent
			}
		}
		attempts = append(attempts, a)
		log.Debug().Str("url", page.URL).Str("stage", string(st.ID())).Float64("quality", a.Quality).
			AnErr("error", a.Err).Dur("took", a.Duration).Msg("extraction stage finished")
		if a.Err != nil {
			continue
		}
		if !found || a.Quality > best.Quality {
			found = true
			best.Title, best.Author, best.Text = doc.Title, doc.Author, doc.Text
			best.Strategy, best.Quality = st.ID(), a.Quality
		}
		if a.Quality >= threshold {
			best.Success = true
			break
		}
	}
	best.Attempts = attempts
	e.applyMeta(&best, page)

	switch {
	case best.Success:
		return best, nil
	case !found:
		if err := ctx.Err(); err != nil {
			return best, err
		}
		return best, fmt.Errorf("%w: every stage failed", corpus.ErrQualityTooLow)
	case e.AcceptBelowThreshold:
		best.Success = true
		return best, nil
	default:
		return best, fmt.Errorf("%w: best %s scored %.2f", corpus.ErrQualityTooLow, best.Strategy, best.Quality)
	}
}

// runStage isolates a stage: panics become errors.
func runStage(ctx context.Context, st Stage, page *Page) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panic: %v", st.ID(), r)
		}
	}()
	return st.Attempt(ctx, page)
}

// applyMeta prefers document metadata over whatever the winning stage
// guessed.
func (e *Engine) applyMeta(r *Result, page *Page) {
	m := ReadMeta(page.HTML)
	if m.Title != "" {
		r.Title = m.Title
	}
	if m.Author != "" {
		r.Author = m.Author
	}
	if r.Title == "" {
		r.Title = titleFromPath(page.URL)
	}
}

func lastStage(r Result) string {
	if len(r.Attempts) == 0 {
		return "extract"
	}
	return string(r.Attempts[len(r.Attempts)-1].Stage)
}

func isPDF(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(b, "\x00\t\r\n "), []byte("%PDF-"))
}

// titleFromPath derives a title from the last path element.
func titleFromPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	base := path.Base(strings.TrimSuffix(filepath.ToSlash(p), "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "." || base == "/" {
		return ""
	}
	return base
}
