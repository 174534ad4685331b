package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/gocorpus/internal/browser"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
)

func mustDoc(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func articleHTML(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><head><title>%s | Site</title><meta name="author" content="Ada Lovelace"></head><body>
		<nav><a href="/">Home</a><a href="/blog">Blog</a></nav>
		<div class="sidebar"><a href="/x">Related one</a><a href="/y">Related two</a></div>
		<article class="post-content"><h1>%s</h1>`, title, title)
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&b, "<p>Paragraph %d explains how bounded worker pools keep a crawler responsive, "+
			"why every fetch must honour a context deadline, and how retries with backoff avoid hammering "+
			"servers that are already struggling under load from other clients.</p>", i)
	}
	b.WriteString(`</article><footer>Copyright 2024. All rights reserved.</footer></body></html>`)
	return b.String()
}

type fakeStage struct {
	id    corpus.StrategyID
	text  string
	err   error
	panic bool
	calls *[]corpus.StrategyID
}

func (f fakeStage) ID() corpus.StrategyID { return f.id }

func (f fakeStage) Attempt(context.Context, *Page) (Document, error) {
	*f.calls = append(*f.calls, f.id)
	if f.panic {
		panic("stage exploded")
	}
	return Document{Title: string(f.id), Text: f.text}, f.err
}

func TestExtractPage_StopsAtFirstPassingStage(t *testing.T) {
	t.Parallel()
	var calls []corpus.StrategyID
	good := strings.Repeat("A complete sentence about caching layers and their trade-offs. ", 10)
	good = strings.Repeat(good+"\n\n", 5)
	e := &Engine{Stages: []Stage{
		fakeStage{id: "broken", panic: true, calls: &calls},
		fakeStage{id: "failing", err: errors.New("boom"), calls: &calls},
		fakeStage{id: "weak", text: "Short teaser.", calls: &calls},
		fakeStage{id: "strong", text: good, calls: &calls},
		fakeStage{id: "never", text: good, calls: &calls},
	}}
	res, err := e.ExtractPage(context.Background(), &Page{URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Strategy != "strong" || !res.Success || res.Quality < DefaultThreshold {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(calls) != 4 || calls[3] != "strong" {
		t.Fatalf("later stages must not run after a pass: %v", calls)
	}
	if len(res.Attempts) != 4 || res.Attempts[0].Err == nil || !strings.Contains(res.Attempts[0].Err.Error(), "panic") {
		t.Fatalf("attempts not recorded: %+v", res.Attempts)
	}
}

func TestExtractPage_QualityTooLow(t *testing.T) {
	t.Parallel()
	page := &Page{URL: "https://example.com/tiny", HTML: []byte(`<html><body><p>Hi.</p></body></html>`)}
	e := &Engine{}
	res, err := e.ExtractPage(context.Background(), page)
	if !errors.Is(err, corpus.ErrQualityTooLow) {
		t.Fatalf("expected ErrQualityTooLow, got %v", err)
	}
	if res.Success || res.Text == "" {
		t.Fatalf("best below-threshold result should still be reported: %+v", res)
	}
	e.AcceptBelowThreshold = true
	res, err = e.ExtractPage(context.Background(), page)
	if err != nil || !res.Success || !strings.Contains(res.Text, "Hi.") {
		t.Fatalf("accept below threshold: %+v %v", res, err)
	}
}

func TestExtractSource_StaticArticleIsIdempotent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML("Worker Pools in Practice")))
	}))
	defer srv.Close()

	e := &Engine{Fetcher: &fetch.Client{}}
	src := corpus.NewSource(srv.URL+"/blog/worker-pools", "")
	first, err := e.ExtractSource(context.Background(), src)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, err := e.ExtractSource(context.Background(), src)
	if err != nil {
		t.Fatalf("extract again: %v", err)
	}
	if first.Strategy != second.Strategy || first.Text != second.Text {
		t.Fatalf("extraction not idempotent: %s vs %s", first.Strategy, second.Strategy)
	}
	if first.Strategy != StageReadability && first.Strategy != StageDensity {
		t.Fatalf("expected an early static stage to win, got %s", first.Strategy)
	}
	if first.Author != "Ada Lovelace" || first.Title != "Worker Pools in Practice" {
		t.Fatalf("metadata title=%q author=%q", first.Title, first.Author)
	}
	if !strings.Contains(first.Text, "Paragraph 6") || strings.Contains(first.Text, "Related one") {
		t.Fatalf("unexpected text: %q", first.Text)
	}
	if first.Type != corpus.TypeBlog || first.SourceURL != src.URI {
		t.Fatalf("type=%q source=%q", first.Type, first.SourceURL)
	}
}

func TestExtractSource_RendersWhenStaticFetchFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	l := &browser.FuncLauncher{Render: func(context.Context, string) (string, error) {
		return articleHTML("Rendered Only"), nil
	}}
	pool := browser.NewPool(l, 1)
	e := &Engine{Fetcher: &fetch.Client{}, Browser: pool}
	res, err := e.ExtractSource(context.Background(), corpus.NewSource(srv.URL+"/spa/post", corpus.TypeBlog))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Strategy != StageRendered || res.Title != "Rendered Only" {
		t.Fatalf("expected rendered stage, got %s %q", res.Strategy, res.Title)
	}
	if pool.Active() != 0 || l.Closed() != 1 {
		t.Fatalf("browser session leaked")
	}
}

func TestExtractSource_FetchFailureWithoutBrowser(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	e := &Engine{Fetcher: &fetch.Client{}}
	_, err := e.ExtractSource(context.Background(), corpus.NewSource(srv.URL+"/gone", ""))
	if !errors.Is(err, corpus.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if corpus.StageOf(err) == "" {
		t.Fatalf("stage missing from %v", err)
	}
}

func TestDensity_PicksArticleContainer(t *testing.T) {
	t.Parallel()
	doc, err := densityFromHTML([]byte(articleHTML("Density")))
	if err != nil {
		t.Fatalf("density: %v", err)
	}
	if !strings.HasPrefix(doc.Text, "# Density") || strings.Contains(doc.Text, "Home") || strings.Contains(doc.Text, "reserved") {
		t.Fatalf("unexpected container: %q", doc.Text)
	}
}

func TestParagraphs_SkipsChrome(t *testing.T) {
	t.Parallel()
	page := &Page{HTML: []byte(`<html><body>
		<header><p>This header paragraph is long enough to pass the length gate easily.</p></header>
		<div class="share-widget"><p>Share this article with everyone you know on every network.</p></div>
		<div><p>The only real paragraph in this document that should be kept intact.</p><p>tiny</p></div>
		</body></html>`)}
	doc, err := paragraphsStage{}.Attempt(context.Background(), page)
	if err != nil {
		t.Fatalf("paragraphs: %v", err)
	}
	if doc.Text != "The only real paragraph in this document that should be kept intact." {
		t.Fatalf("got %q", doc.Text)
	}
}

func TestReadMeta(t *testing.T) {
	t.Parallel()
	m := ReadMeta([]byte(`<html><head><title>T</title><meta property="og:title" content="OG Title"></head>
		<body><h1>H1</h1><span class="byline">By Grace Hopper | March 2024</span></body></html>`))
	if m.Title != "OG Title" || m.Author != "Grace Hopper" {
		t.Fatalf("meta = %+v", m)
	}
}
