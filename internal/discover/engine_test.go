package discover

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperifyio/gocorpus/internal/browser"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
	"github.com/hyperifyio/gocorpus/internal/robots"
)

func newEngine(pool *browser.Pool) *Engine {
	return &Engine{Fetcher: &fetch.Client{UserAgent: "gocorpus-test/1.0"}, Browser: pool}
}

func TestBrowserStrategy_ScrollsBeforeHarvest(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="app"></div></body></html>`))
	}))
	defer srv.Close()

	l := &browser.FuncLauncher{Render: func(context.Context, string) (string, error) {
		return `<html><body><article><h2><a href="/blog/lazy-loaded-post">Lazy</a></h2></article></body></html>`, nil
	}}
	e := newEngine(browser.NewPool(l, 1))
	e.Strategies = []Strategy{&BrowserStrategy{}}
	rep, err := e.Discover(context.Background(), srv.URL+"/", 5)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if rep.Succeeded != StrategyBrowser || len(rep.Links) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if l.Scrolls() != 1 {
		t.Fatalf("expected one scroll before reading the DOM, got %d", l.Scrolls())
	}
}

func countingPool(html string) (*browser.Pool, *int32) {
	var calls int32
	l := &browser.FuncLauncher{Render: func(context.Context, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return html, nil
	}}
	return browser.NewPool(l, 1), &calls
}

func TestDiscover_FeedBlog(t *testing.T) {
	t.Parallel()
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head><body>blog</body></html>`))
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/rss+xml")
		var items strings.Builder
		for i := 1; i <= 5; i++ {
			fmt.Fprintf(&items, "<item><title>Post %d</title><link>http://%s/blog/post-%d</link></item>", i, r.Host, i)
		}
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>%s</channel></rss>`, items.String())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pool, calls := countingPool("<html></html>")
	rep, err := newEngine(pool).Discover(context.Background(), srv.URL+"/", 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if rep.Succeeded != StrategyFeed || len(rep.Attempts) != 1 {
		t.Fatalf("expected feed-only success, got %+v", rep.Attempts)
	}
	if len(rep.Links) != 5 {
		t.Fatalf("expected 5 links, got %d: %+v", len(rep.Links), rep.Links)
	}
	for _, l := range rep.Links {
		if l.Type != corpus.TypeBlog || l.Confidence != 1.0 || l.DiscoveredBy != StrategyFeed {
			t.Fatalf("unexpected link %+v", l)
		}
	}
	if *calls != 0 || pool.Invocations() != 0 {
		t.Fatalf("browser should not be used, invocations=%d", pool.Invocations())
	}
	if rep.PagesVisited > 10 || rep.PagesVisited != int(atomic.LoadInt32(&hits)) {
		t.Fatalf("pages visited=%d hits=%d", rep.PagesVisited, hits)
	}
	if got := rep.URLsByType()["blog"]; len(got) != 5 {
		t.Fatalf("URLsByType = %v", rep.URLsByType())
	}
}

func TestDiscover_JSOnlySiteUsesBrowser(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="root"></div><script src="/static/app.js"></script></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rendered := `<html><body><div id="root">
		<article><h2><a href="/blog/first-post">First</a></h2></article>
		<article><h2><a href="/blog/second-post">Second</a></h2></article>
		<a href="/about">About</a></div></body></html>`
	pool, calls := countingPool(rendered)
	rep, err := newEngine(pool).Discover(context.Background(), srv.URL+"/", 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if rep.Succeeded != StrategyBrowser {
		t.Fatalf("expected browser success, got %q (%+v)", rep.Succeeded, rep.Attempts)
	}
	if len(rep.Attempts) != 3 || rep.Attempts[0].Found != 0 || rep.Attempts[1].Found != 0 {
		t.Fatalf("expected feed and api to come up empty first: %+v", rep.Attempts)
	}
	if len(rep.Links) != 2 || *calls != 1 {
		t.Fatalf("links=%+v renders=%d", rep.Links, *calls)
	}
	if rep.Links[0].Confidence != ConfidenceBrowser {
		t.Fatalf("confidence %v", rep.Links[0].Confidence)
	}
	if pool.Active() != 0 {
		t.Fatalf("browser session not released")
	}
}

func TestDiscover_BudgetRespected(t *testing.T) {
	t.Parallel()
	var pages int32
	mux := http.NewServeMux()
	listing := func(w http.ResponseWriter, n int) {
		atomic.AddInt32(&pages, 1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
			<article><h2><a href="/blog/post-%d-a">A</a></h2></article>
			<article><h2><a href="/blog/post-%d-b">B</a></h2></article>
			<a rel="next" href="/blog/page/%d">Next</a></body></html>`, n, n, n+1)
	}
	mux.HandleFunc("/blog", func(w http.ResponseWriter, r *http.Request) { listing(w, 1) })
	mux.HandleFunc("/blog/page/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/blog/page/"), "%d", &n)
		listing(w, n)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newEngine(nil)
	e.MaxListingPages = 50
	rep, err := e.Discover(context.Background(), srv.URL+"/blog", 3)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if rep.PagesVisited > 3 || atomic.LoadInt32(&pages) > 3 {
		t.Fatalf("budget overrun: visited=%d served=%d", rep.PagesVisited, pages)
	}
	if !rep.BudgetExhausted {
		t.Fatalf("expected budget exhaustion to be reported")
	}
	if rep.Succeeded != StrategyStatic || len(rep.Links) != 6 {
		t.Fatalf("expected partial static result, got %q %+v", rep.Succeeded, rep.Links)
	}
}

func TestDiscover_DedupAcrossFeedEntries(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>t</title>
			<entry><title>a</title><link href="http://%[1]s/blog/a"/><id>1</id></entry>
			<entry><title>a again</title><link href="http://%[1]s/blog/a/?utm_source=rss#top"/><id>2</id></entry>
			<entry><title>pdf</title><link href="http://%[1]s/files/guide.pdf"/><id>3</id></entry>
			</feed>`, r.Host)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rep, err := newEngine(nil).Discover(context.Background(), srv.URL+"/", 5)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(rep.Links) != 2 {
		t.Fatalf("expected deduplicated links, got %+v", rep.Links)
	}
	by := rep.ByType()
	if len(by[corpus.TypeBlog]) != 1 || len(by[corpus.TypePDF]) != 1 {
		t.Fatalf("unexpected grouping %+v", by)
	}
}

func TestDiscover_APIEndpointFromPage(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><script>fetch("/api/v2/stories?limit=2").then(r => r.json())</script></body></html>`))
	})
	mux.HandleFunc("/api/v2/stories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			_, _ = w.Write([]byte(`{"data":[{"slug":"one","title":"One"},{"slug":"two","title":"Two"}]}`))
		case "2":
			_, _ = w.Write([]byte(`{"data":[{"slug":"three","title":"Three"}]}`))
		default:
			_, _ = w.Write([]byte(`{"data":[]}`))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pool, calls := countingPool("<html></html>")
	rep, err := newEngine(pool).Discover(context.Background(), srv.URL+"/", 20)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if rep.Succeeded != StrategyAPI {
		t.Fatalf("expected api success, got %q %+v", rep.Succeeded, rep.Attempts)
	}
	if len(rep.Links) != 3 || !strings.HasSuffix(rep.Links[2].URL, "/blog/three") {
		t.Fatalf("unexpected links %+v", rep.Links)
	}
	if *calls != 0 {
		t.Fatalf("api discovery must not render")
	}
}

func TestStaticStrategy_ReconstructsSlugs(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/engineering", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><main>
			<div class="card"><h2>Scaling Our Queue Workers</h2><p>teaser</p></div>
			<div class="post"><h3><a href="/engineering/incident-review-2024">Incident review</a></h3></div>
			<a href="/careers">Careers</a>
			<a href="/tag/go">Go</a>
			</main></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newEngine(nil)
	e.Strategies = []Strategy{&StaticStrategy{}}
	rep, err := e.Discover(context.Background(), srv.URL+"/engineering", 5)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	got := rep.URLsByType()["blog"]
	want := map[string]bool{
		srv.URL + "/engineering/incident-review-2024":   true,
		srv.URL + "/engineering/scaling-our-queue-workers": true,
	}
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	for _, u := range got {
		if !want[u] {
			t.Fatalf("unexpected url %s", u)
		}
	}
}

func TestSitemapStrategy_NestedGzip(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nDisallow: /blog/secret\nSitemap: http://%s/sitemap_posts.xml.gz\n", r.Host)
	})
	mux.HandleFunc("/sitemap_posts.xml.gz", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		fmt.Fprintf(zw, `<?xml version="1.0"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
			<url><loc>http://%[1]s/blog/alpha</loc></url>
			<url><loc>http://%[1]s/about</loc></url>
			<url><loc>http://%[1]s/blog/secret-plan</loc></url>
			<url><loc>http://%[1]s/tag/go</loc></url>
			<url><loc>https://elsewhere.example/blog/x</loc></url>
			</urlset>`, r.Host)
		_ = zw.Close()
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
			<sitemap><loc>http://%s/sitemap-2024.xml</loc></sitemap></sitemapindex>`, r.Host)
	})
	mux.HandleFunc("/sitemap-2024.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset><url><loc>http://%s/2024/05/beta-release</loc></url></urlset>`, r.Host)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newEngine(nil)
	e.Strategies = []Strategy{&SitemapStrategy{}}
	e.Robots = &robots.Manager{HTTPClient: srv.Client(), AllowPrivateHosts: true}
	e.RespectRobots = true
	rep, err := e.Discover(context.Background(), srv.URL+"/", 10)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if rep.Succeeded != "" {
		t.Fatalf("sitemap confidence is below the default minimum, got success %q", rep.Succeeded)
	}
	got := rep.URLsByType()["blog"]
	if len(got) != 2 || got[0] != srv.URL+"/blog/alpha" || got[1] != srv.URL+"/2024/05/beta-release" {
		t.Fatalf("unexpected sitemap links %v", got)
	}
	if rep.Links[0].Confidence != ConfidenceSitemap {
		t.Fatalf("confidence %v", rep.Links[0].Confidence)
	}
}

func TestDiscover_InvalidStart(t *testing.T) {
	t.Parallel()
	if _, err := newEngine(nil).Discover(context.Background(), "ftp://example.com", 5); err == nil {
		t.Fatalf("expected error for non-http start url")
	}
}

func TestProfiles_LoadAndMatch(t *testing.T) {
	t.Parallel()
	p := writeProfiles(t, `profiles:
  - name: docs
    hosts: [docs.example.com]
    content_patterns: ['^/guides/[^/]+$']
    requires_js: true
`)
	profiles, err := LoadProfiles(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m := matchProfile(profiles, "DOCS.example.com")
	if m == nil || !m.RequiresJS {
		t.Fatalf("profile not matched: %+v", m)
	}
	if matchProfile(append(profiles, BuiltinProfiles()...), "someone.substack.com").Name != "substack" {
		t.Fatalf("builtin substack profile not matched")
	}
	if _, err := LoadProfiles(writeProfiles(t, "profiles:\n  - content_patterns: ['(']\n")); err == nil {
		t.Fatalf("expected bad pattern error")
	}
}
