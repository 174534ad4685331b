package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/gocorpus/internal/cache"
)

func TestManager_FetchOncePerRun_WithETagRevalidation(t *testing.T) {
	t.Parallel()
	var hits int32
	const etag = `W/"v1"`
	body := "User-agent: *\nDisallow: /private\nSitemap: https://example.com/sitemap-posts.xml\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("ETag", etag)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	dir := t.TempDir()
	m := &Manager{HTTPClient: srv.Client(), Cache: &cache.HTTPCache{Dir: dir}, UserAgent: "gocorpus-test/1.0", EntryExpiry: time.Hour, AllowPrivateHosts: true}

	u := srv.URL + "/robots.txt"
	data, src, err := m.Get(ctx, u)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if src != SourceNetwork {
		t.Fatalf("expected SourceNetwork on first get, got %v", src)
	}
	if data.TestAgent("/private/x", "gocorpus-test") {
		t.Fatalf("expected /private disallowed")
	}
	if _, src, _ := m.Get(ctx, u); src != SourceMemory {
		t.Fatalf("expected SourceMemory on second get, got %v", src)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected one network hit, got %d", hits)
	}

	// A fresh manager sharing the disk cache revalidates with the ETag.
	m2 := &Manager{HTTPClient: srv.Client(), Cache: &cache.HTTPCache{Dir: dir}, UserAgent: "gocorpus-test/1.0", AllowPrivateHosts: true}
	data2, src2, err := m2.Get(ctx, u)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if src2 != SourceCache304 {
		t.Fatalf("expected SourceCache304, got %v", src2)
	}
	if len(data2.Sitemaps) != 1 {
		t.Fatalf("expected sitemap from cached body, got %v", data2.Sitemaps)
	}
}

func TestMissingRobots404_ProceedAllowed_WithMemCache(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&hits, 1)
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	m := &Manager{HTTPClient: srv.Client(), UserAgent: "gocorpus-test/1.0", EntryExpiry: time.Minute, AllowPrivateHosts: true}
	if !m.Allowed(context.Background(), srv.URL+"/any/path") {
		t.Fatalf("expected allow with missing robots 404")
	}
	if !m.Allowed(context.Background(), srv.URL+"/other") {
		t.Fatalf("expected allow on second check")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
}

func TestMissingRobots_TemporaryDisallow_On5xxAndTimeout(t *testing.T) {
	t.Parallel()
	srv503 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv503.Close)
	m1 := &Manager{HTTPClient: srv503.Client(), EntryExpiry: time.Minute, AllowPrivateHosts: true}
	if m1.Allowed(context.Background(), srv503.URL+"/any") {
		t.Fatalf("expected disallow-all on 5xx")
	}

	srvTO := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srvTO.Close)
	base := *srvTO.Client()
	base.Timeout = 50 * time.Millisecond
	m2 := &Manager{HTTPClient: &base, EntryExpiry: time.Minute, AllowPrivateHosts: true}
	if m2.Allowed(context.Background(), srvTO.URL+"/any") {
		t.Fatalf("expected disallow-all on timeout")
	}
}

func TestManager_SitemapsAndCrawlDelay(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: gocorpus\nCrawl-delay: 2\nDisallow: /drafts\n\nUser-agent: *\nDisallow: /\n\nSitemap: https://example.com/a.xml\nSitemap: https://example.com/b.xml\n"))
	}))
	t.Cleanup(srv.Close)
	m := &Manager{HTTPClient: srv.Client(), UserAgent: "gocorpus/1.0 (+https://github.com/hyperifyio/gocorpus)", AllowPrivateHosts: true}
	ctx := context.Background()
	if got := m.Sitemaps(ctx, srv.URL+"/blog"); len(got) != 2 {
		t.Fatalf("expected 2 sitemaps, got %v", got)
	}
	if got := m.CrawlDelay(ctx, srv.URL); got != 2*time.Second {
		t.Fatalf("crawl delay = %v", got)
	}
	if !m.Allowed(ctx, srv.URL+"/blog/post") {
		t.Fatalf("specific group should allow /blog/post")
	}
	if m.Allowed(ctx, srv.URL+"/drafts/x") {
		t.Fatalf("expected /drafts disallowed")
	}
}

func TestManager_RejectsPrivateHosts(t *testing.T) {
	t.Parallel()
	m := &Manager{}
	if _, _, err := m.Get(context.Background(), "http://127.0.0.1/robots.txt"); err == nil {
		t.Fatalf("expected private host rejected")
	}
	if !m.Allowed(context.Background(), "http://127.0.0.1/x") {
		t.Fatalf("lookup errors should allow")
	}
}
