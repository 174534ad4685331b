package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/gocorpus/internal/discover"
	"github.com/hyperifyio/gocorpus/internal/store"
)

// isolate clears env vars that would leak host configuration into a run.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TEAM_ID", "USER_ID", "OUTPUT", "MONGO_URI", "GOCORPUS_CACHE_DIR", "CACHE_DIR", "CACHE_MAX_AGE", "BROWSER_DISABLE"} {
		t.Setenv(k, "")
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append(args, "--env-file", ""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func articleFile(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("<html><head><title>Warm Pages</title></head><body><article><h1>Warm Pages</h1>")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "<p>Section %d describes how the buffer pool keeps hot pages resident. "+
			"Eviction follows a clock sweep. Dirty pages are flushed by a background writer before reuse.</p>", i)
	}
	b.WriteString("</article></body></html>")
	p := filepath.Join(t.TempDir(), "warm-pages.html")
	if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write article: %v", err)
	}
	return p
}

func TestRun_Version(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "version")
	if code != exitOK || !strings.HasPrefix(out, "gocorpus 0.0.0-dev") {
		t.Fatalf("code=%d out=%q", code, out)
	}
}

func TestRun_ScrapeLocalFile(t *testing.T) {
	isolate(t)
	out := filepath.Join(t.TempDir(), "corpus.json")
	code, stdout, stderr := runCLI(t, "scrape", articleFile(t), "--team", "t1", "--user", "u1", "-o", out, "--browser.disable")
	if code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "written to "+out) {
		t.Fatalf("summary missing: %q", stdout)
	}
	res, err := store.ReadResult(out)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if res.TeamID != "t1" || len(res.Items) != 1 || res.Items[0].Title != "Warm Pages" || res.Items[0].UserID != "u1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRun_ZeroItemsExitsTwo(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	code, stdout, _ := runCLI(t, "scrape", filepath.Join(dir, "missing.pdf"), "--team", "t1", "-o", filepath.Join(dir, "c.json"), "--browser.disable")
	if code != exitNoItems {
		t.Fatalf("exit %d, want %d", code, exitNoItems)
	}
	if !strings.Contains(stdout, "missing.pdf") {
		t.Fatalf("skip table should list the source: %q", stdout)
	}
}

func TestRun_ConfigErrorsExitOne(t *testing.T) {
	isolate(t)
	cases := [][]string{
		{"scrape", "https://example.com", "--browser.disable"},
		{"scrape", "https://example.com", "--team", "t", "--quality", "2"},
		{"discover", "ftp://example.com"},
		{"cache", "purge", "--cache.dir", t.TempDir()},
		{"scrape", "x", "--team", "t", "--config", filepath.Join(t.TempDir(), "missing.yaml")},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, args...); code != exitFailure {
			t.Fatalf("%v: exit %d, want %d", args, code, exitFailure)
		}
	}
}

func TestRun_DiscoverJSON(t *testing.T) {
	isolate(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" href="/rss.xml"></head><body></body></html>`))
	})
	mux.HandleFunc("/rss.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		var items strings.Builder
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(&items, "<item><title>P%d</title><link>http://%s/blog/post-%d</link></item>", i, r.Host, i)
		}
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>%s</channel></rss>`, items.String())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	code, stdout, stderr := runCLI(t, "discover", srv.URL+"/", "--json", "--browser.disable")
	if code != exitOK {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	var rep discover.Report
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	if rep.Succeeded != discover.StrategyFeed || len(rep.Links) != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	code, stdout, _ = runCLI(t, "discover", srv.URL+"/", "--browser.disable")
	if code != exitOK || !strings.Contains(stdout, "/blog/post-2") || !strings.Contains(stdout, "strategy feed, 3 links") {
		t.Fatalf("table output: %q", stdout)
	}
}

func TestRun_CacheClearAndPurge(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	stale := filepath.Join(dir, "abc.meta.json")
	if err := os.WriteFile(stale, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code, out, _ := runCLI(t, "cache", "purge", "--cache.dir", dir, "--cache.maxEntries", "100"); code != exitOK || !strings.Contains(out, "removed") {
		t.Fatalf("purge: exit %d %q", code, out)
	}
	if code, _, _ := runCLI(t, "cache", "clear", "--cache.dir", dir); code != exitOK {
		t.Fatalf("clear: exit %d", code)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("cache entry survived clear: %v", err)
	}
}
