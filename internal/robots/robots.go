// Package robots fetches and caches robots.txt per host and answers
// allow/sitemap/crawl-delay questions for discovery.
package robots

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/hyperifyio/gocorpus/internal/cache"
)

type Source int

const (
	SourceNetwork Source = iota
	SourceMemory
	SourceCache304
)

// Manager fetches robots.txt once per host and keeps it in memory until
// EntryExpiry. 4xx answers allow everything; 5xx and network failures
// disallow everything until the entry expires.
type Manager struct {
	HTTPClient        *http.Client
	Cache             *cache.HTTPCache
	UserAgent         string
	EntryExpiry       time.Duration
	AllowPrivateHosts bool

	mu  sync.Mutex
	mem map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	data   *robotstxt.RobotsData
	expiry time.Time
}

// RobotsURL returns the robots.txt location for any URL on a site.
func RobotsURL(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) || u.Host == "" {
		return "", fmt.Errorf("unsupported url: %q", siteURL)
	}
	return (&url.URL{Scheme: strings.ToLower(u.Scheme), Host: u.Host, Path: "/robots.txt"}).String(), nil
}

// Get returns the parsed robots.txt at robotsURL.
func (m *Manager) Get(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, Source, error) {
	m.mu.Lock()
	if m.now == nil {
		m.now = time.Now
	}
	if m.mem == nil {
		m.mem = make(map[string]memEntry)
	}
	m.mu.Unlock()

	u, err := url.Parse(robotsURL)
	if err != nil {
		return nil, SourceNetwork, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return nil, SourceNetwork, fmt.Errorf("unsupported url scheme: %q", robotsURL)
	}
	if !m.AllowPrivateHosts && isLocalOrPrivateHost(u.Hostname()) {
		return nil, SourceNetwork, fmt.Errorf("private host not allowed: %s", u.Hostname())
	}

	m.mu.Lock()
	if ent, ok := m.mem[robotsURL]; ok && m.now().Before(ent.expiry) {
		m.mu.Unlock()
		return ent.data, SourceMemory, nil
	}
	m.mu.Unlock()

	var meta *cache.HTTPEntry
	if m.Cache != nil {
		if e, err := m.Cache.LoadMeta(ctx, robotsURL); err == nil {
			meta = e
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, SourceNetwork, fmt.Errorf("new request: %w", err)
	}
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}
	if meta != nil {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}
	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, SourceNetwork, ctx.Err()
		}
		data := disallowAll()
		m.storeMem(robotsURL, data)
		return data, SourceNetwork, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && m.Cache != nil {
		body, err := m.Cache.LoadBody(ctx, robotsURL)
		if err != nil {
			return nil, SourceCache304, fmt.Errorf("load cached robots: %w", err)
		}
		data, err := robotstxt.FromBytes(body)
		if err != nil {
			return nil, SourceCache304, fmt.Errorf("parse cached robots: %w", err)
		}
		m.storeMem(robotsURL, data)
		return data, SourceCache304, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, SourceNetwork, fmt.Errorf("read robots: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, SourceNetwork, fmt.Errorf("parse robots: %w", err)
	}
	if m.Cache != nil && resp.StatusCode == http.StatusOK {
		_ = m.Cache.Save(ctx, cache.HTTPEntry{
			URL:          robotsURL,
			ContentType:  "text/plain",
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}, body)
	}
	m.storeMem(robotsURL, data)
	return data, SourceNetwork, nil
}

// ForSite returns robots data for the host of siteURL.
func (m *Manager) ForSite(ctx context.Context, siteURL string) (*robotstxt.RobotsData, error) {
	ru, err := RobotsURL(siteURL)
	if err != nil {
		return nil, err
	}
	data, _, err := m.Get(ctx, ru)
	return data, err
}

// Allowed reports whether pageURL may be fetched. Lookup errors allow.
func (m *Manager) Allowed(ctx context.Context, pageURL string) bool {
	data, err := m.ForSite(ctx, pageURL)
	if err != nil || data == nil {
		return true
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return true
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return data.TestAgent(p, m.agent())
}

// Sitemaps returns Sitemap: entries declared for the site.
func (m *Manager) Sitemaps(ctx context.Context, siteURL string) []string {
	data, err := m.ForSite(ctx, siteURL)
	if err != nil || data == nil {
		return nil
	}
	return append([]string(nil), data.Sitemaps...)
}

// CrawlDelay returns the delay requested for our agent, or zero.
func (m *Manager) CrawlDelay(ctx context.Context, siteURL string) time.Duration {
	data, err := m.ForSite(ctx, siteURL)
	if err != nil || data == nil {
		return 0
	}
	if g := data.FindGroup(m.agent()); g != nil {
		return g.CrawlDelay
	}
	return 0
}

func (m *Manager) agent() string {
	if m.UserAgent == "" {
		return "*"
	}
	// robotstxt matches on the product token.
	return strings.SplitN(m.UserAgent, "/", 2)[0]
}

func (m *Manager) storeMem(key string, data *robotstxt.RobotsData) {
	exp := m.EntryExpiry
	if exp <= 0 {
		exp = 30 * time.Minute
	}
	m.mu.Lock()
	m.mem[key] = memEntry{data: data, expiry: m.now().Add(exp)}
	m.mu.Unlock()
}

func disallowAll() *robotstxt.RobotsData {
	data, _ := robotstxt.FromStatusAndBytes(http.StatusServiceUnavailable, nil)
	return data
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" || h == "::1" || h == "[::1]" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return true
		}
	}
	return false
}
