package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/gocorpus/internal/aggregate"
	"github.com/hyperifyio/gocorpus/internal/cache"
	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// Response is a fetched page.
type Response struct {
	URL         string
	FinalURL    string
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
	FromCache   bool
	Bypassed    bool
}

// Options tune a single request.
type Options struct {
	// Accept overrides the Accept header.
	Accept string
	// NoBypass disables the anti-bot fallback for this request; a detected
	// challenge is reported as corpus.ErrBlocked instead.
	NoBypass bool
}

// Bypasser retrieves a page that answered with an anti-bot challenge,
// typically by rendering it in a real browser.
type Bypasser interface {
	Bypass(ctx context.Context, url string) (*Response, error)
}

// Client wraps http.Client and provides timeouts, limited retry on transient
// errors, caching, politeness and anti-bot fallback.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each attempt.
	PerRequestTimeout time.Duration
	// Optional on-disk cache keyed by normalized URL.
	Cache *cache.HTTPCache
	// BypassCache skips cache reads but still stores fresh responses.
	BypassCache bool
	// CacheOnly serves from cache and never touches the network.
	CacheOnly bool

	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests per client. Zero means unlimited.
	MaxConcurrent int
	// MaxBodyBytes rejects larger bodies. Zero means unlimited.
	MaxBodyBytes int64
	// HostRate is requests per second per host. Zero disables pacing.
	HostRate  float64
	HostBurst int

	Bypass Bypasser

	limiter     chan struct{}
	limiterOnce sync.Once

	hostMu sync.Mutex
	hosts  map[string]*rate.Limiter
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.code) }

var errChallenge = errors.New("anti-bot challenge")

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// Get fetches url with default options.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, url, Options{})
}

// Do fetches rawURL. Every returned error wraps corpus.ErrFetch.
func (c *Client) Do(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !isHTTPScheme(u) {
		return nil, fmt.Errorf("%w: unsupported URL %q", corpus.ErrFetch, rawURL)
	}
	key := cacheKey(rawURL)

	var meta *cache.HTTPEntry
	var cached []byte
	if c.Cache != nil && !c.BypassCache {
		if m, body, err := c.Cache.Lookup(ctx, key); err == nil {
			meta, cached = m, body
		}
	}
	if c.CacheOnly {
		if meta == nil {
			return nil, fmt.Errorf("%w: cache miss for %s", corpus.ErrFetch, rawURL)
		}
		return fromCache(rawURL, meta, cached), nil
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := c.tryOnce(ctx, rawURL, meta, opts)
		if err == nil {
			if resp.Status == http.StatusNotModified && meta != nil {
				return fromCache(rawURL, meta, cached), nil
			}
			c.store(ctx, key, resp)
			return resp, nil
		}
		if errors.Is(err, errChallenge) {
			return c.handleChallenge(ctx, key, rawURL, opts)
		}
		lastErr = err
		if !isTransient(ctx, err) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", corpus.ErrFetch, rawURL, ctx.Err())
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, fmt.Errorf("%w: %s: %w", corpus.ErrFetch, rawURL, lastErr)
}

func (c *Client) handleChallenge(ctx context.Context, key, rawURL string, opts Options) (*Response, error) {
	if c.Bypass == nil || opts.NoBypass {
		return nil, fmt.Errorf("%w: %s", corpus.ErrBlocked, rawURL)
	}
	resp, err := c.Bypass.Bypass(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bypass: %w", corpus.ErrBlocked, rawURL, err)
	}
	resp.Bypassed = true
	if resp.URL == "" {
		resp.URL = rawURL
	}
	if resp.FinalURL == "" {
		resp.FinalURL = rawURL
	}
	c.store(ctx, key, resp)
	return resp, nil
}

func (c *Client) store(ctx context.Context, key string, resp *Response) {
	if c.Cache == nil || resp.Status != http.StatusOK {
		return
	}
	entry := cache.HTTPEntry{
		URL:          key,
		FinalURL:     resp.FinalURL,
		ContentType:  resp.ContentType,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	_ = c.Cache.Save(ctx, entry, resp.Body)
}

func fromCache(rawURL string, meta *cache.HTTPEntry, body []byte) *Response {
	final := meta.FinalURL
	if final == "" {
		final = rawURL
	}
	h := http.Header{}
	h.Set("Content-Type", meta.ContentType)
	return &Response{
		URL:         rawURL,
		FinalURL:    final,
		Status:      http.StatusOK,
		ContentType: meta.ContentType,
		Header:      h,
		Body:        body,
		FromCache:   true,
	}
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, meta *cache.HTTPEntry, opts Options) (*Response, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if err := c.waitHost(ctx, req.URL.Host); err != nil {
		return nil, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	accept := opts.Accept
	if accept == "" {
		accept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
	req.Header.Set("Accept", accept)
	if meta != nil {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
	}
	if resp.StatusCode == http.StatusNotModified {
		return out, nil
	}

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if DetectChallenge(resp.StatusCode, resp.Header, body) {
		return nil, errChallenge
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}
	out.Body, out.ContentType = decodeHTML(body, out.ContentType)
	if out.ContentType != resp.Header.Get("Content-Type") {
		out.Header = resp.Header.Clone()
		out.Header.Set("Content-Type", out.ContentType)
	}
	return out, nil
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.MaxBodyBytes <= 0 {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return b, nil
	}
	b, err := io.ReadAll(io.LimitReader(r, c.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > c.MaxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", c.MaxBodyBytes)
	}
	return b, nil
}

// decodeHTML converts HTML bodies to UTF-8 using the declared or sniffed
// charset. Other media types are returned untouched.
func decodeHTML(body []byte, contentType string) ([]byte, string) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil || (mt != "text/html" && mt != "application/xhtml+xml") {
		return body, contentType
	}
	if cs := strings.ToLower(params["charset"]); cs == "utf-8" || cs == "utf8" {
		return body, contentType
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body, contentType
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return body, contentType
	}
	return decoded, mt + "; charset=utf-8"
}

func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func cacheKey(rawURL string) string {
	if n, err := aggregate.NormalizeURL(rawURL); err == nil {
		return n
	}
	return rawURL
}

func (c *Client) waitHost(ctx context.Context, host string) error {
	if c.HostRate <= 0 {
		return nil
	}
	c.hostMu.Lock()
	if c.hosts == nil {
		c.hosts = make(map[string]*rate.Limiter)
	}
	l, ok := c.hosts[host]
	if !ok {
		burst := c.HostBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(c.HostRate), burst)
		c.hosts[host] = l
	}
	c.hostMu.Unlock()
	return l.Wait(ctx)
}

// acquire takes a request slot, giving up when ctx ends first.
func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
