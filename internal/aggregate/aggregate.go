package aggregate

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// trackingParams are dropped during normalization. Keys ending in '_' match
// any parameter with that prefix.
var trackingParams = []string{
	"utm_", "gclid", "fbclid", "msclkid", "dclid", "yclid", "gbraid", "wbraid",
	"mc_cid", "mc_eid", "_hsenc", "_hsmi", "igshid", "ref_src", "ref_url", "spm",
}

// NormalizeURL canonicalizes raw for deduplication: lowercased scheme and
// host, default port removed, dot segments resolved, trailing slash and
// fragment stripped, tracking parameters removed and the rest sorted.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if err := normalizeURL(u); err != nil {
		return "", err
	}
	return u.String(), nil
}

func normalizeURL(u *url.URL) error {
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.Path != "" {
		p := path.Clean(u.Path)
		if p == "/" || p == "." {
			p = ""
		}
		u.Path = strings.TrimSuffix(p, "/")
		u.RawPath = ""
	}
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isTrackingParam(key) {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	u.ForceQuery = false
	return nil
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	for _, p := range trackingParams {
		if strings.HasSuffix(p, "_") && strings.HasPrefix(k, p) {
			return true
		}
		if k == p {
			return true
		}
	}
	return false
}

// Resolve turns href, found on a page at base, into an absolute http(s) URL.
// Fragments, javascript: and mailto: links are rejected.
func Resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, p := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, p) {
			return "", false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// SameSite reports whether two URLs share a host, ignoring a leading "www.".
func SameSite(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return trimWWW(ua.Hostname()) == trimWWW(ub.Hostname())
}

func trimWWW(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}

// LinkSet is an insertion-ordered set of candidate links keyed by
// normalized URL. The first link added for a URL wins.
type LinkSet struct {
	mu    sync.Mutex
	index map[string]int
	links []corpus.CandidateLink
}

// NewLinkSet returns an empty set.
func NewLinkSet() *LinkSet {
	return &LinkSet{index: make(map[string]int)}
}

// Add normalizes l.URL and inserts the link. It returns false when the URL
// is invalid or already present.
func (s *LinkSet) Add(l corpus.CandidateLink) bool {
	key, err := NormalizeURL(l.URL)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[key]; ok {
		return false
	}
	l.URL = key
	s.index[key] = len(s.links)
	s.links = append(s.links, l)
	return true
}

// Contains reports whether raw (after normalization) is in the set.
func (s *LinkSet) Contains(raw string) bool {
	key, err := NormalizeURL(raw)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key]
	return ok
}

// Len returns the number of links.
func (s *LinkSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// Links returns a copy of the links in insertion order.
func (s *LinkSet) Links() []corpus.CandidateLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]corpus.CandidateLink, len(s.links))
	copy(out, s.links)
	return out
}

// GroupByType buckets links by their inferred type, keeping order.
func GroupByType(links []corpus.CandidateLink) map[corpus.Type][]corpus.CandidateLink {
	out := make(map[corpus.Type][]corpus.CandidateLink)
	for _, l := range links {
		out[l.Type] = append(out[l.Type], l)
	}
	return out
}
