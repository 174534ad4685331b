package discover

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/hyperifyio/gocorpus/internal/corpus"
)

var defaultContentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/(blog|posts?|articles?|news|insights|stories|writing|learn|guides?|tutorials?|resources)/\d{4}/\d{2}(/\d{2})?/[^/]+$`),
	regexp.MustCompile(`^/(blog|posts?|articles?|news|insights|stories|writing|learn|guides?|tutorials?|resources|topics)/[^/]+$`),
	regexp.MustCompile(`^/\d{4}/\d{2}(/\d{2})?/[^/]+$`),
	regexp.MustCompile(`^/p/[^/]+$`),
}

var defaultExcludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/(tags?|categor(y|ies)|authors?|page|search|login|signin|signup|register|subscribe|feed|rss|wp-admin|wp-content|wp-json|cdn-cgi|cart|account)(/|$)`),
	regexp.MustCompile(`(?i)/page/\d+$`),
}

var assetExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
	".css": true, ".js": true, ".json": true, ".xml": true, ".zip": true, ".gz": true, ".mp3": true,
	".mp4": true, ".woff": true, ".woff2": true, ".ttf": true,
}

// matcher decides whether a URL found on a site is a content candidate.
type matcher struct {
	start   *url.URL
	profile *Profile
}

// linkType classifies a candidate by extension. Assets report ok=false.
func linkType(u *url.URL) (corpus.Type, bool) {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == ".pdf" {
		return corpus.TypePDF, true
	}
	if assetExts[ext] {
		return corpus.TypeUnknown, false
	}
	return corpus.TypeBlog, true
}

// candidate reports whether raw looks like a content page on the start site.
// strict requires a content-path match; otherwise any same-site page that is
// not excluded qualifies.
func (m matcher) candidate(raw string, strict bool) (corpus.Type, bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	if trimWWW(u.Hostname()) != trimWWW(m.start.Hostname()) {
		return "", false
	}
	t, ok := linkType(u)
	if !ok {
		return "", false
	}
	p := strings.TrimSuffix(u.Path, "/")
	if p == "" || p == strings.TrimSuffix(m.start.Path, "/") {
		return "", false
	}
	if t == corpus.TypePDF {
		return t, true
	}
	for _, re := range m.excludes() {
		if re.MatchString(p) {
			return "", false
		}
	}
	if !strict {
		return t, true
	}
	for _, re := range m.patterns() {
		if re.MatchString(p) {
			return t, true
		}
	}
	// Slugs one level below the listing page, e.g. /engineering/my-post
	// under /engineering.
	if lp := strings.TrimSuffix(m.start.Path, "/"); lp != "" && strings.HasPrefix(p, lp+"/") {
		rest := strings.TrimPrefix(p, lp+"/")
		if rest != "" && !strings.Contains(rest, "/") && looksLikeSlug(rest) {
			return t, true
		}
	}
	return "", false
}

func (m matcher) patterns() []*regexp.Regexp {
	if m.profile != nil && len(m.profile.content) > 0 {
		return m.profile.content
	}
	return defaultContentPatterns
}

func (m matcher) excludes() []*regexp.Regexp {
	if m.profile != nil && len(m.profile.exclude) > 0 {
		return append(append([]*regexp.Regexp(nil), m.profile.exclude...), defaultExcludePatterns...)
	}
	return defaultExcludePatterns
}

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)+$`)

func looksLikeSlug(s string) bool {
	return slugRe.MatchString(strings.ToLower(s))
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a heading into the URL slug most blog engines would use.
func slugify(title string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	return strings.Trim(s, "-")
}

func trimWWW(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}
