package discover

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperifyio/gocorpus/internal/aggregate"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/fetch"
)

var wellKnownAPIEndpoints = []string{
	"/wp-json/wp/v2/posts",
	"/api/posts",
	"/api/blog",
	"/api/blog/posts",
	"/api/articles",
	"/api/blog-articles",
}

var (
	apiPathHint = regexp.MustCompile(`["'(=]\s*((?:https?://[^"'\s<>()]+)?/(?:api|wp-json)/[^"'\s<>()]+)`)
	listKeys    = []string{"posts", "items", "data", "results", "articles", "entries"}
	urlKeys     = []string{"url", "link", "href", "permalink", "canonical_url"}
)

const jsonAccept = "application/json,text/javascript;q=0.9,*/*;q=0.5"

// APIStrategy probes backend JSON endpoints that a site's frontend reads
// its post listings from.
type APIStrategy struct{}

func (*APIStrategy) ID() corpus.StrategyID { return StrategyAPI }
func (*APIStrategy) Confidence() float64   { return ConfidenceAPI }

func (s *APIStrategy) Discover(ctx context.Context, run *Run) ([]corpus.CandidateLink, error) {
	var endpoints []string
	if resp, err := run.Fetch(ctx, run.StartURL, fetch.Options{NoBypass: true, Accept: htmlAccept}); err == nil {
		endpoints = append(endpoints, apiHints(run, resp.Body)...)
	} else if errors.Is(err, corpus.ErrBudgetExhausted) {
		return nil, err
	}
	if run.Profile != nil {
		for _, p := range run.Profile.APIEndpoints {
			endpoints = append(endpoints, siteURL(run, p))
		}
	}
	for _, p := range wellKnownAPIEndpoints {
		endpoints = append(endpoints, siteURL(run, p))
	}

	loose := newCollector()
	tried := make(map[string]bool)
	for _, ep := range endpoints {
		key, err := aggregate.NormalizeURL(ep)
		if err != nil || tried[key] {
			continue
		}
		tried[key] = true
		v, err := fetchJSON(ctx, run, ep)
		if err != nil {
			if errors.Is(err, corpus.ErrBudgetExhausted) || ctx.Err() != nil {
				return loose.links, err
			}
			continue
		}
		if links := consistentLinks(run, v); len(links) > 0 {
			c := newCollector()
			for _, l := range links {
				c.add(l)
			}
			err := paginate(ctx, run, ep, c)
			return c.links, err
		}
		harvest(run, v, loose)
	}
	return loose.links, nil
}

func fetchJSON(ctx context.Context, run *Run, u string) (any, error) {
	resp, err := run.Fetch(ctx, u, fetch.Options{NoBypass: true, Accept: jsonAccept})
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return nil, corpus.ErrParse
	}
	return v, nil
}

// paginate follows ?page=N while pages keep yielding new links.
func paginate(ctx context.Context, run *Run, endpoint string, c *collector) error {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil
	}
	for page := 2; page <= run.maxListingPages(); page++ {
		next := *base
		q := next.Query()
		q.Set("page", strconv.Itoa(page))
		next.RawQuery = q.Encode()
		v, err := fetchJSON(ctx, run, next.String())
		if err != nil {
			if errors.Is(err, corpus.ErrBudgetExhausted) {
				return err
			}
			return nil
		}
		added := 0
		for _, l := range consistentLinks(run, v) {
			if c.add(l) {
				added++
			}
		}
		if added == 0 {
			return nil
		}
	}
	return nil
}

// apiHints finds API-looking URLs referenced from the page's markup and
// inline scripts.
func apiHints(run *Run, body []byte) []string {
	var out []string
	for _, m := range apiPathHint.FindAllSubmatch(body, -1) {
		raw := strings.TrimRight(string(m[1]), `\`)
		abs, ok := aggregate.Resolve(run.Start, raw)
		if ok && aggregate.SameSite(abs, run.StartURL) {
			out = append(out, abs)
		}
	}
	return out
}

// consistentLinks accepts a JSON list of objects that all carry the same URL
// field, or all carry a slug.
func consistentLinks(run *Run, v any) []corpus.CandidateLink {
	list := objectList(v)
	if len(list) == 0 {
		return nil
	}
	field := sharedStringField(list, urlKeys)
	slugOnly := false
	if field == "" {
		if sharedStringField(list, []string{"slug"}) == "" {
			return nil
		}
		field, slugOnly = "slug", true
	}
	var out []corpus.CandidateLink
	for _, obj := range list {
		raw, _ := obj[field].(string)
		if slugOnly {
			raw = slugURL(run, raw)
		}
		abs, ok := aggregate.Resolve(run.Start, raw)
		if !ok {
			continue
		}
		u, err := url.Parse(abs)
		if err != nil {
			continue
		}
		t, ok := linkType(u)
		if !ok {
			continue
		}
		out = append(out, corpus.CandidateLink{URL: abs, Type: t, DiscoveredBy: StrategyAPI, Confidence: ConfidenceAPI})
	}
	return out
}

func objectList(v any) []map[string]any {
	switch x := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, e := range x {
			obj, ok := e.(map[string]any)
			if !ok {
				return nil
			}
			out = append(out, obj)
		}
		return out
	case map[string]any:
		for _, k := range listKeys {
			if inner, ok := x[k]; ok {
				if l := objectList(inner); len(l) > 0 {
					return l
				}
			}
		}
	}
	return nil
}

func sharedStringField(list []map[string]any, keys []string) string {
	for _, k := range keys {
		all := true
		for _, obj := range list {
			if s, ok := obj[k].(string); !ok || strings.TrimSpace(s) == "" {
				all = false
				break
			}
		}
		if all {
			return k
		}
	}
	return ""
}

// slugURL places a bare slug under the listing path, or /blog when the
// start URL is the site root.
func slugURL(run *Run, slug string) string {
	slug = strings.Trim(slug, "/")
	listing := strings.TrimSuffix(run.Start.Path, "/")
	if listing == "" {
		listing = "/blog"
	}
	return listing + "/" + slug
}

// harvest collects same-site content URLs from arbitrary JSON.
func harvest(run *Run, v any, c *collector) {
	switch x := v.(type) {
	case string:
		if !strings.HasPrefix(x, "http://") && !strings.HasPrefix(x, "https://") {
			return
		}
		if l, ok := run.Candidate(x, true, StrategyAPI, ConfidenceAPILoose); ok {
			c.add(l)
		}
	case []any:
		for _, e := range x {
			harvest(run, e, c)
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			harvest(run, x[k], c)
		}
	}
}
