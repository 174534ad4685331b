package discover

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperifyio/gocorpus/internal/aggregate"
	"github.com/hyperifyio/gocorpus/internal/corpus"
)

// maxSitemapDepth bounds nested sitemap index recursion.
const maxSitemapDepth = 2

var defaultSitemapPaths = []string{"/sitemap.xml", "/sitemap_index.xml"}

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// SitemapStrategy reads sitemaps and keeps URLs that look like content.
type SitemapStrategy struct{}

func (*SitemapStrategy) ID() corpus.StrategyID { return StrategySitemap }
func (*SitemapStrategy) Confidence() float64   { return ConfidenceSitemap }

func (s *SitemapStrategy) Discover(ctx context.Context, run *Run) ([]corpus.CandidateLink, error) {
	var roots []string
	if rm := run.Robots(); rm != nil {
		roots = append(roots, rm.Sitemaps(ctx, run.StartURL)...)
	}
	if run.Profile != nil {
		for _, p := range run.Profile.SitemapPaths {
			roots = append(roots, siteURL(run, p))
		}
	}
	for _, p := range defaultSitemapPaths {
		roots = append(roots, siteURL(run, p))
	}

	c := newCollector()
	seen := make(map[string]bool)
	for _, root := range roots {
		if err := s.walk(ctx, run, root, 0, seen, c); err != nil {
			if errors.Is(err, corpus.ErrBudgetExhausted) || ctx.Err() != nil {
				return c.links, err
			}
		}
	}
	return c.links, nil
}

func (s *SitemapStrategy) walk(ctx context.Context, run *Run, loc string, depth int, seen map[string]bool, c *collector) error {
	key, err := aggregate.NormalizeURL(loc)
	if err != nil || seen[key] {
		return nil
	}
	seen[key] = true
	resp, err := run.Get(ctx, loc)
	if err != nil {
		return err
	}
	body, err := maybeGunzip(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: sitemap %s: %w", corpus.ErrParse, loc, err)
	}
	children, urls, err := parseSitemap(body)
	if err != nil {
		return fmt.Errorf("%w: sitemap %s: %w", corpus.ErrParse, loc, err)
	}
	for _, u := range urls {
		if l, ok := run.Candidate(strings.TrimSpace(u), true, StrategySitemap, ConfidenceSitemap); ok {
			c.add(l)
		}
	}
	if depth >= maxSitemapDepth {
		return nil
	}
	for _, child := range children {
		child = strings.TrimSpace(child)
		if !aggregate.SameSite(child, run.StartURL) {
			continue
		}
		if err := s.walk(ctx, run, child, depth+1, seen, c); err != nil {
			if errors.Is(err, corpus.ErrBudgetExhausted) || ctx.Err() != nil {
				return err
			}
		}
	}
	return nil
}

// parseSitemap accepts either a urlset or a sitemapindex document.
func parseSitemap(body []byte) (children, urls []string, err error) {
	var set xmlURLSet
	if err := xml.Unmarshal(body, &set); err == nil {
		for _, u := range set.URLs {
			urls = append(urls, u.Loc)
		}
		return nil, urls, nil
	}
	var idx xmlSitemapIndex
	if err := xml.Unmarshal(body, &idx); err != nil {
		return nil, nil, err
	}
	for _, sm := range idx.Sitemaps {
		children = append(children, sm.Loc)
	}
	return children, nil, nil
}

func maybeGunzip(b []byte) ([]byte, error) {
	if len(b) < 2 || b[0] != 0x1f || b[1] != 0x8b {
		return b, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, 50<<20))
}
