package discover

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile tunes discovery for a family of sites.
type Profile struct {
	Name            string   `yaml:"name"`
	Hosts           []string `yaml:"hosts"`
	ContentPatterns []string `yaml:"content_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	Selectors       []string `yaml:"selectors"`
	FeedPaths       []string `yaml:"feed_paths"`
	APIEndpoints    []string `yaml:"api_endpoints"`
	SitemapPaths    []string `yaml:"sitemap_paths"`
	// RequiresJS marks sites whose listing pages are empty without a
	// browser; the static strategy is skipped for them.
	RequiresJS bool `yaml:"requires_js"`

	content []*regexp.Regexp
	exclude []*regexp.Regexp
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// BuiltinProfiles are always consulted after user profiles.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			Name:            "substack",
			Hosts:           []string{"substack.com"},
			ContentPatterns: []string{`^/p/[^/]+$`},
			Selectors:       []string{".post-preview a", ".post-title a", "a[href*='/p/']"},
			FeedPaths:       []string{"/feed", "/archive/feed"},
			APIEndpoints:    []string{"/api/v1/archive?sort=new"},
			RequiresJS:      true,
		},
		{
			Name:            "medium",
			Hosts:           []string{"medium.com"},
			ContentPatterns: []string{`^/@[^/]+/[^/]+$`, `^/[^/@]+/[^/]*-[0-9a-f]{8,}$`},
			FeedPaths:       []string{"/feed"},
			RequiresJS:      true,
		},
	}
}

// LoadProfiles reads site profiles from a YAML file.
func LoadProfiles(path string) ([]Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var pf profileFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for i := range pf.Profiles {
		if err := pf.Profiles[i].compile(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", pf.Profiles[i].Name, err)
		}
	}
	return pf.Profiles, nil
}

func (p *Profile) compile() error {
	if p.content != nil || p.exclude != nil {
		return nil
	}
	var err error
	if p.content, err = compileAll(p.ContentPatterns); err != nil {
		return err
	}
	p.exclude, err = compileAll(p.ExcludePatterns)
	return err
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, s := range patterns {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", s, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Matches reports whether host belongs to the profile.
func (p *Profile) Matches(host string) bool {
	host = strings.ToLower(host)
	for _, h := range p.Hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// matchProfile returns the first profile matching host, or nil.
func matchProfile(profiles []Profile, host string) *Profile {
	for i := range profiles {
		if profiles[i].Matches(host) {
			p := profiles[i]
			if err := p.compile(); err != nil {
				continue
			}
			return &p
		}
	}
	return nil
}
