package main

import (
	"github.com/spf13/pflag"

	"github.com/hyperifyio/gocorpus/internal/app"
)

// bindConfigFlags registers the shared configuration flags. Defaults are
// left at zero so env and config file values can fill them; the effective
// defaults come from app.Config.ApplyDefaults.
func bindConfigFlags(fs *pflag.FlagSet, cfg *app.Config) {
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose logging")
	fs.BoolVar(&cfg.LogJSON, "log.json", false, "Log JSON lines instead of console output")

	fs.IntVar(&cfg.MaxPages, "max-pages", 0, "Page budget per site discovery (default 10)")
	fs.Float64Var(&cfg.MinConfidence, "min-confidence", 0, "Minimum discovery strategy confidence (default 0.5)")
	fs.IntVar(&cfg.MaxListingPages, "max-listing-pages", 0, "Pagination depth per discovery strategy (default 5)")
	fs.StringVar(&cfg.ProfilesPath, "profiles", "", "YAML file with site profiles")
	fs.BoolVar(&cfg.RespectRobots, "respect-robots", false, "Drop discovered links disallowed by robots.txt")
	fs.BoolVar(&cfg.IncludeStartPage, "include-start-page", false, "Also extract each site's start URL")

	fs.Float64Var(&cfg.QualityThreshold, "quality", 0, "Extraction quality threshold (default 0.4)")
	fs.BoolVar(&cfg.AcceptBelowThreshold, "accept-below-threshold", false, "Keep the best extraction even below the threshold")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", 0, "Maximum characters per item (default 6000)")
	fs.BoolVar(&cfg.NumberParts, "number-parts", false, "Suffix titles of multi-part documents with (part N)")

	fs.IntVar(&cfg.Concurrency, "concurrency", 0, "Documents extracted at once (default 4)")
	fs.IntVar(&cfg.SiteConcurrency, "site-concurrency", 0, "Sites discovered at once (default 2)")
	fs.DurationVar(&cfg.ItemTimeout, "item-timeout", 0, "Timeout per document (default 90s)")
	fs.DurationVar(&cfg.SiteTimeout, "site-timeout", 0, "Timeout per site discovery (default 3m)")

	fs.StringVar(&cfg.UserAgent, "user-agent", "", "User-Agent for all requests")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", 0, "Timeout per HTTP attempt (default 20s)")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", 0, "HTTP attempts including the first (default 2)")
	fs.Float64Var(&cfg.HostRate, "host-rate", 0, "Requests per second per host; 0 disables pacing")
	fs.BoolVar(&cfg.InsecureTLS, "insecure-tls", false, "Skip TLS certificate verification")

	fs.BoolVar(&cfg.BrowserDisable, "browser.disable", false, "Never launch a headless browser")
	fs.StringVar(&cfg.BrowserPath, "browser.path", "", "Chrome executable")
	fs.IntVar(&cfg.BrowserPool, "browser.pool", 0, "Concurrent browser sessions (default 2)")
	fs.BoolVar(&cfg.BrowserHeadful, "browser.headful", false, "Show the browser window")
	fs.IntVar(&cfg.BrowserScrollAttempts, "browser.scrollAttempts", 0, "Scroll rounds on rendered pages (default 10, negative disables)")
	fs.DurationVar(&cfg.BrowserScrollPause, "browser.scrollPause", 0, "Pause between scroll rounds (default 2s)")

	fs.StringVar(&cfg.CacheDir, "cache.dir", "", "HTTP cache directory; empty disables caching")
	fs.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", 0, "Purge cache entries older than this before running")
	fs.BoolVar(&cfg.CacheClear, "cache.clear", false, "Clear the cache before running")
	fs.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.Int64Var(&cfg.CacheMaxBytes, "cache.maxBytes", 0, "Evict least recently used entries above this size")
	fs.IntVar(&cfg.CacheMaxEntries, "cache.maxEntries", 0, "Evict least recently used entries above this count")
	fs.BoolVar(&cfg.HTTPCacheOnly, "cache.only", false, "Serve from cache and never touch the network")

	fs.StringVar(&cfg.MongoURI, "mongo.uri", "", "MongoDB URI; items are also stored there when set")
	fs.StringVar(&cfg.MongoDatabase, "mongo.db", "", "MongoDB database (default gocorpus)")
	fs.StringVar(&cfg.MongoCollection, "mongo.collection", "", "MongoDB collection (default items)")
}
