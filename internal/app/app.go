package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocorpus/internal/browser"
	"github.com/hyperifyio/gocorpus/internal/cache"
	"github.com/hyperifyio/gocorpus/internal/chunk"
	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/discover"
	"github.com/hyperifyio/gocorpus/internal/extract"
	"github.com/hyperifyio/gocorpus/internal/fetch"
	"github.com/hyperifyio/gocorpus/internal/metrics"
	"github.com/hyperifyio/gocorpus/internal/pipeline"
	"github.com/hyperifyio/gocorpus/internal/robots"
	"github.com/hyperifyio/gocorpus/internal/store"
)

// ErrNoItems is returned when a run finishes without producing a single
// item. The CLI maps it to exit code 2.
var ErrNoItems = errors.New("no items produced")

// App owns the long-lived collaborators of one process.
type App struct {
	cfg       Config
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	httpCache *cache.HTTPCache
	pool      *browser.Pool
	orch      *pipeline.Orchestrator
	files     *store.FileSink
	mongo     *store.MongoSink
}

// New wires the pipeline from cfg. Defaults are applied and the config is
// validated first.
func New(ctx context.Context, cfg Config) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if cfg.CacheDir != "" {
		a.prepareCache()
		a.httpCache = &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}

	if !cfg.BrowserDisable {
		a.pool = browser.NewPool(&browser.ChromeLauncher{
			ExecPath:  cfg.BrowserPath,
			UserAgent: cfg.UserAgent,
			Headless:  !cfg.BrowserHeadful,
		}, cfg.BrowserPool)
	}

	scroll := browser.ScrollOptions{MaxAttempts: cfg.BrowserScrollAttempts, Pause: cfg.BrowserScrollPause}

	httpClient := newCrawlerHTTPClient(cfg.RequestTimeout, cfg.InsecureTLS)
	fetcher := &fetch.Client{
		HTTPClient:        httpClient,
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.MaxAttempts,
		PerRequestTimeout: cfg.RequestTimeout,
		Cache:             a.httpCache,
		CacheOnly:         cfg.HTTPCacheOnly,
		MaxConcurrent:     2 * cfg.Concurrency,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		HostRate:          cfg.HostRate,
		HostBurst:         2,
	}
	if a.pool != nil {
		fetcher.Bypass = &browser.Bypasser{Pool: a.pool}
	}

	robotsMgr := &robots.Manager{
		HTTPClient: httpClient,
		Cache:      a.httpCache,
		UserAgent:  cfg.UserAgent,
	}

	var profiles []discover.Profile
	if cfg.ProfilesPath != "" {
		p, err := discover.LoadProfiles(cfg.ProfilesPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		profiles = p
	}

	a.orch = &pipeline.Orchestrator{
		Discoverer: &discover.Engine{
			Fetcher:         fetcher,
			Browser:         a.pool,
			Robots:          robotsMgr,
			RespectRobots:   cfg.RespectRobots,
			MinConfidence:   cfg.MinConfidence,
			Profiles:        profiles,
			MaxListingPages: cfg.MaxListingPages,
			Scroll:          scroll,
		},
		Extractor: &extract.Engine{
			Fetcher:              fetcher,
			Browser:              a.pool,
			Scroll:               scroll,
			Threshold:            cfg.QualityThreshold,
			AcceptBelowThreshold: cfg.AcceptBelowThreshold,
		},
		Chunker:          chunk.Chunker{Budget: cfg.ChunkSize},
		Concurrency:      cfg.Concurrency,
		SiteConcurrency:  cfg.SiteConcurrency,
		ItemTimeout:      cfg.ItemTimeout,
		SiteTimeout:      cfg.SiteTimeout,
		MaxPages:         cfg.MaxPages,
		IncludeStartPage: cfg.IncludeStartPage,
		NumberParts:      cfg.NumberParts,
		Metrics:          a.metrics,
		ProgressInterval: 5 * time.Second,
	}

	if cfg.OutputPath != "" {
		a.files = &store.FileSink{Path: cfg.OutputPath, Build: Build(), HTTPCache: a.httpCache != nil}
	}
	if cfg.MongoURI != "" {
		m, err := store.NewMongoSink(ctx, store.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
		if err != nil {
			return nil, err
		}
		a.mongo = m
	}
	return a, nil
}

// prepareCache applies the invalidation controls. Failures only warn; a
// stale cache never blocks a run.
func (a *App) prepareCache() {
	dir := a.cfg.CacheDir
	if a.cfg.CacheClear {
		if err := cache.ClearDir(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("cache clear failed")
		}
	}
	if a.cfg.CacheMaxAge > 0 {
		n, err := cache.PurgeHTTPCacheByAge(dir, a.cfg.CacheMaxAge)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("cache purge failed")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("purged stale cache entries")
		}
	}
	if a.cfg.CacheMaxBytes > 0 || a.cfg.CacheMaxEntries > 0 {
		n, err := cache.EnforceHTTPCacheLimits(dir, a.cfg.CacheMaxBytes, a.cfg.CacheMaxEntries)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("cache limits failed")
		} else if n > 0 {
			log.Debug().Int("removed", n).Msg("evicted cache entries")
		}
	}
}

// Config returns the effective configuration.
func (a *App) Config() Config { return a.cfg }

// Orchestrator returns the wired pipeline.
func (a *App) Orchestrator() *pipeline.Orchestrator { return a.orch }

// Registry returns the metrics registry served at /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// ServeSink is where API scrape batches are persisted. It is nil without
// MongoDB; the API never writes the local result file.
func (a *App) ServeSink() store.Sink {
	if a.mongo == nil {
		return nil
	}
	return a.mongo
}

func (a *App) sinks() store.MultiSink {
	var out store.MultiSink
	if a.files != nil {
		out = append(out, a.files)
	}
	if a.mongo != nil {
		out = append(out, a.mongo)
	}
	return out
}

// ParseSources turns raw CLI arguments into sources. A "pdf:" or "blog:"
// prefix declares the type explicitly.
func ParseSources(raws []string) []corpus.Source {
	out := make([]corpus.Source, 0, len(raws))
	for _, raw := range raws {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		declared := corpus.TypeUnknown
		if prefix, rest, ok := strings.Cut(raw, ":"); ok {
			if t := corpus.ParseType(prefix); t != corpus.TypeUnknown && !strings.HasPrefix(rest, "//") {
				declared, raw = t, rest
			}
		}
		out = append(out, corpus.NewSource(raw, declared))
	}
	return out
}

// Scrape runs one batch over raws and persists it to every configured sink.
// The batch is returned even when saving fails or nothing was produced.
func (a *App) Scrape(ctx context.Context, raws []string) (*pipeline.Batch, error) {
	if err := a.cfg.ValidateScrape(raws); err != nil {
		return nil, err
	}
	b, err := a.orch.Run(ctx, ParseSources(raws), a.cfg.TeamID, a.cfg.UserID)
	if err != nil {
		return nil, err
	}
	if err := a.sinks().Save(ctx, b); err != nil {
		return b, fmt.Errorf("save results: %w", err)
	}
	log.Info().Str("run_id", b.RunID).Int("items", len(b.Result.Items)).Int("skipped", len(b.Skipped)).
		Str("output", a.cfg.OutputPath).Msg("run finished")
	if len(b.Result.Items) == 0 {
		return b, ErrNoItems
	}
	return b, nil
}

// DiscoverReport runs discovery on one site with the configured budget.
func (a *App) DiscoverReport(ctx context.Context, startURL string) (*discover.Report, error) {
	return a.orch.DiscoverReport(ctx, startURL, a.cfg.MaxPages)
}

// Close releases the database connection.
func (a *App) Close() {
	if a.mongo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.mongo.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("mongo disconnect failed")
	}
}
