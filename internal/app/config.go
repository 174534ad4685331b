package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfig marks configuration problems detected before any work starts.
var ErrConfig = errors.New("config")

// Config holds runtime configuration for the application.
type Config struct {
	// Output
	OutputPath string
	TeamID     string
	UserID     string

	// Discovery
	MaxPages         int
	MinConfidence    float64
	MaxListingPages  int
	ProfilesPath     string
	RespectRobots    bool
	IncludeStartPage bool

	// Extraction and chunking
	QualityThreshold     float64
	AcceptBelowThreshold bool
	ChunkSize            int
	NumberParts          bool

	// Concurrency
	Concurrency     int
	SiteConcurrency int
	ItemTimeout     time.Duration
	SiteTimeout     time.Duration

	// HTTP
	UserAgent      string
	RequestTimeout time.Duration
	MaxAttempts    int
	MaxBodyBytes   int64
	HostRate       float64
	InsecureTLS    bool

	// Browser
	BrowserDisable bool
	BrowserPath    string
	BrowserPool    int
	BrowserHeadful bool
	// Scroll bounds for lazy-loaded pages. Zero takes the browser defaults;
	// negative attempts disable scrolling.
	BrowserScrollAttempts int
	BrowserScrollPause    time.Duration

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	CacheMaxBytes    int64
	CacheMaxEntries  int
	HTTPCacheOnly    bool

	// Persistence
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Server
	ListenAddr string

	Verbose bool
	LogJSON bool
}

// Defaults used when neither flags, env nor a config file set a value.
const (
	DefaultOutputPath       = "corpus.json"
	DefaultUserAgent        = "gocorpus/1.0 (+https://github.com/hyperifyio/gocorpus)"
	DefaultMaxPages         = 10
	DefaultMinConfidence    = 0.5
	DefaultQualityThreshold = 0.4
	DefaultChunkSize        = 6000
	DefaultConcurrency      = 4
	DefaultSiteConcurrency  = 2
	DefaultItemTimeout      = 90 * time.Second
	DefaultSiteTimeout      = 3 * time.Minute
	DefaultRequestTimeout   = 20 * time.Second
	DefaultMaxAttempts      = 2
	DefaultMaxBodyBytes     = 32 << 20
	DefaultBrowserPool      = 2
	DefaultListenAddr       = ":8080"
	DefaultMongoDatabase    = "gocorpus"
	DefaultMongoCollection  = "items"
)

// ApplyDefaults fills every zero field with its default.
func (c *Config) ApplyDefaults() {
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.QualityThreshold == 0 {
		c.QualityThreshold = DefaultQualityThreshold
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.SiteConcurrency == 0 {
		c.SiteConcurrency = DefaultSiteConcurrency
	}
	if c.ItemTimeout == 0 {
		c.ItemTimeout = DefaultItemTimeout
	}
	if c.SiteTimeout == 0 {
		c.SiteTimeout = DefaultSiteTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.BrowserPool == 0 {
		c.BrowserPool = DefaultBrowserPool
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = DefaultMongoDatabase
	}
	if c.MongoCollection == "" {
		c.MongoCollection = DefaultMongoCollection
	}
}

// Validate reports the first configuration error. Call it after
// ApplyDefaults.
func (c Config) Validate() error {
	switch {
	case c.MaxPages < 0:
		return fmt.Errorf("%w: max pages must not be negative", ErrConfig)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("%w: min confidence must be within [0,1], got %v", ErrConfig, c.MinConfidence)
	case c.QualityThreshold < 0 || c.QualityThreshold > 1:
		return fmt.Errorf("%w: quality threshold must be within [0,1], got %v", ErrConfig, c.QualityThreshold)
	case c.ChunkSize < 200:
		return fmt.Errorf("%w: chunk size %d is too small (min 200)", ErrConfig, c.ChunkSize)
	case c.Concurrency < 0 || c.SiteConcurrency < 0 || c.BrowserPool < 0:
		return fmt.Errorf("%w: negative concurrency limits are not allowed", ErrConfig)
	case c.ItemTimeout < 0 || c.SiteTimeout < 0 || c.RequestTimeout < 0:
		return fmt.Errorf("%w: negative timeouts are not allowed", ErrConfig)
	case c.CacheMaxBytes < 0 || c.CacheMaxEntries < 0 || c.HostRate < 0:
		return fmt.Errorf("%w: negative limits are not allowed", ErrConfig)
	case c.HTTPCacheOnly && strings.TrimSpace(c.CacheDir) == "":
		return fmt.Errorf("%w: cache-only mode needs a cache directory", ErrConfig)
	case c.MongoURI != "" && !strings.HasPrefix(c.MongoURI, "mongodb://") && !strings.HasPrefix(c.MongoURI, "mongodb+srv://"):
		return fmt.Errorf("%w: mongo uri must start with mongodb:// or mongodb+srv://", ErrConfig)
	}
	return nil
}

// ValidateScrape adds the checks that only matter for a scrape run.
func (c Config) ValidateScrape(sources []string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("%w: at least one source is required", ErrConfig)
	}
	if strings.TrimSpace(c.TeamID) == "" {
		return fmt.Errorf("%w: team id is required (--team or TEAM_ID)", ErrConfig)
	}
	if strings.TrimSpace(c.OutputPath) == "" && c.MongoURI == "" {
		return fmt.Errorf("%w: nowhere to write results", ErrConfig)
	}
	return nil
}
