package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envVar binds one environment variable to a Config field. fill only sets
// zero fields; override always sets when the variable parses.
type envVar struct {
	keys []string
	set  func(cfg *Config, v string, override bool)
}

func envString(get func(*Config) *string, keys ...string) envVar {
	return envVar{keys: keys, set: func(cfg *Config, v string, override bool) {
		if p := get(cfg); override || *p == "" {
			*p = v
		}
	}}
}

func envInt(get func(*Config) *int, keys ...string) envVar {
	return envVar{keys: keys, set: func(cfg *Config, v string, override bool) {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return
		}
		if p := get(cfg); override || *p == 0 {
			*p = n
		}
	}}
}

func envInt64(get func(*Config) *int64, keys ...string) envVar {
	return envVar{keys: keys, set: func(cfg *Config, v string, override bool) {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return
		}
		if p := get(cfg); override || *p == 0 {
			*p = n
		}
	}}
}

func envFloat(get func(*Config) *float64, keys ...string) envVar {
	return envVar{keys: keys, set: func(cfg *Config, v string, override bool) {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return
		}
		if p := get(cfg); override || *p == 0 {
			*p = f
		}
	}}
}

func envDuration(get func(*Config) *time.Duration, keys ...string) envVar {
	return envVar{keys: keys, set: func(cfg *Config, v string, override bool) {
		d, err := time.ParseDuration(v)
		if err != nil {
			return
		}
		if p := get(cfg); override || *p == 0 {
			*p = d
		}
	}}
}

// envBool accepts 1/true/yes/on and 0/false/no/off. In fill mode only a
// truthy value is applied.
func envBool(get func(*Config) *bool, keys ...string) envVar {
	return envVar{keys: keys, set: func(cfg *Config, v string, override bool) {
		p := get(cfg)
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*p = true
		case "0", "false", "no", "off":
			if override {
				*p = false
			}
		}
	}}
}

var envVars = []envVar{
	envString(func(c *Config) *string { return &c.OutputPath }, "OUTPUT"),
	envString(func(c *Config) *string { return &c.TeamID }, "TEAM_ID"),
	envString(func(c *Config) *string { return &c.UserID }, "USER_ID"),
	envInt(func(c *Config) *int { return &c.MaxPages }, "MAX_PAGES"),
	envFloat(func(c *Config) *float64 { return &c.MinConfidence }, "MIN_CONFIDENCE"),
	envString(func(c *Config) *string { return &c.ProfilesPath }, "PROFILES"),
	envBool(func(c *Config) *bool { return &c.RespectRobots }, "RESPECT_ROBOTS"),
	envBool(func(c *Config) *bool { return &c.IncludeStartPage }, "INCLUDE_START_PAGE"),
	envFloat(func(c *Config) *float64 { return &c.QualityThreshold }, "QUALITY_THRESHOLD"),
	envBool(func(c *Config) *bool { return &c.AcceptBelowThreshold }, "ACCEPT_BELOW_THRESHOLD"),
	envInt(func(c *Config) *int { return &c.ChunkSize }, "CHUNK_SIZE"),
	envBool(func(c *Config) *bool { return &c.NumberParts }, "NUMBER_PARTS"),
	envInt(func(c *Config) *int { return &c.Concurrency }, "CONCURRENCY"),
	envInt(func(c *Config) *int { return &c.SiteConcurrency }, "SITE_CONCURRENCY"),
	envDuration(func(c *Config) *time.Duration { return &c.ItemTimeout }, "ITEM_TIMEOUT"),
	envDuration(func(c *Config) *time.Duration { return &c.SiteTimeout }, "SITE_TIMEOUT"),
	envString(func(c *Config) *string { return &c.UserAgent }, "USER_AGENT"),
	envDuration(func(c *Config) *time.Duration { return &c.RequestTimeout }, "REQUEST_TIMEOUT"),
	envFloat(func(c *Config) *float64 { return &c.HostRate }, "HOST_RATE"),
	envBool(func(c *Config) *bool { return &c.InsecureTLS }, "INSECURE_TLS"),
	envBool(func(c *Config) *bool { return &c.BrowserDisable }, "BROWSER_DISABLE"),
	envString(func(c *Config) *string { return &c.BrowserPath }, "BROWSER_PATH"),
	envInt(func(c *Config) *int { return &c.BrowserPool }, "BROWSER_POOL"),
	envInt(func(c *Config) *int { return &c.BrowserScrollAttempts }, "BROWSER_SCROLL_ATTEMPTS"),
	envDuration(func(c *Config) *time.Duration { return &c.BrowserScrollPause }, "BROWSER_SCROLL_PAUSE"),
	envString(func(c *Config) *string { return &c.CacheDir }, "GOCORPUS_CACHE_DIR", "CACHE_DIR"),
	envDuration(func(c *Config) *time.Duration { return &c.CacheMaxAge }, "CACHE_MAX_AGE"),
	envBool(func(c *Config) *bool { return &c.CacheClear }, "CACHE_CLEAR"),
	envBool(func(c *Config) *bool { return &c.CacheStrictPerms }, "CACHE_STRICT_PERMS"),
	envInt64(func(c *Config) *int64 { return &c.CacheMaxBytes }, "CACHE_MAX_BYTES"),
	envInt(func(c *Config) *int { return &c.CacheMaxEntries }, "CACHE_MAX_ENTRIES"),
	envBool(func(c *Config) *bool { return &c.HTTPCacheOnly }, "HTTP_CACHE_ONLY"),
	envString(func(c *Config) *string { return &c.MongoURI }, "MONGO_URI"),
	envString(func(c *Config) *string { return &c.MongoDatabase }, "MONGO_DATABASE"),
	envString(func(c *Config) *string { return &c.MongoCollection }, "MONGO_COLLECTION"),
	envString(func(c *Config) *string { return &c.ListenAddr }, "LISTEN_ADDR"),
	envBool(func(c *Config) *bool { return &c.Verbose }, "VERBOSE"),
	envBool(func(c *Config) *bool { return &c.LogJSON }, "LOG_JSON"),
}

// lookup returns the first non-empty variable among keys.
func lookup(keys []string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v, true
		}
	}
	return "", false
}

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	for _, ev := range envVars {
		if v, ok := lookup(ev.keys); ok {
			ev.set(cfg, v, false)
		}
	}
}

// ApplyEnvOverrides overrides cfg fields with every environment variable
// that is set. It lets env win over a config file while flags, applied
// afterwards, stay highest.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	for _, ev := range envVars {
		if v, ok := lookup(ev.keys); ok {
			ev.set(cfg, v, true)
		}
	}
}
