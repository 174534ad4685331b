package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema. Sections mirror the
// flag groups.
type FileConfig struct {
	Output string `yaml:"output" json:"output"`
	Team   string `yaml:"team" json:"team"`
	User   string `yaml:"user" json:"user"`

	Discovery struct {
		MaxPages         int     `yaml:"maxPages" json:"maxPages"`
		MinConfidence    float64 `yaml:"minConfidence" json:"minConfidence"`
		MaxListingPages  int     `yaml:"maxListingPages" json:"maxListingPages"`
		Profiles         string  `yaml:"profiles" json:"profiles"`
		RespectRobots    *bool   `yaml:"respectRobots" json:"respectRobots"`
		IncludeStartPage *bool   `yaml:"includeStartPage" json:"includeStartPage"`
	} `yaml:"discovery" json:"discovery"`

	Extraction struct {
		QualityThreshold     float64 `yaml:"qualityThreshold" json:"qualityThreshold"`
		AcceptBelowThreshold *bool   `yaml:"acceptBelowThreshold" json:"acceptBelowThreshold"`
		ChunkSize            int     `yaml:"chunkSize" json:"chunkSize"`
		NumberParts          *bool   `yaml:"numberParts" json:"numberParts"`
	} `yaml:"extraction" json:"extraction"`

	Concurrency struct {
		Items       int           `yaml:"items" json:"items"`
		Sites       int           `yaml:"sites" json:"sites"`
		ItemTimeout time.Duration `yaml:"itemTimeout" json:"itemTimeout"`
		SiteTimeout time.Duration `yaml:"siteTimeout" json:"siteTimeout"`
	} `yaml:"concurrency" json:"concurrency"`

	HTTP struct {
		UserAgent      string        `yaml:"userAgent" json:"userAgent"`
		RequestTimeout time.Duration `yaml:"requestTimeout" json:"requestTimeout"`
		MaxAttempts    int           `yaml:"maxAttempts" json:"maxAttempts"`
		MaxBodyBytes   int64         `yaml:"maxBodyBytes" json:"maxBodyBytes"`
		HostRate       float64       `yaml:"hostRate" json:"hostRate"`
		InsecureTLS    bool          `yaml:"insecureTLS" json:"insecureTLS"`
	} `yaml:"http" json:"http"`

	Browser struct {
		Disable *bool  `yaml:"disable" json:"disable"`
		Path    string `yaml:"path" json:"path"`
		Pool    int    `yaml:"pool" json:"pool"`
		Headful bool   `yaml:"headful" json:"headful"`

		ScrollAttempts int           `yaml:"scrollAttempts" json:"scrollAttempts"`
		ScrollPause    time.Duration `yaml:"scrollPause" json:"scrollPause"`
	} `yaml:"browser" json:"browser"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
		MaxBytes    int64         `yaml:"maxBytes" json:"maxBytes"`
		MaxEntries  int           `yaml:"maxEntries" json:"maxEntries"`
		Only        bool          `yaml:"only" json:"only"`
	} `yaml:"cache" json:"cache"`

	Mongo struct {
		URI        string `yaml:"uri" json:"uri"`
		Database   string `yaml:"database" json:"database"`
		Collection string `yaml:"collection" json:"collection"`
	} `yaml:"mongo" json:"mongo"`

	Listen  string `yaml:"listen" json:"listen"`
	Verbose bool   `yaml:"verbose" json:"verbose"`
	LogJSON bool   `yaml:"logJSON" json:"logJSON"`
}

// LoadConfigFile reads YAML or JSON into FileConfig. Unknown keys are
// rejected so a malformed or misspelled file never loads as empty.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".json":
		if err := decodeJSON(b, &fc); err != nil {
			return FileConfig{}, fmt.Errorf("parse json: %w", err)
		}
	case ".yaml", ".yml":
		if err := decodeYAML(b, &fc); err != nil {
			return FileConfig{}, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := decodeYAML(b, &fc); err != nil {
			fc = FileConfig{}
			if jerr := decodeJSON(b, &fc); jerr != nil {
				return FileConfig{}, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

func decodeYAML(b []byte, fc *FileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeJSON(b []byte, fc *FileConfig) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(fc)
}

func setString(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 && v != 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if *dst == 0 && v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if *dst == 0 && v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 && v != 0 {
		*dst = v
	}
}

// setBool applies an explicit file value only when the flag is still false.
func setBool(dst *bool, v *bool) {
	if v != nil && !*dst {
		*dst = *v
	}
}

// ApplyFileConfig overlays values from fc onto fields of cfg that are still
// zero, so explicit flags and env keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setString(&cfg.OutputPath, fc.Output)
	setString(&cfg.TeamID, fc.Team)
	setString(&cfg.UserID, fc.User)

	setInt(&cfg.MaxPages, fc.Discovery.MaxPages)
	setFloat(&cfg.MinConfidence, fc.Discovery.MinConfidence)
	setInt(&cfg.MaxListingPages, fc.Discovery.MaxListingPages)
	setString(&cfg.ProfilesPath, fc.Discovery.Profiles)
	setBool(&cfg.RespectRobots, fc.Discovery.RespectRobots)
	setBool(&cfg.IncludeStartPage, fc.Discovery.IncludeStartPage)

	setFloat(&cfg.QualityThreshold, fc.Extraction.QualityThreshold)
	setBool(&cfg.AcceptBelowThreshold, fc.Extraction.AcceptBelowThreshold)
	setInt(&cfg.ChunkSize, fc.Extraction.ChunkSize)
	setBool(&cfg.NumberParts, fc.Extraction.NumberParts)

	setInt(&cfg.Concurrency, fc.Concurrency.Items)
	setInt(&cfg.SiteConcurrency, fc.Concurrency.Sites)
	setDuration(&cfg.ItemTimeout, fc.Concurrency.ItemTimeout)
	setDuration(&cfg.SiteTimeout, fc.Concurrency.SiteTimeout)

	setString(&cfg.UserAgent, fc.HTTP.UserAgent)
	setDuration(&cfg.RequestTimeout, fc.HTTP.RequestTimeout)
	setInt(&cfg.MaxAttempts, fc.HTTP.MaxAttempts)
	setInt64(&cfg.MaxBodyBytes, fc.HTTP.MaxBodyBytes)
	setFloat(&cfg.HostRate, fc.HTTP.HostRate)
	cfg.InsecureTLS = cfg.InsecureTLS || fc.HTTP.InsecureTLS

	setBool(&cfg.BrowserDisable, fc.Browser.Disable)
	setString(&cfg.BrowserPath, fc.Browser.Path)
	setInt(&cfg.BrowserPool, fc.Browser.Pool)
	cfg.BrowserHeadful = cfg.BrowserHeadful || fc.Browser.Headful
	setInt(&cfg.BrowserScrollAttempts, fc.Browser.ScrollAttempts)
	setDuration(&cfg.BrowserScrollPause, fc.Browser.ScrollPause)

	setString(&cfg.CacheDir, fc.Cache.Dir)
	setDuration(&cfg.CacheMaxAge, fc.Cache.MaxAge)
	cfg.CacheClear = cfg.CacheClear || fc.Cache.Clear
	cfg.CacheStrictPerms = cfg.CacheStrictPerms || fc.Cache.StrictPerms
	setInt64(&cfg.CacheMaxBytes, fc.Cache.MaxBytes)
	setInt(&cfg.CacheMaxEntries, fc.Cache.MaxEntries)
	cfg.HTTPCacheOnly = cfg.HTTPCacheOnly || fc.Cache.Only

	setString(&cfg.MongoURI, fc.Mongo.URI)
	setString(&cfg.MongoDatabase, fc.Mongo.Database)
	setString(&cfg.MongoCollection, fc.Mongo.Collection)

	setString(&cfg.ListenAddr, fc.Listen)
	cfg.Verbose = cfg.Verbose || fc.Verbose
	cfg.LogJSON = cfg.LogJSON || fc.LogJSON
}
