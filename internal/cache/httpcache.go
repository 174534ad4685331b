package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HTTPEntry captures enough metadata to revalidate a page with conditional
// headers and to serve it without touching the network.
type HTTPEntry struct {
	URL          string    `json:"url"`
	FinalURL     string    `json:"final_url,omitempty"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"last_modified"`
	SavedAt      time.Time `json:"saved_at"`
}

// HTTPCache stores pages on disk as <key>.meta.json and <key>.body where key
// is sha256 of the normalized URL. Eviction is done out of band by
// PurgeHTTPCacheByAge and EnforceHTTPCacheLimits.
type HTTPCache struct {
	Dir string
	// StrictPerms uses 0700 directories and 0600 files.
	StrictPerms bool
}

func (c *HTTPCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	mode := os.FileMode(0o755)
	if c.StrictPerms {
		mode = 0o700
	}
	if err := os.MkdirAll(c.Dir, mode); err != nil {
		return err
	}
	if c.StrictPerms {
		return os.Chmod(c.Dir, 0o700)
	}
	return nil
}

func (c *HTTPCache) fileMode() os.FileMode {
	if c.StrictPerms {
		return 0o600
	}
	return 0o644
}

func (c *HTTPCache) key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

func (c *HTTPCache) metaPath(key string) string { return filepath.Join(c.Dir, key+".meta.json") }
func (c *HTTPCache) bodyPath(key string) string { return filepath.Join(c.Dir, key+".body") }

// LoadMeta returns entry metadata if present.
func (c *HTTPCache) LoadMeta(_ context.Context, url string) (*HTTPEntry, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.metaPath(c.key(url)))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var e HTTPEntry
	if err := json.NewDecoder(f).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// LoadBody returns the cached body and marks the entry as recently used.
func (c *HTTPCache) LoadBody(_ context.Context, url string) ([]byte, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	p := c.bodyPath(c.key(url))
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return b, nil
}

// Lookup returns both metadata and body, or an error if either is missing.
func (c *HTTPCache) Lookup(ctx context.Context, url string) (*HTTPEntry, []byte, error) {
	meta, err := c.LoadMeta(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	body, err := c.LoadBody(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return meta, body, nil
}

// Save stores a new cache entry. The meta file is written last and renamed
// into place so readers never see a meta without its body.
func (c *HTTPCache) Save(_ context.Context, entry HTTPEntry, body []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	key := c.key(entry.URL)
	if err := os.WriteFile(c.bodyPath(key), body, c.fileMode()); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if entry.SavedAt.IsZero() {
		entry.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	tmp := c.metaPath(key) + ".tmp"
	if err := os.WriteFile(tmp, data, c.fileMode()); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, c.metaPath(key))
}
