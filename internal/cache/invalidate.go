package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ClearDir removes the directory and all contents. It recreates the directory
// afterwards to leave a valid empty cache location.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeHTTPCacheByAge removes entries whose SavedAt is older than maxAge.
func PurgeHTTPCacheByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".meta.json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var e HTTPEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil
		}
		if now.Sub(e.SavedAt) <= maxAge {
			return nil
		}
		removed++
		removeEntry(strings.TrimSuffix(path, ".meta.json"))
		return nil
	})
	return removed, err
}

type entryStat struct {
	base    string
	size    int64
	modTime time.Time
}

// EnforceHTTPCacheLimits evicts least recently used entries until the cache
// holds at most maxEntries entries and maxBytes body bytes. Zero disables a
// limit. Recency is the body file's mtime, refreshed by LoadBody.
func EnforceHTTPCacheLimits(dir string, maxBytes int64, maxEntries int) (int, error) {
	if maxBytes <= 0 && maxEntries <= 0 {
		return 0, nil
	}
	var entries []entryStat
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".body") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, entryStat{base: strings.TrimSuffix(path, ".body"), size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime.Before(entries[j].modTime) })
	removed := 0
	for _, e := range entries {
		count := len(entries) - removed
		overCount := maxEntries > 0 && count > maxEntries
		overBytes := maxBytes > 0 && total > maxBytes
		if !overCount && !overBytes {
			break
		}
		removeEntry(e.base)
		total -= e.size
		removed++
	}
	return removed, nil
}

func removeEntry(base string) {
	_ = os.Remove(base + ".meta.json")
	_ = os.Remove(base + ".body")
}
