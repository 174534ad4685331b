// Package store persists finished batches: a JSON result file with a
// manifest sidecar, and optionally one MongoDB document per item.
package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperifyio/gocorpus/internal/corpus"
	"github.com/hyperifyio/gocorpus/internal/pipeline"
)

// Sink receives a finished batch.
type Sink interface {
	Save(ctx context.Context, b *pipeline.Batch) error
}

// Build identifies the binary that produced a batch.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// ManifestMeta captures run-level details that aid reproducibility.
type ManifestMeta struct {
	RunID       string    `json:"run_id"`
	TeamID      string    `json:"team_id"`
	Build       Build     `json:"build"`
	SourceCount int       `json:"source_count"`
	ItemCount   int       `json:"item_count"`
	HTTPCache   bool      `json:"http_cache"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ManifestEntry summarizes the items of one document.
type ManifestEntry struct {
	Index       int                `json:"index"`
	URL         string             `json:"url"`
	Title       string             `json:"title"`
	ContentType corpus.ContentType `json:"content_type"`
	Chunks      int                `json:"chunks"`
	SHA256      string             `json:"sha256"`
	Chars       int                `json:"chars"`
}

// Manifest is the sidecar written next to a result file.
type Manifest struct {
	Meta    ManifestMeta    `json:"meta"`
	Sources []ManifestEntry `json:"sources"`
	Skipped []pipeline.Skip `json:"skipped"`
}

// FileSink writes Path and Path + ".manifest.json".
type FileSink struct {
	Path      string
	Build     Build
	HTTPCache bool
	// Now is used for GeneratedAt. Defaults to time.Now.
	Now func() time.Time
}

// Save writes the result and its manifest.
func (s *FileSink) Save(ctx context.Context, b *pipeline.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := WriteResult(s.Path, b.Result); err != nil {
		return err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	m := BuildManifest(b, s.Build, now())
	m.Meta.HTTPCache = s.HTTPCache
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFileAtomic(ManifestPath(s.Path), data)
}

// WriteResult encodes r as indented JSON at path. Non-ASCII text is kept
// as-is rather than escaped.
func WriteResult(path string, r corpus.Result) error {
	if r.Items == nil {
		r.Items = []corpus.Item{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// ReadResult loads a result file written by WriteResult.
func ReadResult(path string) (corpus.Result, error) {
	var r corpus.Result
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decode %s: %w", path, err)
	}
	return r, nil
}

// ManifestPath returns the sidecar path for a result file.
func ManifestPath(outputPath string) string {
	return outputPath + ".manifest.json"
}

// BuildManifest groups consecutive items of the same document and digests
// their content.
func BuildManifest(b *pipeline.Batch, build Build, now time.Time) Manifest {
	m := Manifest{
		Meta: ManifestMeta{
			RunID:       b.RunID,
			TeamID:      b.Result.TeamID,
			Build:       build,
			ItemCount:   len(b.Result.Items),
			Started:     b.Started,
			Finished:    b.Finished,
			GeneratedAt: now.UTC(),
		},
		Sources: []ManifestEntry{},
		Skipped: b.Skipped,
	}
	if m.Skipped == nil {
		m.Skipped = []pipeline.Skip{}
	}
	var content strings.Builder
	flush := func() {
		if len(m.Sources) == 0 {
			return
		}
		e := &m.Sources[len(m.Sources)-1]
		e.SHA256 = sha256Hex(content.String())
		e.Chars = len([]rune(content.String()))
		content.Reset()
	}
	for _, it := range b.Result.Items {
		if n := len(m.Sources); n == 0 || m.Sources[n-1].URL != it.SourceURL {
			flush()
			m.Sources = append(m.Sources, ManifestEntry{
				Index:       len(m.Sources) + 1,
				URL:         it.SourceURL,
				Title:       it.Title,
				ContentType: it.ContentType,
			})
		}
		m.Sources[len(m.Sources)-1].Chunks++
		content.WriteString(it.Content)
	}
	flush()
	m.Meta.SourceCount = len(m.Sources)
	return m
}

func sha256Hex(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
