package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// LoadEnvFiles reads KEY=VALUE pairs into the process environment.
func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	t.Setenv("FOO", "")
	t.Setenv("BAR", "")
	t.Setenv("BAZ", "")
	t.Setenv("QUX", "")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nFOO=alpha\nexport BAR=\"beta # kept\"\nBAZ=gamma # dropped\nnot a pair\nQUX='q'\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	if err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	want := map[string]string{"FOO": "alpha", "BAR": "beta # kept", "BAZ": "gamma", "QUX": "q"}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Fatalf("%s=%q, want %q", k, got, v)
		}
	}
}

// Later files override earlier ones when loading multiple dotenv files.
func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	t.Setenv("K", "")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	if err := os.WriteFile(a, []byte("K=first\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("K=second\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if err := LoadEnvFiles(a, b); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("K"); got != "second" {
		t.Fatalf("override order failed: got %q, want second", got)
	}
}

func TestApplyEnvToConfig_FillsUnsetFields(t *testing.T) {
	t.Setenv("CACHE_DIR", "")
	t.Setenv("GOCORPUS_CACHE_DIR", "/tmp/gocorpus-cache")
	t.Setenv("MAX_PAGES", "25")
	t.Setenv("MIN_CONFIDENCE", "0.7")
	t.Setenv("ITEM_TIMEOUT", "45s")
	t.Setenv("BROWSER_DISABLE", "yes")
	t.Setenv("TEAM_ID", "env-team")
	t.Setenv("CONCURRENCY", "not-a-number")

	cfg := Config{TeamID: "flag-team"}
	ApplyEnvToConfig(&cfg)

	if cfg.CacheDir != "/tmp/gocorpus-cache" {
		t.Fatalf("cache dir = %q", cfg.CacheDir)
	}
	if cfg.MaxPages != 25 || cfg.MinConfidence != 0.7 || cfg.ItemTimeout != 45*time.Second {
		t.Fatalf("numeric env not applied: %+v", cfg)
	}
	if !cfg.BrowserDisable {
		t.Fatalf("BROWSER_DISABLE not applied")
	}
	if cfg.TeamID != "flag-team" {
		t.Fatalf("explicit value overwritten: %q", cfg.TeamID)
	}
	if cfg.Concurrency != 0 {
		t.Fatalf("unparsable value should be ignored, got %d", cfg.Concurrency)
	}
}

func TestApplyEnvOverrides_WinsOverFile(t *testing.T) {
	t.Setenv("MAX_PAGES", "3")
	t.Setenv("RESPECT_ROBOTS", "false")
	t.Setenv("MONGO_URI", "mongodb://db:27017")

	cfg := Config{MaxPages: 40, RespectRobots: true, MongoURI: "mongodb://file:27017"}
	ApplyEnvOverrides(&cfg)
	if cfg.MaxPages != 3 || cfg.RespectRobots || cfg.MongoURI != "mongodb://db:27017" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}
