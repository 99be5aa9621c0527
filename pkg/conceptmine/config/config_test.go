package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

func TestLoadStoplist(t *testing.T) {
	// Create temp file
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "stoplist.yaml")

	content := `terms:
  - the
  - a
  - and
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sl, err := LoadStoplist(path)
	if err != nil {
		t.Fatalf("Failed to load stoplist: %v", err)
	}

	if len(sl.Terms) != 3 {
		t.Errorf("Expected 3 terms, got %d", len(sl.Terms))
	}

	expected := map[string]bool{"the": true, "a": true, "and": true}
	for _, term := range sl.Terms {
		if !expected[term] {
			t.Errorf("Unexpected term: %s", term)
		}
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MinConceptLen != 3 || cfg.MaxConceptLen != 100 || cfg.BatchSize != 32 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Analyzer.SpacyModel != "en_core_web_lg" || cfg.Embedder.Model != "all-MiniLM-L6-v2" {
		t.Errorf("unexpected model defaults: %+v %+v", cfg.Analyzer, cfg.Embedder)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conceptmine.yaml")
	content := `min_concept_len: 4
tie_policy: keep_all
engine_timeout: 5s
embedder:
  backend: http
  url: http://localhost:8080/v1/embeddings
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MinConceptLen != 4 || cfg.MaxConceptLen != 100 {
		t.Errorf("lengths = %d..%d", cfg.MinConceptLen, cfg.MaxConceptLen)
	}
	if cfg.TiePolicy != "keep_all" {
		t.Errorf("tie policy = %q", cfg.TiePolicy)
	}
	if cfg.EngineTimeout != 5*time.Second {
		t.Errorf("engine timeout = %v", cfg.EngineTimeout)
	}
	if cfg.Embedder.Model != "all-MiniLM-L6-v2" {
		t.Errorf("nested default lost: %q", cfg.Embedder.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadMissingAndMalformed(t *testing.T) {
	if _, err := Load("/nonexistent/conceptmine.yaml"); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("batch_size: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	cfg, err := Load("")
	if err != nil || cfg.BatchSize != 32 {
		t.Errorf("empty path should return defaults, got %+v, %v", cfg, err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"min too small":    func(c *Config) { c.MinConceptLen = 0 },
		"max below min":    func(c *Config) { c.MaxConceptLen = 2 },
		"batch size":       func(c *Config) { c.BatchSize = 0 },
		"workers":          func(c *Config) { c.Workers = -1 },
		"tie policy":       func(c *Config) { c.TiePolicy = "longest" },
		"backend":          func(c *Config) { c.Embedder.Backend = "grpc" },
		"http without url": func(c *Config) { c.Embedder.Backend = BackendHTTP },
		"onnx without model": func(c *Config) {
			c.Embedder.Backend = BackendONNX
		},
		"timeout":    func(c *Config) { c.EngineTimeout = -time.Second },
		"cache size": func(c *Config) { c.Embedder.CacheSize = -1 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, internalerr.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CONCEPTMINE_BATCH_SIZE=8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONCEPTMINE_WORKERS", "3")
	t.Setenv("CONCEPTMINE_ENGINE_TIMEOUT", "250ms")
	t.Setenv("CONCEPTMINE_INCLUDE_ENTITIES", "true")
	t.Setenv("CONCEPTMINE_CACHE_SIZE", "5000")
	t.Setenv("CONCEPTMINE_MIN_CONCEPT_LEN", "not-a-number")
	t.Cleanup(func() { os.Unsetenv("CONCEPTMINE_BATCH_SIZE") })

	cfg := Default()
	if err := cfg.ApplyEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.BatchSize != 8 {
		t.Errorf("batch size from .env = %d", cfg.BatchSize)
	}
	if cfg.Workers != 3 || cfg.EngineTimeout != 250*time.Millisecond || !cfg.IncludeEntities {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Embedder.CacheSize != 5000 {
		t.Errorf("cache size from env = %d", cfg.Embedder.CacheSize)
	}
	if cfg.MinConceptLen != 3 {
		t.Errorf("invalid value should keep default, got %d", cfg.MinConceptLen)
	}
}
