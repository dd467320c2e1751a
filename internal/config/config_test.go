package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Store.Backend)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.Alpha != 0.7 {
		t.Errorf("expected alpha 0.7, got %f", cfg.Search.Alpha)
	}
	if cfg.Chunking.MaxSectionChars != 1000 {
		t.Errorf("expected 1000, got %d", cfg.Chunking.MaxSectionChars)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[store]
backend = "postgres"
postgres_url = "postgres://localhost/quarry"

[search]
top_k = 25
`), 0644)

	cfg := Load(path)
	if cfg.Store.Backend != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.Store.Backend)
	}
	if cfg.Search.TopK != 25 {
		t.Errorf("expected top_k 25, got %d", cfg.Search.TopK)
	}
	// Defaults preserved
	if cfg.Search.Alpha != 0.7 {
		t.Errorf("default should be preserved, got %f", cfg.Search.Alpha)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("QUARRY_EMBEDDING_API_KEY", "env-key")
	t.Setenv("QUARRY_STORE_PATH", "/data/env.db")
	t.Setenv("QUARRY_EMBEDDING_DIMENSIONS", "768")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Embedding.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.Embedding.APIKey)
	}
	if cfg.Store.Path != "/data/env.db" {
		t.Errorf("expected /data/env.db, got %s", cfg.Store.Path)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected 768, got %d", cfg.Embedding.Dimensions)
	}
}

func TestQdrantEnvEnables(t *testing.T) {
	t.Setenv("QUARRY_QDRANT_URL", "http://qdrant:6333")

	cfg := Load("/nonexistent/path.toml")
	if !cfg.Qdrant.Enabled {
		t.Error("setting the qdrant url should enable the index")
	}
	if cfg.Qdrant.URL != "http://qdrant:6333" {
		t.Errorf("expected http://qdrant:6333, got %s", cfg.Qdrant.URL)
	}
}
