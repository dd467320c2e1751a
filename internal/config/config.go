package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Store     StoreConfig     `toml:"store"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Quality   QualityConfig   `toml:"quality"`
	Search    SearchConfig    `toml:"search"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type EmbeddingConfig struct {
	Endpoint   string `toml:"endpoint"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

type StoreConfig struct {
	// Backend selects the primary store: "sqlite" or "postgres".
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type QdrantConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Collection string `toml:"collection"`
}

type ChunkingConfig struct {
	MaxSectionChars int `toml:"max_section_chars"`
	OverlapChars    int `toml:"overlap_chars"`
	MinSlideChars   int `toml:"min_slide_chars"`
	RowsPerGroup    int `toml:"rows_per_group"`
}

type QualityConfig struct {
	MinChars int `toml:"min_chars"`
	MaxChars int `toml:"max_chars"`
}

type SearchConfig struct {
	TopK  int     `toml:"top_k"`
	Alpha float64 `toml:"alpha"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8080"},
		Embedding: EmbeddingConfig{Model: "text-embedding-3-small", Dimensions: 1536},
		Store:     StoreConfig{Backend: "sqlite", Path: "quarry.db"},
		Qdrant:    QdrantConfig{URL: "http://localhost:6333", Collection: "fragments"},
		Chunking:  ChunkingConfig{MaxSectionChars: 1000, OverlapChars: 200, MinSlideChars: 200, RowsPerGroup: 20},
		Quality:   QualityConfig{MinChars: 50, MaxChars: 2000},
		Search:    SearchConfig{TopK: 10, Alpha: 0.7},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "quarry.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("QUARRY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("QUARRY_EMBEDDING_ENDPOINT"); v != "" {
		cfg.Embedding.Endpoint = v
	}
	if v := os.Getenv("QUARRY_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("QUARRY_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("QUARRY_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("QUARRY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("QUARRY_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("QUARRY_QDRANT_URL"); v != "" {
		cfg.Qdrant.URL = v
		cfg.Qdrant.Enabled = true
	}
	if v := os.Getenv("QUARRY_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Store.Backend == "postgres" && cfg.Store.PostgresURL == "" {
		cfg.Store.PostgresURL = os.Getenv("DATABASE_URL")
	}

	return cfg
}
