// Package config loads and validates lectern configuration.
// Configuration comes from a TOML file with environment overrides; it is
// validated once at load and treated as immutable afterwards. Runtime
// reconfiguration means loading a fresh Config and rebuilding the services
// that consume it, never mutating a shared value in place.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

// Duration wraps time.Duration so TOML values can be written as "24h".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Storage backends.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// ChunkingConfig controls the chunker.
type ChunkingConfig struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
}

// CacheConfig controls the index cache.
type CacheConfig struct {
	MaxIndices int `toml:"max_indices"`
}

// SessionConfig controls the session store and its idle sweeper.
type SessionConfig struct {
	MaxSessions   int      `toml:"max_sessions"`
	MaxMessages   int      `toml:"max_messages"`
	IdleTimeout   Duration `toml:"idle_timeout"`
	SweepInterval Duration `toml:"sweep_interval"`
}

// StorageConfig selects the metadata registry backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
}

// RetrievalConfig controls query-time retrieval.
type RetrievalConfig struct {
	TopK int `toml:"top_k"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	BaseURL    string   `toml:"base_url"`
	Model      string   `toml:"model"`
	Dimensions int      `toml:"dimensions"`
	Timeout    Duration `toml:"timeout"`
	CacheTTL   Duration `toml:"cache_ttl"`
}

// LLMConfig configures the language model provider.
type LLMConfig struct {
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	Temperature float64  `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
	Timeout     Duration `toml:"timeout"`
	// Disabled turns off answer synthesis; queries return snippets only.
	Disabled bool `toml:"disabled"`
}

// LimitsConfig bounds outbound provider traffic.
type LimitsConfig struct {
	// RequestsPerSecond is the sustained rate for embedding and LLM calls.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	// Burst is the token bucket burst size.
	Burst int `toml:"burst"`
	// RequestTimeout bounds a single provider call made by the
	// orchestrator.
	RequestTimeout Duration `toml:"request_timeout"`
}

// Config is the complete application configuration.
type Config struct {
	// DataDir is the root for all durable state (metadata records, index
	// artifacts, the SQLite database).
	DataDir string `toml:"data_dir"`

	Verbose bool `toml:"verbose"`
	LogJSON bool `toml:"log_json"`

	Chunking  ChunkingConfig  `toml:"chunking"`
	Cache     CacheConfig     `toml:"cache"`
	Sessions  SessionConfig   `toml:"sessions"`
	Storage   StorageConfig   `toml:"storage"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Limits    LimitsConfig    `toml:"limits"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DataDir: filepath.Join(home, ".lectern"),
		Chunking: ChunkingConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
		},
		Cache: CacheConfig{
			MaxIndices: 20,
		},
		Sessions: SessionConfig{
			MaxSessions:   100,
			MaxMessages:   20,
			IdleTimeout:   Duration(24 * time.Hour),
			SweepInterval: Duration(time.Hour),
		},
		Storage: StorageConfig{
			Backend: StorageFile,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    Duration(30 * time.Second),
			CacheTTL:   Duration(30 * time.Minute),
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.2",
			Temperature: 0.7,
			Timeout:     Duration(2 * time.Minute),
		},
		Limits: LimitsConfig{
			RequestsPerSecond: 8,
			Burst:             16,
			RequestTimeout:    Duration(2 * time.Minute),
		},
	}
}

// Load reads the configuration file at path (Default() when path is empty
// or absent), applies environment overrides and validates the result.
// A `.env` file in the working directory is honoured if present.
func Load(path string) (Config, error) {
	// Missing .env is fine; it only feeds optional overrides.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults.
		case err != nil:
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides layers LECTERN_* environment variables over the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LECTERN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LECTERN_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("LECTERN_OLLAMA_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LECTERN_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("LECTERN_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LECTERN_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}
}

// Validate rejects configurations the core cannot run with. Validation
// failures are fatal at startup and never recovered.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", domain.ErrInvalidConfig)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunking.chunk_size must be positive", domain.ErrInvalidConfig)
	}
	if c.Chunking.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunking.chunk_overlap must not be negative", domain.ErrInvalidConfig)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunking.chunk_overlap (%d) must be smaller than chunking.chunk_size (%d)",
			domain.ErrInvalidConfig, c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Cache.MaxIndices <= 0 {
		return fmt.Errorf("%w: cache.max_indices must be positive", domain.ErrInvalidConfig)
	}
	if c.Sessions.MaxSessions <= 0 {
		return fmt.Errorf("%w: sessions.max_sessions must be positive", domain.ErrInvalidConfig)
	}
	if c.Sessions.MaxMessages <= 0 {
		return fmt.Errorf("%w: sessions.max_messages must be positive", domain.ErrInvalidConfig)
	}
	if c.Storage.Backend != StorageFile && c.Storage.Backend != StorageSQLite {
		return fmt.Errorf("%w: storage.backend must be %q or %q, got %q",
			domain.ErrInvalidConfig, StorageFile, StorageSQLite, c.Storage.Backend)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.top_k must be positive", domain.ErrInvalidConfig)
	}
	if c.Limits.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: limits.requests_per_second must be positive", domain.ErrInvalidConfig)
	}
	if c.Limits.Burst <= 0 {
		return fmt.Errorf("%w: limits.burst must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

// MetadataDir is where file-backed registry records live.
func (c *Config) MetadataDir() string {
	return filepath.Join(c.DataDir, "metadata")
}

// IndexDir is where persisted index artifacts live.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, "indices")
}
