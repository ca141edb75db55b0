// Package config loads and validates the ragstore configuration from YAML
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ragstore/ragstore/internal/errors"
	"github.com/ragstore/ragstore/internal/store"
)

// Config is the complete ragstore configuration.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Store     StoreConfig     `yaml:"store"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama", "openai" or "static". Empty defaults to ollama.
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model. Changing the model
	// invalidates prior vectors and requires a full re-index.
	Model string `yaml:"model"`

	// Host is the provider endpoint (Ollama host or OpenAI-compatible
	// base URL).
	Host string `yaml:"host"`

	// APIKey authenticates against OpenAI-compatible providers. Falls back
	// to OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// Dimensions overrides the provider's reported vector length.
	Dimensions int `yaml:"dimensions"`

	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size"`

	// CacheSize is the LRU embedding cache capacity. Negative disables it.
	CacheSize int `yaml:"cache_size"`
}

// ChunkingConfig tunes the token-budgeted chunker.
type ChunkingConfig struct {
	TargetSize      int     `yaml:"target_size"`
	ModelTokenLimit int     `yaml:"model_token_limit"`
	PaddingFactor   float64 `yaml:"padding_factor"`

	// Counter is "heuristic" or "word".
	Counter string `yaml:"counter"`
}

// StoreConfig locates the on-disk store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MetadataConfig declares the frontmatter fields overlaid onto chunks as
// flattened columns. Undeclared keys are dropped at index time.
type MetadataConfig struct {
	Fields []string `yaml:"fields"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// File is the log file path. Empty logs to stderr only.
	File string `yaml:"file"`
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "",
			BatchSize: 32,
			CacheSize: 1000,
		},
		Chunking: ChunkingConfig{
			TargetSize:      512,
			ModelTokenLimit: 8192,
			PaddingFactor:   0.8,
			Counter:         "heuristic",
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragstore", "index")
	}
	return filepath.Join(home, ".ragstore", "index")
}

// Load builds the configuration with increasing precedence: defaults, then
// the YAML file at path (skipped when empty and missing), then RAGSTORE_*
// environment variables.
func Load(path string) (*Config, error) {
	cfg := New()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(DefaultConfigPath()); err == nil {
		if err := cfg.loadYAML(DefaultConfigPath()); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigPath is ~/.ragstore/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragstore", "config.yaml")
	}
	return filepath.Join(home, ".ragstore", "config.yaml")
}

// loadYAML merges non-zero values from the file over the current config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errors.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}
	c.mergeWith(&parsed)
	return nil
}

func (c *Config) mergeWith(other *Config) {
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Host != "" {
		c.Embedding.Host = other.Embedding.Host
	}
	if other.Embedding.APIKey != "" {
		c.Embedding.APIKey = other.Embedding.APIKey
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Chunking.TargetSize != 0 {
		c.Chunking.TargetSize = other.Chunking.TargetSize
	}
	if other.Chunking.ModelTokenLimit != 0 {
		c.Chunking.ModelTokenLimit = other.Chunking.ModelTokenLimit
	}
	if other.Chunking.PaddingFactor != 0 {
		c.Chunking.PaddingFactor = other.Chunking.PaddingFactor
	}
	if other.Chunking.Counter != "" {
		c.Chunking.Counter = other.Chunking.Counter
	}

	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if len(other.Metadata.Fields) > 0 {
		c.Metadata.Fields = other.Metadata.Fields
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGSTORE_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("RAGSTORE_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("RAGSTORE_EMBEDDING_HOST"); v != "" {
		c.Embedding.Host = v
	}
	if v := os.Getenv("RAGSTORE_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("RAGSTORE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("RAGSTORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RAGSTORE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.BatchSize = n
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "", "ollama", "openai", "static":
	default:
		return errors.New(errors.ErrCodeProviderUnknown,
			fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider), nil).
			WithSuggestion("use one of: ollama, openai, static")
	}

	if c.Chunking.TargetSize <= 0 {
		return errors.ConfigError(
			fmt.Sprintf("chunking.target_size must be positive, got %d", c.Chunking.TargetSize), nil)
	}
	if c.Chunking.PaddingFactor <= 0 || c.Chunking.PaddingFactor > 1 {
		return errors.ConfigError(
			fmt.Sprintf("chunking.padding_factor must be in (0, 1], got %g", c.Chunking.PaddingFactor), nil)
	}
	if c.Chunking.ModelTokenLimit < c.Chunking.TargetSize {
		return errors.ConfigError(
			fmt.Sprintf("chunking.model_token_limit %d is below target_size %d",
				c.Chunking.ModelTokenLimit, c.Chunking.TargetSize), nil)
	}

	switch c.Chunking.Counter {
	case "", "heuristic", "word":
	default:
		return errors.ConfigError(
			fmt.Sprintf("unknown token counter %q", c.Chunking.Counter), nil)
	}

	if c.Store.Path == "" {
		return errors.ConfigError("store.path is required", nil)
	}

	for _, field := range c.Metadata.Fields {
		if !store.ValidMetadataField(field) {
			return errors.ConfigError(
				fmt.Sprintf("invalid metadata field name %q: must match [a-z][a-z0-9_]*", field), nil)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.ConfigError(
			fmt.Sprintf("unknown log level %q", c.Logging.Level), nil)
	}
	return nil
}
