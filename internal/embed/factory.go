package embed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ragstore/ragstore/internal/errors"
)

// Provider represents an embedding provider selected by configuration.
type Provider string

const (
	// ProviderOllama uses a local Ollama server (default).
	ProviderOllama Provider = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API (or a compatible endpoint).
	ProviderOpenAI Provider = "openai"

	// ProviderStatic uses hash-based embeddings (offline fallback, tests).
	ProviderStatic Provider = "static"
)

// Options carries provider-independent construction parameters.
// Fields not relevant to the selected provider are ignored.
type Options struct {
	Model      string
	Host       string // Ollama host or OpenAI base URL
	APIKey     string // OpenAI only; falls back to OPENAI_API_KEY
	Dimensions int
	BatchSize  int
	CacheSize  int // 0 = default, negative = disable caching
}

// New creates an embedder for the given provider. Selection happens here and
// only here; callers depend on the Embedder contract, never on the concrete
// type. The result is wrapped with an LRU cache unless disabled.
func New(ctx context.Context, provider Provider, opts Options) (Embedder, error) {
	var embedder Embedder
	var err error

	switch Provider(strings.ToLower(string(provider))) {
	case ProviderOllama, "":
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       opts.Host,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			BatchSize:  opts.BatchSize,
		})

	case ProviderOpenAI:
		apiKey := opts.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     apiKey,
			BaseURL:    opts.Host,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			BatchSize:  opts.BatchSize,
		})

	case ProviderStatic:
		embedder = NewStaticEmbedder()

	default:
		return nil, errors.New(errors.ErrCodeProviderUnknown,
			fmt.Sprintf("unknown embedding provider %q", provider), nil).
			WithSuggestion("valid providers: ollama, openai, static")
	}

	if err != nil {
		return nil, err
	}

	if opts.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}

	return embedder, nil
}
