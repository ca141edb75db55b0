package cmd

import (
	"context"

	"github.com/ragstore/ragstore/internal/chunk"
	"github.com/ragstore/ragstore/internal/config"
	"github.com/ragstore/ragstore/internal/embed"
	"github.com/ragstore/ragstore/internal/index"
	"github.com/ragstore/ragstore/internal/query"
	"github.com/ragstore/ragstore/internal/store"
	"github.com/ragstore/ragstore/internal/token"
)

// app bundles the wired engine for one CLI invocation.
type app struct {
	cfg         *config.Config
	store       *store.Store
	embedder    embed.Embedder
	coordinator *index.Coordinator
	engine      *query.Engine
}

// newApp loads configuration and wires embedder, store, coordinator and
// query engine. The caller must Close it.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(ctx, embed.Provider(cfg.Embedding.Provider), embed.Options{
		Model:      cfg.Embedding.Model,
		Host:       cfg.Embedding.Host,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	s, err := store.Open(store.Options{
		Path:           cfg.Store.Path,
		Dimensions:     embedder.Dimensions(),
		MetadataFields: cfg.Metadata.Fields,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	counter := token.New(cfg.Chunking.Counter)
	chunker, err := chunk.New(chunk.Config{
		TargetChunkSize: cfg.Chunking.TargetSize,
		ModelTokenLimit: cfg.Chunking.ModelTokenLimit,
		PaddingFactor:   cfg.Chunking.PaddingFactor,
		Counter:         counter,
	})
	if err != nil {
		_ = s.Close()
		_ = embedder.Close()
		return nil, err
	}

	coordinator, err := index.New(index.Config{
		Store:          s,
		Chunker:        chunker,
		Embedder:       embedder,
		MetadataFields: cfg.Metadata.Fields,
	})
	if err != nil {
		_ = s.Close()
		_ = embedder.Close()
		return nil, err
	}

	engine, err := query.New(s, embedder, counter)
	if err != nil {
		_ = s.Close()
		_ = embedder.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		store:       s,
		embedder:    embedder,
		coordinator: coordinator,
		engine:      engine,
	}, nil
}

// Close releases the store and embedder. The coordinator owns both, so its
// Close covers them.
func (a *app) Close() error {
	return a.coordinator.Close()
}
