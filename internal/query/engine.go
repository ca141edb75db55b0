// Package query is the read path: it embeds a query with the index's own
// model, runs filtered nearest-neighbor search and ranks the results.
package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ragstore/ragstore/internal/embed"
	"github.com/ragstore/ragstore/internal/errors"
	"github.com/ragstore/ragstore/internal/store"
	"github.com/ragstore/ragstore/internal/token"
)

// DefaultLimit is the result count when a query does not set one.
const DefaultLimit = 10

// RAGQuery is a single retrieval request.
type RAGQuery struct {
	Text    string
	Limit   int
	Filters store.QueryFilters
}

// ScoredChunk is a stored chunk plus the query-time distance and normalized
// score. Distance and score exist only on query results, never on rows.
type ScoredChunk struct {
	Chunk    *store.Chunk
	Distance float32
	Score    float32
}

// EmbeddingStats describes the query embedding.
type EmbeddingStats struct {
	Model      string
	TokensUsed int
}

// RAGStats accompanies every result set.
type RAGStats struct {
	TotalMatches     int
	SearchDurationMs int64
	Embedding        EmbeddingStats
}

// RAGResult is the ranked answer to a RAGQuery.
type RAGResult struct {
	Chunks []*ScoredChunk
	Stats  RAGStats
}

// Engine answers queries against an existing index. Query calls are
// single-shot: any failure propagates directly to the caller.
type Engine struct {
	store    *store.Store
	embedder embed.Embedder
	counter  token.Counter
}

// New creates a query engine. counter may be nil; it only feeds the
// tokens-used statistic.
func New(s *store.Store, embedder embed.Embedder, counter token.Counter) (*Engine, error) {
	if s == nil {
		return nil, errors.ConfigError("store is required", nil)
	}
	if embedder == nil {
		return nil, errors.ConfigError("embedder is required", nil)
	}
	return &Engine{store: s, embedder: embedder, counter: counter}, nil
}

// Query embeds q.Text, searches under the filters and returns chunks in
// non-increasing score order, truncated to the limit. Querying an empty
// store is a distinguished error, never an empty result.
func (e *Engine) Query(ctx context.Context, q RAGQuery) (*RAGResult, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.New(errors.ErrCodeInvalidQuery, "query text is empty", nil)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	if err := e.ensureQueryable(ctx); err != nil {
		return nil, err
	}

	start := time.Now()

	vector, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	hits, err := e.store.Search(ctx, vector, limit, q.Filters)
	if err != nil {
		return nil, err
	}

	scored := make([]*ScoredChunk, len(hits))
	for i, hit := range hits {
		scored[i] = &ScoredChunk{
			Chunk:    hit.Chunk,
			Distance: hit.Distance,
			Score:    hit.Score,
		}
	}
	// The store returns nearest-first already; a stable sort keeps its
	// order as the tie-break.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	totalMatches := len(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	stats := RAGStats{
		TotalMatches:     totalMatches,
		SearchDurationMs: time.Since(start).Milliseconds(),
		Embedding:        EmbeddingStats{Model: e.embedder.ModelName()},
	}
	if e.counter != nil {
		stats.Embedding.TokensUsed = e.counter.Count(q.Text)
	}

	return &RAGResult{Chunks: scored, Stats: stats}, nil
}

// GetStats reports aggregate index state without running a content query.
// An empty store is a successful call with ChunkCount zero, so callers can
// tell "nothing indexed" apart from "query matched nothing".
func (e *Engine) GetStats(ctx context.Context) (*store.Stats, error) {
	return e.store.Stats(ctx)
}

// ensureQueryable rejects queries against an empty store and refuses to
// compare vectors across embedding models.
func (e *Engine) ensureQueryable(ctx context.Context) error {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.ChunkCount == 0 {
		return errors.NoDataIndexed()
	}

	indexModel, err := e.store.GetState(ctx, store.StateKeyIndexModel)
	if err != nil {
		return err
	}
	if current := e.embedder.ModelName(); indexModel != "" && indexModel != current {
		return errors.ModelMismatch(indexModel, current)
	}
	return nil
}
