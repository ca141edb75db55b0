package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstore/ragstore/internal/chunk"
	"github.com/ragstore/ragstore/internal/embed"
	ragerrors "github.com/ragstore/ragstore/internal/errors"
	"github.com/ragstore/ragstore/internal/index"
	"github.com/ragstore/ragstore/internal/store"
	"github.com/ragstore/ragstore/internal/token"
)

func newTestEngine(t *testing.T) (*Engine, *index.Coordinator, *store.Store) {
	t.Helper()

	s, err := store.Open(store.Options{
		Path:           t.TempDir(),
		Dimensions:     embed.StaticDimensions,
		MetadataFields: []string{"type"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	chunker, err := chunk.New(chunk.Config{
		TargetChunkSize: 256,
		ModelTokenLimit: 4096,
		PaddingFactor:   0.8,
		Counter:         token.New(token.CounterHeuristic),
	})
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder()
	coordinator, err := index.New(index.Config{
		Store:          s,
		Chunker:        chunker,
		Embedder:       embedder,
		MetadataFields: []string{"type"},
	})
	require.NoError(t, err)

	engine, err := New(s, embedder, token.New(token.CounterHeuristic))
	require.NoError(t, err)
	return engine, coordinator, s
}

func indexDocs(t *testing.T, coordinator *index.Coordinator, resources ...*store.Resource) {
	t.Helper()
	result, err := coordinator.IndexResources(context.Background(), resources)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
}

func TestQueryEmptyStoreIsDistinguished(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	// Querying before anything is indexed is an error, not an empty result
	_, err := engine.Query(context.Background(), RAGQuery{Text: "anything"})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeNoDataIndexed, ragerrors.GetCode(err))
}

func TestQueryRejectsEmptyText(t *testing.T) {
	engine, coordinator, _ := newTestEngine(t)
	indexDocs(t, coordinator, &store.Resource{ID: "r1", Content: "some text"})

	_, err := engine.Query(context.Background(), RAGQuery{Text: "   "})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeInvalidQuery, ragerrors.GetCode(err))
}

func TestQueryReturnsRankedResults(t *testing.T) {
	engine, coordinator, _ := newTestEngine(t)

	indexDocs(t, coordinator,
		&store.Resource{ID: "cooking", Content: "Simmer the tomato sauce with garlic and fresh basil."},
		&store.Resource{ID: "sailing", Content: "Trim the mainsail when the wind shifts to a broad reach."},
		&store.Resource{ID: "baking", Content: "Knead the dough and let it rise before baking the bread."},
	)

	result, err := engine.Query(context.Background(), RAGQuery{
		Text: "tomato sauce with garlic and basil",
	})
	require.NoError(t, err)

	// The lexically closest document wins under the static hash embedder
	require.NotEmpty(t, result.Chunks)
	assert.Equal(t, "cooking", result.Chunks[0].Chunk.ResourceID)

	// Scores are non-increasing and normalized into [0, 1]
	for i, sc := range result.Chunks {
		assert.GreaterOrEqual(t, sc.Score, float32(0))
		assert.LessOrEqual(t, sc.Score, float32(1))
		if i > 0 {
			assert.GreaterOrEqual(t, result.Chunks[i-1].Score, sc.Score)
		}
	}

	assert.Equal(t, len(result.Chunks), result.Stats.TotalMatches)
	assert.Equal(t, embed.StaticModelName, result.Stats.Embedding.Model)
	assert.Greater(t, result.Stats.Embedding.TokensUsed, 0)
}

func TestQueryDefaultLimit(t *testing.T) {
	engine, coordinator, _ := newTestEngine(t)

	var resources []*store.Resource
	for i := 0; i < 15; i++ {
		resources = append(resources, &store.Resource{
			ID:      fmt.Sprintf("r%d", i),
			Content: fmt.Sprintf("Document number %d about storage engines.", i),
		})
	}
	indexDocs(t, coordinator, resources...)

	result, err := engine.Query(context.Background(), RAGQuery{Text: "storage engines"})
	require.NoError(t, err)

	assert.Len(t, result.Chunks, DefaultLimit)
	assert.GreaterOrEqual(t, result.Stats.TotalMatches, DefaultLimit)
}

func TestQueryExplicitLimit(t *testing.T) {
	engine, coordinator, _ := newTestEngine(t)

	indexDocs(t, coordinator,
		&store.Resource{ID: "r1", Content: "alpha document"},
		&store.Resource{ID: "r2", Content: "beta document"},
		&store.Resource{ID: "r3", Content: "gamma document"},
	)

	result, err := engine.Query(context.Background(), RAGQuery{Text: "document", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 2)
}

func TestQueryMetadataFilter(t *testing.T) {
	engine, coordinator, _ := newTestEngine(t)

	indexDocs(t, coordinator,
		&store.Resource{
			ID: "g1", Content: "Install the service and start it.",
			Frontmatter: map[string]string{"type": "guide"},
		},
		&store.Resource{
			ID: "a1", Content: "Install options reference for the service.",
			Frontmatter: map[string]string{"type": "api"},
		},
	)

	result, err := engine.Query(context.Background(), RAGQuery{
		Text:    "install the service",
		Filters: store.QueryFilters{Metadata: map[string]string{"type": "guide"}},
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	for _, sc := range result.Chunks {
		assert.Equal(t, "guide", sc.Chunk.Metadata["type"])
	}
}

func TestQueryResourceFilter(t *testing.T) {
	engine, coordinator, _ := newTestEngine(t)

	indexDocs(t, coordinator,
		&store.Resource{ID: "r1", Content: "shared phrasing about deployment"},
		&store.Resource{ID: "r2", Content: "shared phrasing about deployment too"},
	)

	result, err := engine.Query(context.Background(), RAGQuery{
		Text:    "deployment",
		Filters: store.QueryFilters{ResourceIDs: []string{"r2"}},
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Chunks)
	for _, sc := range result.Chunks {
		assert.Equal(t, "r2", sc.Chunk.ResourceID)
	}
}

func TestQueryZeroMatchesIsNotAnError(t *testing.T) {
	engine, coordinator, _ := newTestEngine(t)

	indexDocs(t, coordinator, &store.Resource{
		ID: "r1", Content: "content",
		Frontmatter: map[string]string{"type": "guide"},
	})

	// A legitimate zero-match result is a success with no chunks
	result, err := engine.Query(context.Background(), RAGQuery{
		Text:    "content",
		Filters: store.QueryFilters{ResourceIDs: []string{"missing"}},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Equal(t, 0, result.Stats.TotalMatches)
}

func TestQueryModelMismatchIsFatal(t *testing.T) {
	engine, coordinator, s := newTestEngine(t)
	ctx := context.Background()

	indexDocs(t, coordinator, &store.Resource{ID: "r1", Content: "content"})
	require.NoError(t, s.SetState(ctx, store.StateKeyIndexModel, "nomic-embed-text"))

	_, err := engine.Query(ctx, RAGQuery{Text: "content"})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeModelMismatch, ragerrors.GetCode(err))
}

func TestGetStats(t *testing.T) {
	engine, coordinator, _ := newTestEngine(t)
	ctx := context.Background()

	// Empty store stats succeed and report zero chunks
	stats, err := engine.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunkCount)

	indexDocs(t, coordinator,
		&store.Resource{ID: "r1", Content: "first"},
		&store.Resource{ID: "r2", Content: "second"},
	)

	stats, err = engine.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, embed.StaticModelName, stats.EmbeddingModel)
	assert.False(t, stats.LastIndexedAt.IsZero())
}
