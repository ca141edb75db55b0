package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/ragstore/ragstore/internal/errors"
)

const testDims = 4

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(Options{
		Path:           dir,
		Dimensions:     testDims,
		MetadataFields: []string{"type", "author"},
	})
	require.NoError(t, err)
	return s
}

// axisVector returns a unit vector along the given axis.
func axisVector(axis int) []float32 {
	v := make([]float32, testDims)
	v[axis%testDims] = 1
	return v
}

func testChunk(id, resourceID string, axis int, meta map[string]string) *Chunk {
	return &Chunk{
		ID:             id,
		ResourceID:     resourceID,
		Content:        "content of " + id,
		ContentHash:    "hash-" + id,
		TokenCount:     10,
		ChunkIndex:     0,
		TotalChunks:    1,
		Embedding:      axisVector(axis),
		EmbeddingModel: "static-hash-256",
		EmbeddedAt:     time.Now().UTC(),
		Metadata:       meta,
	}
}

func TestStoreInsertAndSearch(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	// Given chunks from two resources on different axes
	chunks := []*Chunk{
		testChunk("c1", "r1", 0, map[string]string{"type": "guide"}),
		testChunk("c2", "r2", 1, map[string]string{"type": "reference"}),
	}
	require.NoError(t, s.InsertChunks(ctx, chunks))

	// When searching near the first axis with no filters
	hits, err := s.Search(ctx, axisVector(0), 10, QueryFilters{})
	require.NoError(t, err)

	// Then both chunks return, nearest first, with full rows attached
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].Chunk.ID)
	assert.Equal(t, "content of c1", hits[0].Chunk.Content)
	assert.Equal(t, "guide", hits[0].Chunk.Metadata["type"])
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestStoreMetadataFilter(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []*Chunk{
		testChunk("c1", "r1", 0, map[string]string{"type": "guide"}),
		testChunk("c2", "r2", 1, map[string]string{"type": "reference"}),
		testChunk("c3", "r3", 2, map[string]string{"type": "guide"}),
	}))

	hits, err := s.Search(ctx, axisVector(0), 10, QueryFilters{
		Metadata: map[string]string{"type": "guide"},
	})
	require.NoError(t, err)

	require.Len(t, hits, 2)
	for _, hit := range hits {
		assert.Equal(t, "guide", hit.Chunk.Metadata["type"])
	}
}

func TestStoreResourceFilter(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []*Chunk{
		testChunk("c1", "r1", 0, nil),
		testChunk("c2", "r2", 1, nil),
	}))

	hits, err := s.Search(ctx, axisVector(0), 10, QueryFilters{
		ResourceIDs: []string{"r2"},
	})
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].Chunk.ID)
}

func TestStoreDateRangeFilter(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	old := testChunk("c1", "r1", 0, nil)
	old.EmbeddedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := testChunk("c2", "r2", 1, nil)
	recent.EmbeddedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertChunks(ctx, []*Chunk{old, recent}))

	hits, err := s.Search(ctx, axisVector(0), 10, QueryFilters{
		DateRange: &DateRange{From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "c2", hits[0].Chunk.ID)
}

func TestStoreUnknownMetadataFilterField(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []*Chunk{testChunk("c1", "r1", 0, nil)}))

	_, err := s.Search(ctx, axisVector(0), 10, QueryFilters{
		Metadata: map[string]string{"nonexistent": "x"},
	})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeInvalidQuery, ragerrors.GetCode(err))
}

func TestStoreFilterWidensSearch(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	// Given many chunks where only the farthest few match the filter
	var chunks []*Chunk
	for i := 0; i < 40; i++ {
		meta := map[string]string{"type": "noise"}
		if i >= 36 {
			meta["type"] = "guide"
		}
		chunk := testChunk(fmt.Sprintf("c%d", i), fmt.Sprintf("r%d", i), 0, meta)
		// Distinct vectors fanning away from axis 0, so guides rank last.
		chunk.Embedding = []float32{1, float32(i) * 0.1, 0, 0}
		chunks = append(chunks, chunk)
	}
	require.NoError(t, s.InsertChunks(ctx, chunks))

	// When searching with a filter no initial oversample can satisfy
	hits, err := s.Search(ctx, axisVector(0), 2, QueryFilters{
		Metadata: map[string]string{"type": "guide"},
	})
	require.NoError(t, err)

	// Then widening reaches the matching chunks despite the closer noise
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 4)
	for _, hit := range hits {
		assert.Equal(t, "guide", hit.Chunk.Metadata["type"])
	}
}

func TestStoreDeleteResource(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []*Chunk{
		testChunk("c1", "r1", 0, nil),
		testChunk("c2", "r1", 1, nil),
		testChunk("c3", "r2", 2, nil),
	}))
	require.NoError(t, s.SaveDocument(ctx, &DocumentRecord{
		ResourceID: "r1", FilePath: "a.md", ContentHash: "h1", IndexedAt: time.Now(),
	}))

	deleted, err := s.DeleteResource(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	doc, err := s.GetDocument(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	hits, err := s.Search(ctx, axisVector(0), 10, QueryFilters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c3", hits[0].Chunk.ID)

	// Deleting a resource with no chunks is not an error
	deleted, err = s.DeleteResource(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestStoreDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	indexedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := &DocumentRecord{
		ResourceID:  "r1",
		FilePath:    "docs/guide.md",
		Content:     "full document text",
		ContentHash: "abc123",
		TokenCount:  42,
		TotalChunks: 3,
		IndexedAt:   indexedAt,
	}
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.FilePath, got.FilePath)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, doc.TotalChunks, got.TotalChunks)
	assert.True(t, got.IndexedAt.Equal(indexedAt))

	// Upsert replaces the record
	doc.ContentHash = "def456"
	require.NoError(t, s.SaveDocument(ctx, doc))
	got, err = s.GetDocument(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "def456", got.ContentHash)
}

func TestStoreChunkChainRoundTrip(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	first := testChunk("c1", "r1", 0, nil)
	second := testChunk("c2", "r1", 1, nil)
	first.ChunkIndex, first.TotalChunks, first.NextChunkID = 0, 2, "c2"
	second.ChunkIndex, second.TotalChunks, second.PrevChunkID = 1, 2, "c1"
	require.NoError(t, s.InsertChunks(ctx, []*Chunk{first, second}))

	chunks, err := s.GetChunksByResource(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "", chunks[0].PrevChunkID)
	assert.Equal(t, "c2", chunks[0].NextChunkID)
	assert.Equal(t, "c1", chunks[1].PrevChunkID)
	assert.Equal(t, "", chunks[1].NextChunkID)
}

func TestStoreStateRoundTrip(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	value, err := s.GetState(ctx, StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "nomic-embed-text"))
	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "static-hash-256"))

	value, err = s.GetState(ctx, StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "static-hash-256", value)
}

func TestStorePersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	require.NoError(t, s.InsertChunks(ctx, []*Chunk{
		testChunk("c1", "r1", 0, map[string]string{"type": "guide"}),
	}))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, dir)
	defer reopened.Close()

	hits, err := reopened.Search(ctx, axisVector(0), 10, QueryFilters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].Chunk.ID)
	assert.Equal(t, "guide", hits[0].Chunk.Metadata["type"])
}

func TestStoreRebuildsGraphFromRows(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	require.NoError(t, s.InsertChunks(ctx, []*Chunk{
		testChunk("c1", "r1", 0, nil),
		testChunk("c2", "r2", 1, nil),
	}))
	require.NoError(t, s.Close())

	// Losing the graph files costs a rebuild, not data
	require.NoError(t, os.Remove(filepath.Join(dir, vectorFileName)))
	require.NoError(t, os.Remove(filepath.Join(dir, vectorFileName+".meta")))

	reopened := openTestStore(t, dir)
	defer reopened.Close()

	hits, err := reopened.Search(ctx, axisVector(1), 10, QueryFilters{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c2", hits[0].Chunk.ID)
}

func TestStoreDimensionMismatchOnOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	require.NoError(t, s.InsertChunks(ctx, []*Chunk{testChunk("c1", "r1", 0, nil)}))
	require.NoError(t, s.Close())

	_, err := Open(Options{Path: dir, Dimensions: testDims + 1})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeDimensionMismatch, ragerrors.GetCode(err))
}

func TestStoreLockExcludesSecondWriter(t *testing.T) {
	dir := t.TempDir()

	s := openTestStore(t, dir)
	defer s.Close()

	_, err := Open(Options{Path: dir, Dimensions: testDims})
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeStoreLocked, ragerrors.GetCode(err))
}

func TestStoreClear(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	defer s.Close()

	require.NoError(t, s.InsertChunks(ctx, []*Chunk{testChunk("c1", "r1", 0, nil)}))
	require.NoError(t, s.SaveDocument(ctx, &DocumentRecord{ResourceID: "r1", IndexedAt: time.Now()}))
	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "static-hash-256"))

	require.NoError(t, s.Clear(ctx))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ChunkCount)
	assert.Equal(t, 0, stats.DocumentCount)
	assert.Equal(t, "", stats.EmbeddingModel)

	_, statErr := os.Stat(filepath.Join(dir, vectorFileName))
	assert.True(t, os.IsNotExist(statErr))

	// The store stays usable after clear
	require.NoError(t, s.InsertChunks(ctx, []*Chunk{testChunk("c2", "r2", 1, nil)}))
	hits, err := s.Search(ctx, axisVector(1), 10, QueryFilters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestStoreStats(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	lastIndexed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertChunks(ctx, []*Chunk{
		testChunk("c1", "r1", 0, nil),
		testChunk("c2", "r1", 1, nil),
	}))
	require.NoError(t, s.SaveDocument(ctx, &DocumentRecord{ResourceID: "r1", IndexedAt: lastIndexed}))
	require.NoError(t, s.SetState(ctx, StateKeyIndexModel, "static-hash-256"))
	require.NoError(t, s.SetState(ctx, StateKeyLastIndexedAt, lastIndexed.Format(time.RFC3339Nano)))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, "static-hash-256", stats.EmbeddingModel)
	assert.Equal(t, testDims, stats.Dimensions)
	assert.Greater(t, stats.SizeBytes, int64(0))
	assert.True(t, stats.LastIndexedAt.Equal(lastIndexed))
}

func TestValidMetadataField(t *testing.T) {
	assert.True(t, ValidMetadataField("type"))
	assert.True(t, ValidMetadataField("author_name"))
	assert.True(t, ValidMetadataField("tag2"))
	assert.False(t, ValidMetadataField(""))
	assert.False(t, ValidMetadataField("Type"))
	assert.False(t, ValidMetadataField("2tag"))
	assert.False(t, ValidMetadataField("drop table"))
	assert.False(t, ValidMetadataField("a;--"))
}
