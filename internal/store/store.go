package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ragstore/ragstore/internal/errors"
)

const (
	dbFileName     = "ragstore.db"
	vectorFileName = "vectors.hnsw"
)

// Options configures a Store.
type Options struct {
	// Path is the store directory. Created if missing.
	Path string

	// Dimensions is the embedding vector length.
	Dimensions int

	// Metric is the distance metric, "cos" or "l2". Default: "cos".
	Metric string

	// MetadataFields are the schema-declared frontmatter fields overlaid
	// onto chunks as flattened columns.
	MetadataFields []string
}

// Store is the persistence layer: chunk rows and document records in SQLite,
// embeddings in an HNSW graph, both under one directory guarded by a
// cross-process write lock.
type Store struct {
	dir        string
	db         *metadataStore
	vectors    *VectorIndex
	lock       *writeLock
	vectorPath string
	config     VectorConfig
}

// Open opens or creates the store at opts.Path. The HNSW graph is loaded
// from disk when present; otherwise it is rebuilt from the embeddings
// persisted in SQLite, so a deleted graph file costs a rebuild, not data.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.ConfigError("store path is required", nil)
	}
	if opts.Dimensions <= 0 {
		return nil, errors.ConfigError(
			fmt.Sprintf("store dimensions must be positive, got %d", opts.Dimensions), nil)
	}

	lock := newWriteLock(opts.Path)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}

	db, err := openMetadataStore(filepath.Join(opts.Path, dbFileName), opts.MetadataFields)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	vectorPath := filepath.Join(opts.Path, vectorFileName)
	config := VectorConfig{Dimensions: opts.Dimensions, Metric: opts.Metric}

	savedDims, err := ReadVectorIndexDimensions(vectorPath)
	if err != nil {
		_ = db.Close()
		_ = lock.Release()
		return nil, err
	}
	if savedDims != 0 && savedDims != opts.Dimensions {
		_ = db.Close()
		_ = lock.Release()
		return nil, dimensionMismatch(savedDims, opts.Dimensions)
	}

	vectors, err := NewVectorIndex(config)
	if err != nil {
		_ = db.Close()
		_ = lock.Release()
		return nil, err
	}

	s := &Store{
		dir:        opts.Path,
		db:         db,
		vectors:    vectors,
		lock:       lock,
		vectorPath: vectorPath,
		config:     config,
	}

	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vectors.Load(vectorPath); err != nil {
			_ = s.closeHandles()
			return nil, err
		}
	} else if err := s.rebuildVectors(context.Background()); err != nil {
		_ = s.closeHandles()
		return nil, err
	}

	return s, nil
}

// rebuildVectors repopulates the graph from the embeddings stored in SQLite.
func (s *Store) rebuildVectors(ctx context.Context) error {
	ids, embeddings, err := s.db.AllEmbeddings(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return s.vectors.Add(ids, embeddings)
}

// InsertChunks persists chunks and their embeddings, then saves the graph.
func (s *Store) InsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := s.db.InsertChunks(ctx, chunks); err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
		embeddings[i] = chunk.Embedding
	}
	if err := s.vectors.Add(ids, embeddings); err != nil {
		return err
	}
	return s.vectors.Save(s.vectorPath)
}

// DeleteResource removes a resource's chunks and document record, returning
// the number of chunks deleted. Row deletion completes before vector
// deletion so a concurrent query can at worst see a vector whose row is
// already gone, which the row join filters out.
func (s *Store) DeleteResource(ctx context.Context, resourceID string) (int, error) {
	ids, err := s.db.DeleteChunksByResource(ctx, resourceID)
	if err != nil {
		return 0, err
	}
	s.vectors.Delete(ids)

	if err := s.db.DeleteDocument(ctx, resourceID); err != nil {
		return len(ids), err
	}
	if len(ids) > 0 {
		if err := s.vectors.Save(s.vectorPath); err != nil {
			return len(ids), err
		}
	}
	return len(ids), nil
}

// GetDocument returns the document record for a resource, nil when absent.
func (s *Store) GetDocument(ctx context.Context, resourceID string) (*DocumentRecord, error) {
	return s.db.GetDocument(ctx, resourceID)
}

// SaveDocument upserts a document record.
func (s *Store) SaveDocument(ctx context.Context, doc *DocumentRecord) error {
	return s.db.SaveDocument(ctx, doc)
}

// GetChunksByResource returns a resource's chunks in chunk-index order.
func (s *Store) GetChunksByResource(ctx context.Context, resourceID string) ([]*Chunk, error) {
	return s.db.GetChunksByResource(ctx, resourceID)
}

// Search runs filtered nearest-neighbor search. The graph is oversampled and
// hits are joined against the SQLite filter predicate; k widens until limit
// matches are found or the graph is exhausted. Results keep the graph's
// nearest-first order and may exceed limit; callers truncate.
func (s *Store) Search(ctx context.Context, query []float32, limit int, filters QueryFilters) ([]*SearchHit, error) {
	if limit <= 0 {
		return nil, errors.InternalError(fmt.Sprintf("search limit must be positive, got %d", limit), nil)
	}
	if s.vectors.Count() == 0 {
		return nil, nil
	}

	k := max(limit*4, 32)
	for {
		candidates, err := s.vectors.Search(query, k)
		if err != nil {
			return nil, err
		}

		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		matched, err := s.db.SelectMatching(ctx, ids, filters)
		if err != nil {
			return nil, err
		}

		hits := make([]*SearchHit, 0, len(matched))
		for _, c := range candidates {
			chunk, ok := matched[c.ID]
			if !ok {
				continue
			}
			hits = append(hits, &SearchHit{
				Chunk:    chunk,
				Distance: c.Distance,
				Score:    c.Score,
			})
		}

		if len(hits) >= limit || k >= s.vectors.graphLen() {
			return hits, nil
		}
		k *= 2
	}
}

// GetState reads a state value; missing keys return "".
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	return s.db.GetState(ctx, key)
}

// SetState writes a state value.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	return s.db.SetState(ctx, key, value)
}

// Stats aggregates counts, on-disk size and index identity without running a
// content query.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	chunkCount, docCount, err := s.db.Counts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ChunkCount:    chunkCount,
		DocumentCount: docCount,
		Dimensions:    s.vectors.Dimensions(),
	}

	if stats.EmbeddingModel, err = s.db.GetState(ctx, StateKeyIndexModel); err != nil {
		return nil, err
	}
	if raw, err := s.db.GetState(ctx, StateKeyLastIndexedAt); err != nil {
		return nil, err
	} else if raw != "" {
		if t, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			stats.LastIndexedAt = t
		}
	}

	for _, name := range []string{dbFileName, vectorFileName, vectorFileName + ".meta"} {
		if info, statErr := os.Stat(filepath.Join(s.dir, name)); statErr == nil {
			stats.SizeBytes += info.Size()
		}
	}
	return stats, nil
}

// Clear empties all persisted state, including the on-disk vector files, and
// leaves the store usable as if freshly created.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.Clear(ctx); err != nil {
		return err
	}

	if err := s.vectors.Close(); err != nil {
		return err
	}
	fresh, err := NewVectorIndex(s.config)
	if err != nil {
		return err
	}
	s.vectors = fresh

	for _, name := range []string{vectorFileName, vectorFileName + ".meta"} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return errors.StoreError("remove vector index file", err)
		}
	}
	return nil
}

// Close saves the graph, closes all handles and releases the write lock.
func (s *Store) Close() error {
	if s.vectors.Count() > 0 {
		if err := s.vectors.Save(s.vectorPath); err != nil {
			return err
		}
	}
	return s.closeHandles()
}

func (s *Store) closeHandles() error {
	var firstErr error
	if err := s.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.lock.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
