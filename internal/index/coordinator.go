// Package index drives chunking, embedding and store writes for batches of
// resources, with hash-based change detection and per-resource error
// isolation.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ragstore/ragstore/internal/chunk"
	"github.com/ragstore/ragstore/internal/embed"
	"github.com/ragstore/ragstore/internal/errors"
	"github.com/ragstore/ragstore/internal/store"
)

// DefaultConcurrency bounds how many resources are processed at once.
// Delete-then-insert stays strictly ordered inside one resource; only
// independent resources run concurrently.
const DefaultConcurrency = 4

// Config wires the coordinator's collaborators.
type Config struct {
	Store    *store.Store
	Chunker  *chunk.Chunker
	Embedder embed.Embedder

	// MetadataFields are the schema-declared frontmatter fields to overlay
	// onto chunks. Keys outside this list are dropped.
	MetadataFields []string

	// Concurrency is the max number of resources indexed in parallel.
	// Defaults to DefaultConcurrency.
	Concurrency int
}

// Result aggregates one batch run.
type Result struct {
	ResourcesIndexed int
	ResourcesSkipped int
	ResourcesUpdated int
	ChunksCreated    int
	ChunksDeleted    int
	DurationMs       int64

	// Errors holds per-resource failures keyed by resource ID. A failed
	// resource never aborts the batch.
	Errors map[string]error
}

// Coordinator is the admin-path entry point: it owns all chunk creation and
// replacement. Chunks are never mutated in place.
type Coordinator struct {
	config Config
	mu     sync.Mutex
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.ConfigError("store is required", nil)
	}
	if cfg.Chunker == nil {
		return nil, errors.ConfigError("chunker is required", nil)
	}
	if cfg.Embedder == nil {
		return nil, errors.ConfigError("embedder is required", nil)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Coordinator{config: cfg}, nil
}

// IndexResources indexes a batch. Unchanged resources are skipped without
// re-chunking or re-embedding; changed resources are replaced wholesale with
// delete-then-insert. Independent resources run concurrently.
func (c *Coordinator) IndexResources(ctx context.Context, resources []*store.Resource) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result := &Result{Errors: make(map[string]error)}

	if err := c.checkModelCompatibility(ctx); err != nil {
		return nil, err
	}

	var resultMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for _, resource := range resources {
		resource := resource
		g.Go(func() error {
			outcome, err := c.processResource(gctx, resource)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				slog.Warn("resource indexing failed",
					slog.String("resource_id", resource.ID),
					slog.String("error", err.Error()))
				result.Errors[resource.ID] = err
				result.ChunksDeleted += outcome.deleted
				return nil
			}
			switch {
			case outcome.skipped:
				result.ResourcesSkipped++
			case outcome.updated:
				result.ResourcesUpdated++
			default:
				result.ResourcesIndexed++
			}
			result.ChunksCreated += outcome.created
			result.ChunksDeleted += outcome.deleted
			return nil
		})
	}
	// Worker funcs always return nil; per-resource failures live in
	// result.Errors.
	_ = g.Wait()

	// A batch where every resource failed leaves no data from this model
	// behind, so stamping the model state would misdescribe the store.
	if result.ResourcesIndexed+result.ResourcesUpdated+result.ResourcesSkipped > 0 {
		if err := c.recordIndexState(ctx); err != nil {
			return nil, err
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	slog.Info("index batch complete",
		slog.Int("indexed", result.ResourcesIndexed),
		slog.Int("skipped", result.ResourcesSkipped),
		slog.Int("updated", result.ResourcesUpdated),
		slog.Int("chunks_created", result.ChunksCreated),
		slog.Int("chunks_deleted", result.ChunksDeleted),
		slog.Int("errors", len(result.Errors)),
		slog.Int64("duration_ms", result.DurationMs))
	return result, nil
}

type outcome struct {
	skipped bool
	updated bool
	created int
	deleted int
}

func (c *Coordinator) processResource(ctx context.Context, resource *store.Resource) (outcome, error) {
	if resource.ID == "" {
		return outcome{}, errors.New(errors.ErrCodeChunkingFailed, "resource has no ID", nil)
	}

	hash := resource.ContentHash
	if hash == "" {
		hash = HashContent(resource.Content)
	}

	doc, err := c.config.Store.GetDocument(ctx, resource.ID)
	if err != nil {
		return outcome{}, err
	}
	if doc != nil && doc.ContentHash == hash {
		return outcome{skipped: true}, nil
	}

	var out outcome
	if doc != nil {
		out.updated = true
	}

	chunks, err := c.buildChunks(ctx, resource)
	if err != nil {
		return out, err
	}

	// Stale chunks must be gone before fresh ones land, so a concurrent
	// query never sees old and new chunks of one resource together. The
	// delete runs even without a document record: an earlier run that
	// failed between chunk insert and record save leaves orphaned chunks
	// behind, and inserting next to them would duplicate chunk indices.
	deleted, err := c.config.Store.DeleteResource(ctx, resource.ID)
	out.deleted = deleted
	if err != nil {
		return out, err
	}

	if err := c.config.Store.InsertChunks(ctx, chunks); err != nil {
		return out, err
	}

	tokenTotal := 0
	for _, ch := range chunks {
		tokenTotal += ch.TokenCount
	}
	record := &store.DocumentRecord{
		ResourceID:  resource.ID,
		FilePath:    resource.FilePath,
		Content:     resource.Content,
		ContentHash: hash,
		TokenCount:  tokenTotal,
		TotalChunks: len(chunks),
		IndexedAt:   time.Now().UTC(),
	}
	if err := c.config.Store.SaveDocument(ctx, record); err != nil {
		return out, err
	}

	out.created = len(chunks)
	return out, nil
}

// buildChunks runs the chunker and embedder and assembles persisted chunks:
// unique IDs, content hashes, overlay metadata and the prev/next chain.
func (c *Coordinator) buildChunks(ctx context.Context, resource *store.Resource) ([]*store.Chunk, error) {
	raw, err := c.config.Chunker.Chunk(ctx, resource.Content)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	texts := make([]string, len(raw))
	for i, rc := range raw {
		texts[i] = rc.Content
	}
	embeddings, err := c.config.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(raw) {
		return nil, errors.InternalError(fmt.Sprintf(
			"embedder returned %d vectors for %d chunks", len(embeddings), len(raw)), nil)
	}

	metadata := c.overlayMetadata(resource.Frontmatter)
	now := time.Now().UTC()

	chunks := make([]*store.Chunk, len(raw))
	for i, rc := range raw {
		chunks[i] = &store.Chunk{
			ID:             uuid.NewString(),
			ResourceID:     resource.ID,
			Content:        rc.Content,
			ContentHash:    HashContent(rc.Content),
			TokenCount:     rc.TokenCount,
			ChunkIndex:     rc.Index,
			TotalChunks:    rc.Total,
			HeadingPath:    rc.HeadingPath,
			Embedding:      embeddings[i],
			EmbeddingModel: c.config.Embedder.ModelName(),
			EmbeddedAt:     now,
			Metadata:       metadata,
		}
	}
	for i := range chunks {
		if i > 0 {
			chunks[i].PrevChunkID = chunks[i-1].ID
		}
		if i < len(chunks)-1 {
			chunks[i].NextChunkID = chunks[i+1].ID
		}
	}
	return chunks, nil
}

// overlayMetadata keeps only schema-declared frontmatter keys.
func (c *Coordinator) overlayMetadata(frontmatter map[string]string) map[string]string {
	if len(frontmatter) == 0 || len(c.config.MetadataFields) == 0 {
		return nil
	}
	overlay := make(map[string]string)
	for _, field := range c.config.MetadataFields {
		if value, ok := frontmatter[field]; ok {
			overlay[field] = value
		}
	}
	if len(overlay) == 0 {
		return nil
	}
	return overlay
}

// checkModelCompatibility refuses to mix embedding models in one index.
// Vectors from different models are not comparable; switching models
// requires a clear and a full re-index.
func (c *Coordinator) checkModelCompatibility(ctx context.Context) error {
	indexModel, err := c.config.Store.GetState(ctx, store.StateKeyIndexModel)
	if err != nil {
		return err
	}
	current := c.config.Embedder.ModelName()
	if indexModel != "" && indexModel != current {
		return errors.ModelMismatch(indexModel, current)
	}
	return nil
}

func (c *Coordinator) recordIndexState(ctx context.Context) error {
	s := c.config.Store
	if err := s.SetState(ctx, store.StateKeyIndexModel, c.config.Embedder.ModelName()); err != nil {
		return err
	}
	if err := s.SetState(ctx, store.StateKeyIndexDimensions,
		strconv.Itoa(c.config.Embedder.Dimensions())); err != nil {
		return err
	}
	return s.SetState(ctx, store.StateKeyLastIndexedAt,
		time.Now().UTC().Format(time.RFC3339Nano))
}

// UpdateResource re-indexes one resource unconditionally, replacing whatever
// is stored for it.
func (c *Coordinator) UpdateResource(ctx context.Context, resource *store.Resource) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result := &Result{Errors: make(map[string]error)}

	if err := c.checkModelCompatibility(ctx); err != nil {
		return nil, err
	}

	hash := resource.ContentHash
	if hash == "" {
		hash = HashContent(resource.Content)
	}

	chunks, err := c.buildChunks(ctx, resource)
	if err != nil {
		return nil, err
	}

	deleted, err := c.config.Store.DeleteResource(ctx, resource.ID)
	result.ChunksDeleted = deleted
	if err != nil {
		return nil, err
	}

	if err := c.config.Store.InsertChunks(ctx, chunks); err != nil {
		return nil, err
	}

	tokenTotal := 0
	for _, ch := range chunks {
		tokenTotal += ch.TokenCount
	}
	if err := c.config.Store.SaveDocument(ctx, &store.DocumentRecord{
		ResourceID:  resource.ID,
		FilePath:    resource.FilePath,
		Content:     resource.Content,
		ContentHash: hash,
		TokenCount:  tokenTotal,
		TotalChunks: len(chunks),
		IndexedAt:   time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := c.recordIndexState(ctx); err != nil {
		return nil, err
	}

	if deleted > 0 {
		result.ResourcesUpdated = 1
	} else {
		result.ResourcesIndexed = 1
	}
	result.ChunksCreated = len(chunks)
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// DeleteResource removes a resource's chunks and document record, returning
// the number of chunks removed.
func (c *Coordinator) DeleteResource(ctx context.Context, resourceID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Store.DeleteResource(ctx, resourceID)
}

// Clear empties all persisted state; the store remains usable.
func (c *Coordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Store.Clear(ctx)
}

// Close releases the store and the embedder.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	embErr := c.config.Embedder.Close()
	storeErr := c.config.Store.Close()
	if storeErr != nil {
		return storeErr
	}
	return embErr
}

// HashContent returns the hex sha256 of text, the change-detection
// fingerprint for resources and chunks.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
