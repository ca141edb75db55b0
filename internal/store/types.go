// Package store persists chunks and document records in SQLite and their
// embeddings in an HNSW graph, and executes filtered nearest-neighbor search
// across the two.
package store

import (
	"regexp"
	"time"
)

// State keys in the key-value state table.
const (
	// StateKeyIndexModel stores the embedding model name used to build the index.
	StateKeyIndexModel = "index_embedding_model"
	// StateKeyIndexDimensions stores the embedding dimension used for the index.
	StateKeyIndexDimensions = "index_embedding_dimensions"
	// StateKeyLastIndexedAt stores the timestamp of the last successful index run.
	StateKeyLastIndexedAt = "last_indexed_at"
)

// Resource is an already-parsed input document supplied by the caller.
// Crawling and parsing happen upstream.
type Resource struct {
	ID          string            `json:"id"`
	FilePath    string            `json:"filePath"`
	Content     string            `json:"content"`
	ContentHash string            `json:"contentHash,omitempty"`
	Frontmatter map[string]string `json:"frontmatter,omitempty"`
}

// Chunk is the persisted unit of retrieval. Chunks are created and replaced
// by the indexing coordinator and never mutated in place.
type Chunk struct {
	ID             string
	ResourceID     string
	Content        string
	ContentHash    string
	TokenCount     int
	ChunkIndex     int
	TotalChunks    int
	HeadingPath    string
	Embedding      []float32
	EmbeddingModel string
	EmbeddedAt     time.Time
	PrevChunkID    string
	NextChunkID    string

	// Metadata holds the schema-declared frontmatter fields overlaid onto
	// this chunk. Persisted as flattened meta_<field> columns.
	Metadata map[string]string
}

// DocumentRecord tracks a whole indexed resource for change detection and
// document reconstruction.
type DocumentRecord struct {
	ResourceID  string
	FilePath    string
	Content     string
	ContentHash string
	TokenCount  int
	TotalChunks int
	IndexedAt   time.Time
}

// DateRange bounds chunk embedding timestamps. Zero values leave that side
// unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

// QueryFilters narrows a nearest-neighbor search. All populated filters must
// match (conjunction). Metadata keys refer to flattened schema fields.
type QueryFilters struct {
	ResourceIDs []string
	DateRange   *DateRange
	Metadata    map[string]string
}

// SearchHit is one filtered nearest-neighbor result: a stored chunk plus the
// raw distance and normalized score, which exist only on query results.
type SearchHit struct {
	Chunk    *Chunk
	Distance float32
	Score    float32
}

// Stats summarizes persisted state without running a content query.
type Stats struct {
	ChunkCount     int
	DocumentCount  int
	EmbeddingModel string
	Dimensions     int
	SizeBytes      int64
	LastIndexedAt  time.Time
}

// metaFieldPattern restricts schema-declared metadata field names so they can
// be embedded in column names without quoting hazards.
var metaFieldPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidMetadataField reports whether name is usable as a flattened metadata
// column.
func ValidMetadataField(name string) bool {
	return metaFieldPattern.MatchString(name)
}
