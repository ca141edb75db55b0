// Package chunk splits document text into token-budgeted,
// paragraph-respecting spans.
package chunk

import (
	"github.com/ragstore/ragstore/internal/token"
)

// Chunk size defaults
const (
	// DefaultTargetChunkSize is the soft token budget per chunk.
	DefaultTargetChunkSize = 512

	// DefaultModelTokenLimit is the hard ceiling imposed by the embedding
	// model's context window. A single paragraph above this fails the
	// resource; it is never split.
	DefaultModelTokenLimit = 8192

	// DefaultPaddingFactor shrinks the usable budget to absorb the token
	// counter's error margin.
	DefaultPaddingFactor = 0.8
)

// RawChunk is a pre-embedding span of document text.
type RawChunk struct {
	// Content is the chunk text.
	Content string

	// HeadingPath is the markdown heading trail above this chunk,
	// joined with " > ". Empty for headingless documents.
	HeadingPath string

	// HeadingLevel is the level of the nearest enclosing heading (1-6),
	// or 0 when there is none.
	HeadingLevel int

	// Index is the chunk's position in emission order (0-based).
	Index int

	// Total is the number of chunks emitted for the document.
	Total int

	// TokenCount is the estimated token count of Content.
	TokenCount int
}

// Config configures the chunker.
type Config struct {
	// TargetChunkSize is the soft token budget per chunk.
	TargetChunkSize int

	// ModelTokenLimit is the hard per-paragraph ceiling.
	ModelTokenLimit int

	// PaddingFactor scales the target down (0 < p <= 1).
	PaddingFactor float64

	// Counter estimates token counts.
	Counter token.Counter
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		TargetChunkSize: DefaultTargetChunkSize,
		ModelTokenLimit: DefaultModelTokenLimit,
		PaddingFactor:   DefaultPaddingFactor,
		Counter:         token.NewHeuristicCounter(),
	}
}

// EffectiveTarget is the usable chunk budget after padding.
func (c Config) EffectiveTarget() int {
	return int(float64(c.TargetChunkSize) * c.PaddingFactor)
}
