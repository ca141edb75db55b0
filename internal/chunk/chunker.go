package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ragstore/ragstore/internal/errors"
)

// headingPattern matches markdown headings: # Title, ## Title, etc.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Chunker splits document text into token-budgeted chunks along paragraph
// boundaries. A paragraph is never split: a single paragraph over the
// effective target is kept whole (and logged), and a paragraph over the
// model token limit fails the document.
type Chunker struct {
	config Config
}

// New creates a chunker, validating the configuration.
func New(cfg Config) (*Chunker, error) {
	if cfg.TargetChunkSize <= 0 {
		return nil, errors.ConfigError(
			fmt.Sprintf("target chunk size must be positive, got %d", cfg.TargetChunkSize), nil)
	}
	if cfg.PaddingFactor <= 0 || cfg.PaddingFactor > 1 {
		return nil, errors.ConfigError(
			fmt.Sprintf("padding factor must be in (0, 1], got %g", cfg.PaddingFactor), nil)
	}
	if cfg.ModelTokenLimit < cfg.TargetChunkSize {
		return nil, errors.ConfigError(
			fmt.Sprintf("model token limit %d is below target chunk size %d",
				cfg.ModelTokenLimit, cfg.TargetChunkSize), nil)
	}
	if cfg.Counter == nil {
		return nil, errors.ConfigError("token counter is required", nil)
	}
	return &Chunker{config: cfg}, nil
}

// Chunk splits text into RawChunks. Empty or whitespace-only text yields
// zero chunks. Index, Total and TokenCount are populated on every chunk.
func (c *Chunker) Chunk(ctx context.Context, text string) ([]*RawChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	target := c.config.EffectiveTarget()

	// Whole document fits in one chunk: no paragraph scan needed.
	if total := c.config.Counter.Count(text); total <= target {
		chunk := &RawChunk{
			Content:    strings.TrimSpace(text),
			Index:      0,
			Total:      1,
			TokenCount: total,
		}
		if path, level := firstHeading(text); path != "" {
			chunk.HeadingPath = path
			chunk.HeadingLevel = level
		}
		return []*RawChunk{chunk}, nil
	}

	paragraphs := splitParagraphs(text)

	var chunks []*RawChunk
	var buffer []string

	headings := newHeadingTracker()
	bufferPath, bufferLevel := "", 0

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		content := strings.Join(buffer, "\n\n")
		chunks = append(chunks, &RawChunk{
			Content:      content,
			HeadingPath:  bufferPath,
			HeadingLevel: bufferLevel,
			Index:        len(chunks),
			TokenCount:   c.config.Counter.Count(content),
		})
		buffer = buffer[:0]
	}

	for _, para := range paragraphs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		headings.observe(para)

		paraTokens := c.config.Counter.Count(para)
		if paraTokens > c.config.ModelTokenLimit {
			return nil, errors.New(errors.ErrCodeParagraphTooLarge,
				fmt.Sprintf("paragraph of %d tokens exceeds the model token limit of %d and cannot be embedded",
					paraTokens, c.config.ModelTokenLimit), nil).
				WithDetail("paragraph_tokens", fmt.Sprintf("%d", paraTokens)).
				WithSuggestion("break the paragraph up in the source document, or use an embedding model with a larger context window")
		}

		// Budget the content as it will be stored, separators included:
		// per-paragraph sums undercount the blank lines rejoined between
		// paragraphs, and a chunk must only exceed the target when a lone
		// paragraph does.
		if len(buffer) > 0 {
			joined := strings.Join(buffer, "\n\n") + "\n\n" + para
			if c.config.Counter.Count(joined) > target {
				flush()
			}
		}

		if len(buffer) == 0 {
			bufferPath, bufferLevel = headings.current()
		}
		buffer = append(buffer, para)
	}

	flush()

	for _, ch := range chunks {
		ch.Total = len(chunks)

		// Policy for the soft budget: a lone oversized paragraph is kept
		// whole rather than split mid-paragraph. Surface it in the logs.
		if ch.TokenCount > target {
			slog.Warn("chunk exceeds effective target",
				slog.Int("chunk_index", ch.Index),
				slog.Int("tokens", ch.TokenCount),
				slog.Int("effective_target", target))
		}
	}

	return chunks, nil
}

// splitParagraphs splits text on blank-line boundaries, dropping empty parts.
func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")

	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// headingTracker maintains a markdown heading stack across paragraphs so each
// chunk can carry the heading trail above it.
type headingTracker struct {
	stack [6]string
	level int
}

func newHeadingTracker() *headingTracker {
	return &headingTracker{}
}

// observe updates the stack if the paragraph starts with a heading line.
func (h *headingTracker) observe(para string) {
	firstLine, _, _ := strings.Cut(para, "\n")
	match := headingPattern.FindStringSubmatch(firstLine)
	if match == nil {
		return
	}

	level := len(match[1])
	h.stack[level-1] = strings.TrimSpace(match[2])
	for i := level; i < 6; i++ {
		h.stack[i] = ""
	}
	h.level = level
}

// current returns the joined heading path and the deepest active level.
func (h *headingTracker) current() (string, int) {
	var parts []string
	for i := 0; i < h.level; i++ {
		if h.stack[i] != "" {
			parts = append(parts, h.stack[i])
		}
	}
	return strings.Join(parts, " > "), h.level
}

// firstHeading returns the heading path for a single-chunk document:
// the first heading line, if any.
func firstHeading(text string) (string, int) {
	for _, line := range strings.Split(text, "\n") {
		if match := headingPattern.FindStringSubmatch(line); match != nil {
			return strings.TrimSpace(match[2]), len(match[1])
		}
	}
	return "", 0
}
