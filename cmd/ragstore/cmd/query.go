package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragstore/ragstore/internal/errors"
	"github.com/ragstore/ragstore/internal/query"
	"github.com/ragstore/ragstore/internal/store"
)

func newQueryCmd() *cobra.Command {
	var (
		limit       int
		resourceIDs []string
		metaFilters []string
		since       string
		until       string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a filtered nearest-neighbor query",
		Long: `Embed the query text and return the closest chunks, ranked by
normalized similarity score. Filters narrow the candidate set before
ranking.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := buildFilters(resourceIDs, metaFilters, since, until)
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.engine.Query(cmd.Context(), query.RAGQuery{
				Text:    strings.Join(args, " "),
				Limit:   limit,
				Filters: filters,
			})
			if err != nil {
				return err
			}
			return printQueryResult(cmd, result, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0,
		fmt.Sprintf("Max results (default %d)", query.DefaultLimit))
	cmd.Flags().StringSliceVar(&resourceIDs, "resource", nil,
		"Only return chunks from these resource IDs")
	cmd.Flags().StringSliceVar(&metaFilters, "meta", nil,
		"Metadata equality filter, key=value (repeatable)")
	cmd.Flags().StringVar(&since, "since", "", "Only chunks embedded at or after this RFC3339 time or YYYY-MM-DD date")
	cmd.Flags().StringVar(&until, "until", "", "Only chunks embedded at or before this RFC3339 time or YYYY-MM-DD date")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func buildFilters(resourceIDs, metaFilters []string, since, until string) (store.QueryFilters, error) {
	filters := store.QueryFilters{ResourceIDs: resourceIDs}

	for _, pair := range metaFilters {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return filters, errors.New(errors.ErrCodeInvalidQuery,
				fmt.Sprintf("metadata filter %q is not key=value", pair), nil)
		}
		if filters.Metadata == nil {
			filters.Metadata = make(map[string]string)
		}
		filters.Metadata[key] = value
	}

	if since != "" || until != "" {
		dateRange := &store.DateRange{}
		if since != "" {
			t, err := parseTimeFlag(since)
			if err != nil {
				return filters, err
			}
			dateRange.From = t
		}
		if until != "" {
			t, err := parseTimeFlag(until)
			if err != nil {
				return filters, err
			}
			dateRange.To = t
		}
		filters.DateRange = dateRange
	}
	return filters, nil
}

func parseTimeFlag(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New(errors.ErrCodeInvalidQuery,
		fmt.Sprintf("cannot parse time %q", value), nil).
		WithSuggestion("use RFC3339 (2026-01-02T15:04:05Z) or a date (2026-01-02)")
}

// queryOutput is the JSON shape for query results.
type queryOutput struct {
	Chunks []queryChunkOutput `json:"chunks"`
	Stats  queryStatsOutput   `json:"stats"`
}

type queryChunkOutput struct {
	ChunkID     string            `json:"chunk_id"`
	ResourceID  string            `json:"resource_id"`
	Content     string            `json:"content"`
	HeadingPath string            `json:"heading_path,omitempty"`
	ChunkIndex  int               `json:"chunk_index"`
	TotalChunks int               `json:"total_chunks"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Distance    float32           `json:"distance"`
	Score       float32           `json:"score"`
}

type queryStatsOutput struct {
	TotalMatches     int    `json:"total_matches"`
	SearchDurationMs int64  `json:"search_duration_ms"`
	EmbeddingModel   string `json:"embedding_model"`
	TokensUsed       int    `json:"tokens_used,omitempty"`
}

func printQueryResult(cmd *cobra.Command, result *query.RAGResult, jsonOutput bool) error {
	out := cmd.OutOrStdout()

	if jsonOutput {
		output := queryOutput{
			Chunks: make([]queryChunkOutput, len(result.Chunks)),
			Stats: queryStatsOutput{
				TotalMatches:     result.Stats.TotalMatches,
				SearchDurationMs: result.Stats.SearchDurationMs,
				EmbeddingModel:   result.Stats.Embedding.Model,
				TokensUsed:       result.Stats.Embedding.TokensUsed,
			},
		}
		for i, sc := range result.Chunks {
			output.Chunks[i] = queryChunkOutput{
				ChunkID:     sc.Chunk.ID,
				ResourceID:  sc.Chunk.ResourceID,
				Content:     sc.Chunk.Content,
				HeadingPath: sc.Chunk.HeadingPath,
				ChunkIndex:  sc.Chunk.ChunkIndex,
				TotalChunks: sc.Chunk.TotalChunks,
				Metadata:    sc.Chunk.Metadata,
				Distance:    sc.Distance,
				Score:       sc.Score,
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	if len(result.Chunks) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}

	for i, sc := range result.Chunks {
		fmt.Fprintf(out, "%d. [%.3f] %s (chunk %d/%d)\n",
			i+1, sc.Score, sc.Chunk.ResourceID, sc.Chunk.ChunkIndex+1, sc.Chunk.TotalChunks)
		if sc.Chunk.HeadingPath != "" {
			fmt.Fprintf(out, "   %s\n", sc.Chunk.HeadingPath)
		}
		fmt.Fprintf(out, "   %s\n\n", snippet(sc.Chunk.Content, 200))
	}
	fmt.Fprintf(out, "%d matches in %dms (model: %s)\n",
		result.Stats.TotalMatches, result.Stats.SearchDurationMs, result.Stats.Embedding.Model)
	return nil
}

// snippet flattens whitespace and truncates content for terminal display.
func snippet(content string, maxLen int) string {
	flat := strings.Join(strings.Fields(content), " ")
	if len(flat) <= maxLen {
		return flat
	}
	return flat[:maxLen] + "..."
}
