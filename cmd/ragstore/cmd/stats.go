package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type statsOutput struct {
	ChunkCount     int    `json:"chunk_count"`
	DocumentCount  int    `json:"document_count"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
	SizeBytes      int64  `json:"size_bytes"`
	LastIndexedAt  string `json:"last_indexed_at,omitempty"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.engine.GetStats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				output := statsOutput{
					ChunkCount:     stats.ChunkCount,
					DocumentCount:  stats.DocumentCount,
					EmbeddingModel: stats.EmbeddingModel,
					Dimensions:     stats.Dimensions,
					SizeBytes:      stats.SizeBytes,
				}
				if !stats.LastIndexedAt.IsZero() {
					output.LastIndexedAt = stats.LastIndexedAt.Format(time.RFC3339)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(output)
			}

			if stats.ChunkCount == 0 {
				fmt.Fprintln(out, "No data indexed yet. Run 'ragstore index' first.")
				return nil
			}
			fmt.Fprintf(out, "Documents:   %d\n", stats.DocumentCount)
			fmt.Fprintf(out, "Chunks:      %d\n", stats.ChunkCount)
			fmt.Fprintf(out, "Model:       %s (%d dimensions)\n", stats.EmbeddingModel, stats.Dimensions)
			fmt.Fprintf(out, "Size:        %s\n", formatBytes(stats.SizeBytes))
			if !stats.LastIndexedAt.IsZero() {
				fmt.Fprintf(out, "Last indexed: %s\n", stats.LastIndexedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
