package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragstore/ragstore/internal/index"
	"github.com/ragstore/ragstore/internal/store"
)

func newUpdateCmd() *cobra.Command {
	var (
		onlyID     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "update <resources-file>",
		Short: "Re-index resources unconditionally",
		Long: `Rebuild chunks and embeddings for each resource in the file even
when its content hash is unchanged. Use --id to update a single
resource from the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := loadResources(args[0])
			if err != nil {
				return err
			}
			if onlyID != "" {
				resources = filterByID(resources, onlyID)
				if len(resources) == 0 {
					return fmt.Errorf("resource %q not found in %s", onlyID, args[0])
				}
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			total := &index.Result{Errors: make(map[string]error)}
			for _, r := range resources {
				result, err := app.coordinator.UpdateResource(cmd.Context(), r)
				if err != nil {
					total.Errors[r.ID] = err
					continue
				}
				total.ResourcesIndexed += result.ResourcesIndexed
				total.ResourcesUpdated += result.ResourcesUpdated
				total.ChunksCreated += result.ChunksCreated
				total.ChunksDeleted += result.ChunksDeleted
				total.DurationMs += result.DurationMs
			}
			return printIndexResult(cmd, total, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&onlyID, "id", "", "Update only the resource with this ID")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	return cmd
}

func filterByID(resources []*store.Resource, id string) []*store.Resource {
	for _, r := range resources {
		if r.ID == id {
			return []*store.Resource{r}
		}
	}
	return nil
}
