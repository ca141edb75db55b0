package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <resource-id>...",
		Short: "Remove resources from the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			for _, id := range args {
				deleted, err := app.coordinator.DeleteResource(cmd.Context(), id)
				if err != nil {
					return err
				}
				if deleted == 0 {
					fmt.Fprintf(out, "%s: not indexed\n", id)
					continue
				}
				fmt.Fprintf(out, "%s: removed %d chunks\n", id, deleted)
			}
			return nil
		},
	}
	return cmd
}
