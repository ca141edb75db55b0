package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ragstore/ragstore/internal/config"
	"github.com/ragstore/ragstore/internal/embed"
	"github.com/ragstore/ragstore/internal/errors"
	"github.com/ragstore/ragstore/internal/preflight"
)

func newCheckCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the environment before indexing",
		Long: `Run preflight checks: store directory writability, free disk
space, and embedding provider reachability. Does not open the store, so
it works while another process holds the write lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			embedder, err := embed.New(cmd.Context(), embed.Provider(cfg.Embedding.Provider), embed.Options{
				Model:      cfg.Embedding.Model,
				Host:       cfg.Embedding.Host,
				APIKey:     cfg.Embedding.APIKey,
				Dimensions: cfg.Embedding.Dimensions,
				BatchSize:  cfg.Embedding.BatchSize,
				CacheSize:  cfg.Embedding.CacheSize,
			})
			if err != nil {
				return err
			}
			defer embedder.Close()

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
			)
			results := checker.RunAll(cmd.Context(), cfg.Store.Path, embedder)
			checker.PrintResults(results)

			if checker.HasCriticalFailures(results) {
				return errors.New(errors.ErrCodeProviderUnavailable,
					"preflight checks failed", nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	return cmd
}
