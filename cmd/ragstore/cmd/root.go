// Package cmd provides the CLI commands for ragstore.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragstore/ragstore/internal/config"
	"github.com/ragstore/ragstore/internal/errors"
	"github.com/ragstore/ragstore/internal/logging"
	"github.com/ragstore/ragstore/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragstore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragstore",
		Short: "Index documents into a local vector store and query them",
		Long: `ragstore indexes already-parsed text documents into token-budgeted
chunks with vector embeddings and answers filtered nearest-neighbor
queries.

Resources come in as JSON or JSONL records (id, filePath, content,
frontmatter); crawling and parsing happen upstream.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragstore version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default "+config.DefaultConfigPath()+")")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging to "+logging.DefaultLogDir())

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(*cobra.Command, []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	_, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// Execute runs the CLI and prints any terminal error in user-facing form.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.FormatForCLI(err))
		return err
	}
	return nil
}
