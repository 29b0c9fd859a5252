package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docindex/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docindex",
	Short: "Document index kept consistent across a catalog and a vector store",
	Long: `docindex stores documents in two places: a SQLite catalog holding typed
metadata and a chromem vector store holding embeddings. Every write goes
through one coordinator, and a scheduled reconciliation job compares both
stores against the configured source directories and repairs any drift.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
