package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docindex/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize docindex configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the data directory, embedding provider and source directories, and writes a .docindex.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
