package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/docindex/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing document search, document lookup and reconciliation status tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "docindex MCP server started on stdio (data=%s)\n", a.cfg.DataDir)

		srv := mcpserver.NewServer(a.coord, a.newJob(nil))
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
