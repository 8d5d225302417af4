package main

import (
	"fmt"

	"github.com/nvandessel/episim/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Start a Model Context Protocol server exposing episim tools to
agents: episim_run, episim_ensemble, and episim_runs.

The server speaks MCP over stdin/stdout and runs until the client
disconnects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data")

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "episim",
				Version: version,
				DataDir: dataDir,
			})
			if err != nil {
				return fmt.Errorf("create MCP server: %w", err)
			}
			return server.Run(cmd.Context())
		},
	}
}
