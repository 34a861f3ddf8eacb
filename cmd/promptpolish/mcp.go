package main

import (
	"github.com/spf13/cobra"

	"github.com/matiasleandrokruk/promptpolish/internal/mcpserver"
)

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve optimize_prompt and list_modes as MCP tools over stdio",
		Long: `mcp speaks the Model Context Protocol on stdin/stdout. Requests are
validated locally and sent to the configured proxy endpoint. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return mcpserver.Run(cmd.Context(), clientOptimizer(a.cfg, a.logger), a.logger.Named("mcp"))
		},
	}
}
