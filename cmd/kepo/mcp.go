package main

import (
	"github.com/spf13/cobra"

	"github.com/HyphaGroup/kepoki/internal/logger"
	"github.com/HyphaGroup/kepoki/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve kepoki's MCP tools over stdio",
	Long: `Serve an MCP server on stdin and stdout exposing say_hello,
list_agents and describe_agent.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupContext()
	defer cancel()

	var catalog mcp.AgentCatalog
	reg, err := openRegistry()
	if err != nil {
		logger.WarnContext(ctx, "named agents unavailable", "error", err)
	} else {
		defer func() { _ = reg.Close() }()
		catalog = reg
	}

	srv, err := mcp.NewServer(mcp.ServerConfig{Version: Version, Agents: catalog})
	if err != nil {
		return err
	}
	return srv.ServeStdio(ctx)
}
