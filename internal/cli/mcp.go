package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/hookwarden/internal/hooks"
	hwmcp "github.com/ppiankov/hookwarden/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs hookwarden as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes dry-run tools: hookwarden_check_tool, hookwarden_check_output,\n" +
		"hookwarden_status. Escape hatches are operator-only and not exposed.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := hooks.Build(cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer rt.Close()
	rt.StartSweeps(cfg)

	srv, err := hwmcp.New(hwmcp.Config{Engine: rt.Engine, Version: version, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "hookwarden MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Level: %s\n", rt.Engine.Level())
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
