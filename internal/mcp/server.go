// Package mcp serves dry-run validation tools to agents over the Model
// Context Protocol. Escape hatches are not exposed.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/hookwarden/internal/hooks"
)

// Config holds MCP server configuration.
type Config struct {
	Engine  *hooks.Engine
	Version string
	Logger  *slog.Logger
}

// Server wraps the MCP SDK server around a hook engine.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *hooks.Engine
	logger    *slog.Logger
}

// New creates an MCP server with the hookwarden tools registered.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("mcp: engine is required")
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{engine: cfg.Engine, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "hookwarden",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all hookwarden tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "hookwarden_check_tool",
		Description: "Check whether a tool call would be allowed at the current protection level without running it (dry-run). Does not consume escapes or change session state.",
	}, s.handleCheckTool)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "hookwarden_check_output",
		Description: "Check whether an outgoing message would be sent or cancelled at the current protection level (dry-run).",
	}, s.handleCheckOutput)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "hookwarden_status",
		Description: "Show the protection level and counters for a session.",
	}, s.handleStatus)
}
