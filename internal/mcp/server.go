package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
	"dataeng/internal/storage"
)

// Pipelines is the part of the pipeline service the MCP tools drive.
type Pipelines interface {
	Pipelines() []etl.Pipeline
	RunPipeline(ctx context.Context, name, trigger string) (*etl.SyncResult, error)
	Query(ctx context.Context, name, query string) (*etl.Table, error)
	History(ctx context.Context, name string, limit int) ([]storage.Run, error)
	Schema(ctx context.Context, name string) (*dbclient.SchemaInfo, error)
}

// Server is the MCP server for dataeng.
// It lets AI agents list, run and inspect the configured pipelines.
type Server struct {
	mcp       *server.MCPServer
	pipelines Pipelines
	trigger   string
}

// Deps holds the dependencies passed from the CLI to the MCP server.
type Deps struct {
	Pipelines Pipelines
	Version   string
	Trigger   string // recorded on runs started through MCP
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		pipelines: deps.Pipelines,
		trigger:   deps.Trigger,
	}

	s.mcp = server.NewMCPServer(
		"dataeng-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerPipelineTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	slog.Info("mcp: starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
