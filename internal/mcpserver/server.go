// Package mcpserver publishes the execution engine as an MCP server with
// two tools: execute_intent runs an intent end to end and search_tools
// previews which tools discovery would pick.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/mcpexec/internal/discovery"
	"github.com/flemzord/mcpexec/internal/engine"
	"github.com/flemzord/mcpexec/pkg/execution"
)

// Engine is the part of engine.Engine the tools call.
type Engine interface {
	Execute(ctx context.Context, req engine.Request) execution.Result
	Search(ctx context.Context, intent string, limit int) []discovery.Result
}

// Tool is one MCP tool handler.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates the MCP server with every tool registered.
func New(eng Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mcpexec",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range []Tool{NewExecuteTool(eng), NewSearchTool(eng)} {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

const instructions = "Describe what you want done in plain language with execute_intent. " +
	"The server picks matching tools, generates a program that calls them, checks it, " +
	"runs it in a sandbox and returns a short summary. Use search_tools first to see " +
	"which tools an intent would reach."

// intArg reads an integer argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, fallback int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return fallback
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, fallback bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return fallback
	}
	return v
}
