package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// SearchTool handles search_tools.
type SearchTool struct {
	engine Engine
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(eng Engine) *SearchTool {
	return &SearchTool{engine: eng}
}

// Definition returns the search_tools schema.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_tools",
		mcp.WithDescription("List the registered tools most relevant to an intent, best first, with their relevance scores."),
		mcp.WithString("intent",
			mcp.Required(),
			mcp.Description("The intent to match tools against"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of tools to return (default: 10)"),
		),
	)
}

// Handle ranks the tools for the intent.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	intent := strings.TrimSpace(req.GetString("intent", ""))
	if intent == "" {
		return mcp.NewToolResultError("'intent' is required"), nil
	}
	results := t.engine.Search(ctx, intent, max(intArg(req, "limit", 10), 1))
	if len(results) == 0 {
		return mcp.NewToolResultText("No relevant tools found for this intent."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d tool(s) for %q:\n", len(results), intent)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%.2f): %s\n", i+1, r.Descriptor.Name, r.Relevance, r.Descriptor.Description)
	}
	return mcp.NewToolResultText(b.String()), nil
}
