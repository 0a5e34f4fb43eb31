package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/mcpexec/internal/engine"
	"github.com/flemzord/mcpexec/internal/sandbox"
	"github.com/flemzord/mcpexec/internal/synth"
)

// ExecuteTool handles execute_intent.
type ExecuteTool struct {
	engine Engine
}

// NewExecuteTool creates an ExecuteTool.
func NewExecuteTool(eng Engine) *ExecuteTool {
	return &ExecuteTool{engine: eng}
}

// Definition returns the execute_intent schema.
func (t *ExecuteTool) Definition() mcp.Tool {
	return mcp.NewTool("execute_intent",
		mcp.WithDescription(
			"Run a natural-language intent against the registered tools. "+
				"Returns a summary of at most a few hundred characters plus the structured result. "+
				"Personal data in the output is replaced by tokens such as [EMAIL_1].",
		),
		mcp.WithString("intent",
			mcp.Required(),
			mcp.Description("What you want done, e.g. 'fetch the example.com home page'"),
		),
		mcp.WithString("dialect",
			mcp.Description("Program dialect: typed-script (default) or scripted-python"),
			mcp.Enum("typed-script", "scripted-python"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Wall-clock limit for the sandboxed run, in milliseconds"),
		),
		mcp.WithBoolean("no_cache",
			mcp.Description("Skip the result cache"),
		),
	)
}

// Handle runs the intent. Engine failures come back as tool errors with
// the failure summary, never as protocol errors.
func (t *ExecuteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	intent := strings.TrimSpace(req.GetString("intent", ""))
	if intent == "" {
		return mcp.NewToolResultError("'intent' is required"), nil
	}
	var dialect synth.Dialect
	if raw := req.GetString("dialect", ""); raw != "" {
		d, err := synth.ParseDialect(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		dialect = d
	}
	timeout := intArg(req, "timeout_ms", 0)
	if timeout < 0 {
		return mcp.NewToolResultError("'timeout_ms' must not be negative"), nil
	}

	res := t.engine.Execute(ctx, engine.Request{
		Intent:  intent,
		Dialect: dialect,
		Limits:  sandbox.Limits{Wall: time.Duration(timeout) * time.Millisecond},
		NoCache: boolArg(req, "no_cache", false),
	})
	if !res.Success {
		return mcp.NewToolResultError(fmt.Sprintf("%s (execution %s)", res.Summary, res.ExecutionID)), nil
	}
	return mcp.NewToolResultStructured(res, res.Summary), nil
}
