package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/mcpexec/internal/discovery"
	"github.com/flemzord/mcpexec/internal/engine"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/tool/tooltest"
	"github.com/flemzord/mcpexec/pkg/execution"
)

type fakeEngine struct {
	last   engine.Request
	result execution.Result
	search []discovery.Result
	limit  int
}

func (f *fakeEngine) Execute(_ context.Context, req engine.Request) execution.Result {
	f.last = req
	return f.result
}

func (f *fakeEngine) Search(_ context.Context, _ string, limit int) []discovery.Result {
	f.limit = limit
	return f.search
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestExecuteTool_Definition(t *testing.T) {
	t.Parallel()

	def := NewExecuteTool(&fakeEngine{}).Definition()
	if def.Name != "execute_intent" {
		t.Errorf("name = %q", def.Name)
	}
	if len(def.InputSchema.Required) != 1 || def.InputSchema.Required[0] != "intent" {
		t.Errorf("required = %v", def.InputSchema.Required)
	}
}

func TestExecuteTool_Handle(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{result: execution.Result{ExecutionID: "e1", Success: true, Summary: "Ran echo: hi"}}
	res, err := NewExecuteTool(eng).Handle(context.Background(), makeReq(map[string]any{
		"intent":     "say hi",
		"dialect":    "scripted-python",
		"timeout_ms": float64(2000),
		"no_cache":   true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(res))
	}
	if resultText(res) != "Ran echo: hi" {
		t.Errorf("text = %q", resultText(res))
	}
	if res.StructuredContent == nil {
		t.Error("missing structured result")
	}
	if eng.last.Intent != "say hi" || eng.last.Dialect != synth.ScriptedPython || eng.last.Limits.Wall != 2*time.Second || !eng.last.NoCache {
		t.Errorf("engine request = %+v", eng.last)
	}
}

func TestExecuteTool_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args map[string]any
		res  execution.Result
		want string
	}{
		{name: "missing intent", args: map[string]any{}, want: "'intent' is required"},
		{name: "bad dialect", args: map[string]any{"intent": "x", "dialect": "perl"}, want: "dialect"},
		{name: "negative timeout", args: map[string]any{"intent": "x", "timeout_ms": float64(-5)}, want: "timeout_ms"},
		{
			name: "engine failure",
			args: map[string]any{"intent": "x"},
			res:  execution.Failed("e9", "no tools", "No relevant tools found for this intent"),
			want: "No relevant tools found for this intent (execution e9)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewExecuteTool(&fakeEngine{result: tt.res}).Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError || !strings.Contains(resultText(res), tt.want) {
				t.Errorf("result = %v %q, want error containing %q", res.IsError, resultText(res), tt.want)
			}
		})
	}
}

func TestSearchTool_Handle(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{search: []discovery.Result{{Descriptor: tooltest.HTTPGet(), Relevance: 0.71}}}
	res, err := NewSearchTool(eng).Handle(context.Background(), makeReq(map[string]any{"intent": "fetch a page", "limit": float64(3)}))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(res)
	if !strings.Contains(text, "1. http_get (0.71)") {
		t.Errorf("text = %q", text)
	}
	if eng.limit != 3 {
		t.Errorf("limit = %d, want 3", eng.limit)
	}

	empty, _ := NewSearchTool(&fakeEngine{}).Handle(context.Background(), makeReq(map[string]any{"intent": "nothing"}))
	if !strings.Contains(resultText(empty), "No relevant tools") {
		t.Errorf("empty text = %q", resultText(empty))
	}
}

func TestNew_ListsTools(t *testing.T) {
	t.Parallel()

	s := New(&fakeEngine{}, "test")
	tools := s.ListTools()
	for _, name := range []string{"execute_intent", "search_tools"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}
