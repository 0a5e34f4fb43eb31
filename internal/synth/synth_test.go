package synth_test

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/flemzord/mcpexec/internal/bridge"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/internal/tool/tooltest"
)

func TestSynthesize_Deterministic(t *testing.T) {
	t.Parallel()

	s := synth.New(synth.Config{}, nil)
	for _, d := range synth.Dialects {
		req := synth.Request{
			Tools:   []tool.Descriptor{tooltest.HTTPGet(), tooltest.FileRead()},
			Dialect: d,
			Intent:  "fetch a web page",
		}
		a, err := s.Synthesize(req)
		if err != nil {
			t.Fatalf("%s: Synthesize() error = %v", d, err)
		}
		b, err := s.Synthesize(req)
		if err != nil {
			t.Fatalf("%s: second Synthesize() error = %v", d, err)
		}
		if a.Source != b.Source {
			t.Errorf("%s: sources differ between runs", d)
		}
		if a.Digest() != b.Digest() {
			t.Errorf("%s: digests differ between runs", d)
		}
		if a.EstimatedCost != synth.EstimateCost(a.Source) {
			t.Errorf("%s: EstimatedCost = %d, want %d", d, a.EstimatedCost, synth.EstimateCost(a.Source))
		}
		if got := strings.Join(a.Tools, ","); got != "http_get,file_read" {
			t.Errorf("%s: Tools = %q", d, got)
		}
	}
}

func TestEstimateCost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src  string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := synth.EstimateCost(tt.src); got != tt.want {
			t.Errorf("EstimateCost(len %d) = %d, want %d", len(tt.src), got, tt.want)
		}
	}
}

func TestSynthesize_TypedScriptShape(t *testing.T) {
	t.Parallel()

	s := synth.New(synth.Config{}, nil)
	a, err := s.Synthesize(synth.Request{
		Tools:   []tool.Descriptor{tooltest.HTTPGet(), tooltest.HTTPPost()},
		Dialect: synth.TypedScript,
		Intent:  "post \"data\" somewhere",
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	for _, want := range []string{
		"package main",
		`"toolrt"`,
		"func httpGet(ctx context.Context, url string) (",
		"func httpPost(ctx context.Context, url string, body map[string]any) (",
		"func Run() (any, error)",
		`results["http_get"] = value`,
		`httpGet(ctx, "post \"data\" somewhere")`,
		`map[string]any{}`,
	} {
		if !strings.Contains(a.Source, want) {
			t.Errorf("source missing %q\n%s", want, a.Source)
		}
	}
	if strings.Contains(a.Source, "func main(") {
		t.Error("typed-script artifact must not declare main")
	}
	if len(a.Dependencies) != 1 || a.Dependencies[0] != "toolrt" {
		t.Errorf("Dependencies = %v, want [toolrt]", a.Dependencies)
	}
}

func TestSynthesize_PythonShape(t *testing.T) {
	t.Parallel()

	s := synth.New(synth.Config{}, nil)
	a, err := s.Synthesize(synth.Request{
		Tools:   []tool.Descriptor{tooltest.Echo()},
		Dialect: synth.ScriptedPython,
		Intent:  "echo hello world",
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	for _, want := range []string{
		"async def echo(",
		"async def main() -> Dict[str, Any]:",
		`results["echo"] = await echo("echo hello world")`,
		"print(json.dumps(asyncio.run(main())))",
		`_CALL_MARKER = "` + bridge.Marker + `"`,
	} {
		if !strings.Contains(a.Source, want) {
			t.Errorf("source missing %q\n%s", want, a.Source)
		}
	}
	if len(a.Dependencies) != 0 {
		t.Errorf("Dependencies = %v, want none", a.Dependencies)
	}
}

func TestSynthesize_Identifiers(t *testing.T) {
	t.Parallel()

	odd := []tool.Descriptor{
		{Name: "2fa.verify", Parameters: []tool.ParameterSpec{{Name: "type", Type: tool.TypeString, Required: true}}},
		{Name: "range", Parameters: []tool.ParameterSpec{{Name: "from", Type: tool.TypeNumber}}},
		{Name: "get-URL"},
		{Name: "get_url"},
	}

	tests := []struct {
		dialect synth.Dialect
		want    []string
	}{
		{synth.TypedScript, []string{"func tool2faVerify(ctx context.Context, typeArg string)", "func rangeTool(", "func getUrl(", "func getUrl2("}},
		{synth.ScriptedPython, []string{"async def tool_2fa_verify(type: str)", "async def range(from_: float)", "async def get_url(", "async def get_url2("}},
	}
	s := synth.New(synth.Config{}, nil)
	for _, tt := range tests {
		a, err := s.Synthesize(synth.Request{Tools: odd, Dialect: tt.dialect, Intent: "x"})
		if err != nil {
			t.Fatalf("%s: Synthesize() error = %v", tt.dialect, err)
		}
		for _, want := range tt.want {
			if !strings.Contains(a.Source, want) {
				t.Errorf("%s: source missing %q\n%s", tt.dialect, want, a.Source)
			}
		}
	}
}

func TestSynthesize_IntentInComment(t *testing.T) {
	t.Parallel()

	s := synth.New(synth.Config{}, nil)
	a, err := s.Synthesize(synth.Request{
		Tools:  []tool.Descriptor{tooltest.Echo()},
		Intent: "line one\nline two */   end",
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !strings.Contains(a.Source, "// Intent: line one line two */ end\n") {
		t.Errorf("intent comment not flattened:\n%s", a.Source)
	}
}

func TestSynthesize_TemplatesUnavailable(t *testing.T) {
	t.Parallel()

	s := synth.New(synth.Config{Templates: []fs.FS{fstest.MapFS{}}}, nil)
	_, err := s.Synthesize(synth.Request{Tools: []tool.Descriptor{tooltest.Echo()}, Intent: "x"})
	if !errors.Is(err, synth.ErrTemplatesUnavailable) {
		t.Fatalf("error = %v, want ErrTemplatesUnavailable", err)
	}
}

func TestSynthesize_FallsBackToLaterCandidate(t *testing.T) {
	t.Parallel()

	broken := fstest.MapFS{"typed-script.tmpl": {Data: []byte("{{ .Unclosed")}}
	s := synth.New(synth.Config{Templates: []fs.FS{broken, synth.Embedded()}}, nil)
	a, err := s.Synthesize(synth.Request{Tools: []tool.Descriptor{tooltest.Echo()}, Intent: "x"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !strings.Contains(a.Source, "func Run() (any, error)") {
		t.Errorf("expected embedded template output, got:\n%s", a.Source)
	}
}

func TestSynthesize_OverrideTemplate(t *testing.T) {
	t.Parallel()

	custom := fstest.MapFS{"scripted-python.tmpl": {Data: []byte("# {{ len .Tools }} tool(s)\n")}}
	s := synth.New(synth.Config{Templates: []fs.FS{custom, synth.Embedded()}}, nil)
	a, err := s.Synthesize(synth.Request{
		Tools:   []tool.Descriptor{tooltest.Echo(), tooltest.FileRead()},
		Dialect: synth.ScriptedPython,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if a.Source != "# 2 tool(s)\n" {
		t.Errorf("Source = %q", a.Source)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	s := synth.New(synth.Config{}, nil)
	if _, err := s.Synthesize(synth.Request{}); !errors.Is(err, synth.ErrNoTools) {
		t.Errorf("empty tools: error = %v, want ErrNoTools", err)
	}
	_, err := s.Synthesize(synth.Request{Tools: []tool.Descriptor{tooltest.Echo()}, Dialect: "cobol"})
	if !errors.Is(err, synth.ErrUnknownDialect) {
		t.Errorf("bad dialect: error = %v, want ErrUnknownDialect", err)
	}
}

func TestSynthesize_SideEffects(t *testing.T) {
	t.Parallel()

	s := synth.New(synth.Config{}, nil)
	a, err := s.Synthesize(synth.Request{
		Tools:  []tool.Descriptor{tooltest.HTTPPost(), tooltest.Echo()},
		Intent: "send",
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(a.SideEffects) == 0 {
		t.Error("expected side effects from http_post")
	}
}

func TestParseDialect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    synth.Dialect
		wantErr bool
	}{
		{"", synth.TypedScript, false},
		{"typed-script", synth.TypedScript, false},
		{"Python", synth.ScriptedPython, false},
		{"py", synth.ScriptedPython, false},
		{"ruby", "", true},
	}
	for _, tt := range tests {
		got, err := synth.ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
