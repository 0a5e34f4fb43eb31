package harness

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/mcpexec/internal/bridge"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/internal/tool/tooltest"
)

func TestMain(m *testing.M) {
	// In-process runs must not lower the test binary's own limits.
	setLimits = func(Limits, bool) error { return nil }
	os.Exit(m.Run())
}

// echoHost answers every tool call with the call's arguments and collects
// the plain output lines.
type echoHost struct {
	calls []bridge.Request
	lines []string
}

func (h *echoHost) serve(t *testing.T, childOut io.Reader, childIn io.WriteCloser) {
	t.Helper()
	defer func() { _ = childIn.Close() }()
	sc := bufio.NewScanner(childOut)
	for sc.Scan() {
		req, ok, err := bridge.ParseRequest(sc.Text())
		if !ok {
			h.lines = append(h.lines, sc.Text())
			continue
		}
		if err != nil {
			_ = bridge.WriteResponse(childIn, bridge.Response{Error: err.Error()})
			continue
		}
		h.calls = append(h.calls, req)
		var args map[string]any
		_ = json.Unmarshal(req.Args, &args)
		resp := bridge.Response{ID: req.ID, OK: true, Result: args["input"]}
		if req.Tool == "fail" {
			resp = bridge.Response{ID: req.ID, Error: "backend unavailable"}
		}
		if err := bridge.WriteResponse(childIn, resp); err != nil {
			return
		}
	}
}

func runMain(t *testing.T, args []string) (code int, host *echoHost, stderr string) {
	t.Helper()
	outR, outW := io.Pipe()
	inR, inW := io.Pipe()
	host = &echoHost{}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		host.serve(t, outR, inW)
	}()

	var errBuf bytes.Buffer
	code = Main(args, inR, outW, &errBuf)
	_ = outW.Close()
	wg.Wait()
	return code, host, errBuf.String()
}

func writeArtifact(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.go")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func synthesize(t *testing.T, tools ...tool.Descriptor) string {
	t.Helper()
	a, err := synth.New(synth.Config{}, nil).Synthesize(synth.Request{
		Tools:   tools,
		Dialect: synth.TypedScript,
		Intent:  "say hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	return a.Source
}

func TestMain_TypedScriptEcho(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, synthesize(t, tooltest.Echo()))
	code, host, stderr := runMain(t, []string{"--dialect", "typed-script", "--profile", "restricted", path})
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if len(host.calls) != 1 || host.calls[0].Tool != "echo" {
		t.Fatalf("calls = %+v", host.calls)
	}
	if len(host.lines) == 0 {
		t.Fatal("no result line")
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(host.lines[len(host.lines)-1]), &got); err != nil {
		t.Fatalf("last line is not JSON: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"echo": "say hello"}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestMain_ToolErrorFailsArtifact(t *testing.T) {
	t.Parallel()

	failing := tool.Descriptor{
		Name:       "fail",
		Parameters: []tool.ParameterSpec{{Name: "input", Type: tool.TypeString, Required: true}},
	}
	path := writeArtifact(t, synthesize(t, failing))
	code, _, stderr := runMain(t, []string{path})
	if code != exitArtifact {
		t.Errorf("exit code = %d, want %d", code, exitArtifact)
	}
	if !strings.Contains(stderr, "backend unavailable") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestMain_RestrictedProfileBlocksExec(t *testing.T) {
	t.Parallel()

	src := `package main

import "os/exec"

func Run() (any, error) {
	return exec.Command("true").Run(), nil
}
`
	path := writeArtifact(t, src)

	code, _, stderr := runMain(t, []string{"--profile", "restricted", path})
	if code != exitArtifact {
		t.Errorf("restricted: exit code = %d, want %d (stderr %q)", code, exitArtifact, stderr)
	}
}

func TestMain_PrintsBeforeResult(t *testing.T) {
	t.Parallel()

	src := `package main

import "fmt"

func Run() (any, error) {
	fmt.Println("working")
	return []any{1, "two"}, nil
}
`
	code, host, stderr := runMain(t, []string{writeArtifact(t, src)})
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if diff := cmp.Diff([]string{"working", `[1,"two"]`}, host.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestMain_SetupErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"no file", []string{"--dialect", "typed-script"}},
		{"two files", []string{"a.go", "b.go"}},
		{"bad profile", []string{"--profile", "open", "a.go"}},
		{"bad dialect", []string{"--dialect", "cobol", "a.go"}},
		{"missing file", []string{filepath.Join(t.TempDir(), "absent.go")}},
		{"unknown flag", []string{"--turbo", "a.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stderr bytes.Buffer
			if code := Main(tt.args, strings.NewReader(""), io.Discard, &stderr); code != exitSetup {
				t.Errorf("exit code = %d, want %d", code, exitSetup)
			}
		})
	}
}

func TestMain_NoRunFunction(t *testing.T) {
	t.Parallel()

	code, _, stderr := runMain(t, []string{writeArtifact(t, "package main\n\nfunc Other() {}\n")})
	if code != exitArtifact || !strings.Contains(stderr, "Run") {
		t.Errorf("exit code = %d, stderr = %q", code, stderr)
	}
}

func TestInvocation_ArgsRoundTrip(t *testing.T) {
	t.Parallel()

	inv := Invocation{
		Dialect: DialectScriptedPython,
		Profile: ProfileRestricted,
		Limits:  Limits{MemoryBytes: 256 << 20, CPUSeconds: 5},
		Python:  "/usr/bin/python3",
		File:    "/tmp/ws/artifact.py",
	}
	o, err := parse(inv.Args(), io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	want := options{
		dialect: DialectScriptedPython,
		profile: "restricted",
		limits:  Limits{MemoryBytes: 256 << 20, CPUSeconds: 5, OpenFiles: RestrictedOpenFiles, FileSize: RestrictedFileSize},
		python:  "/usr/bin/python3",
		file:    "/tmp/ws/artifact.py",
	}
	if diff := cmp.Diff(want, o, cmp.AllowUnexported(options{})); diff != "" {
		t.Errorf("parse(Args()) mismatch (-want +got):\n%s", diff)
	}
}

func TestSymbols(t *testing.T) {
	t.Parallel()

	full := Symbols(ProfileFull)
	restricted := Symbols(ProfileRestricted)
	for _, key := range []string{"os/exec/exec", "net/http/http", "net/net"} {
		if _, ok := full[key]; !ok {
			t.Errorf("full profile missing %s", key)
		}
		if _, ok := restricted[key]; ok {
			t.Errorf("restricted profile exposes %s", key)
		}
	}
	for _, key := range []string{"encoding/json/json", "fmt/fmt", "strings/strings", "context/context"} {
		if _, ok := restricted[key]; !ok {
			t.Errorf("restricted profile missing %s", key)
		}
	}

	if _, ok := full["os/exec/exec"]["CommandContext"]; !ok {
		t.Error("full profile missing exec.CommandContext")
	}
	for _, name := range []string{"StartProcess", "FindProcess", "Exit"} {
		if _, ok := full["os/os"][name]; !ok {
			t.Errorf("full profile missing os.%s", name)
		}
		if _, ok := restricted["os/os"][name]; ok {
			t.Errorf("restricted profile exposes os.%s", name)
		}
	}
	if _, ok := restricted["os/os"]["ReadFile"]; !ok {
		t.Error("restricted profile lost os.ReadFile")
	}
	if _, ok := full["github.com/traefik/yaegi/stdlib/unrestricted/unrestricted"]; ok {
		t.Error("full profile exposes the interpreter's own symbol table")
	}
}

func TestMain_FullProfileRunsExec(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("no true binary")
	}
	src := `package main

import "os/exec"

func Run() (any, error) {
	return exec.Command("true").Run() == nil, nil
}
`
	code, host, stderr := runMain(t, []string{"--profile", "full", writeArtifact(t, src)})
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if len(host.lines) == 0 || host.lines[len(host.lines)-1] != "true" {
		t.Errorf("lines = %q, want a final true", host.lines)
	}
}
