package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/mcpexec/internal/audit"
	"github.com/flemzord/mcpexec/internal/tool"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "mcpexec dev") {
		t.Errorf("output = %q", out)
	}
}

func TestHarnessIsHidden(t *testing.T) {
	cmd, _, err := rootCmd().Find([]string{"harness"})
	if err != nil {
		t.Fatal(err)
	}
	if !cmd.Hidden || !cmd.DisableFlagParsing {
		t.Errorf("harness command: hidden=%v disableFlags=%v", cmd.Hidden, cmd.DisableFlagParsing)
	}
}

func TestToolsValidate(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("good.json", `{"name": "echo", "description": "Echo text", "parameters": [{"name": "input", "type": "string"}]}`)

	out, err := execute(t, "tools", "validate", dir)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok     echo") {
		t.Errorf("output = %q", out)
	}

	write("bad.json", `{"name": "", "description": "nameless"}`)
	out, err = execute(t, "tools", "validate", dir)
	if err == nil {
		t.Fatalf("expected problems, got:\n%s", out)
	}
	if !strings.Contains(out, "error") {
		t.Errorf("output = %q", out)
	}
}

func TestToolsList(t *testing.T) {
	dir := t.TempDir()
	tools := filepath.Join(dir, "tools")
	if err := os.MkdirAll(tools, 0o755); err != nil {
		t.Fatal(err)
	}
	desc := `{"name": "http_get", "description": "Fetch a web page", "category": "web", "parameters": [{"name": "url", "type": "string", "required": true}]}`
	if err := os.WriteFile(filepath.Join(tools, "http.json"), []byte(desc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "mcpexec.yaml")
	raw := "version: \"1\"\nlog:\n  level: error\ntools:\n  dir: tools\nworkspace:\n  base_dir: " + filepath.Join(dir, "ws") + "\n"
	if err := os.WriteFile(cfg, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfg, "tools", "list", "--category", "web")
	if err != nil {
		t.Fatalf("list: %v\n%s", err, out)
	}
	if !strings.Contains(out, "http_get") || !strings.Contains(out, "Fetch a web page") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "--config", cfg, "tools", "search", "fetch a web page")
	if err != nil {
		t.Fatalf("search: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1     http_get") {
		t.Errorf("output = %q", out)
	}
}

func TestAuditTail_JSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	w, err := audit.OpenJSONLFile(path)
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, kind := range []audit.Kind{audit.KindExecution, audit.KindSecurity, audit.KindExecution} {
		e := audit.Event{Sequence: uint64(i + 1), Timestamp: ts, Kind: kind, Severity: audit.SeverityInfo, ExecutionID: "e1"}
		if err := w.Write(t.Context(), e); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "mcpexec.yaml")
	if err := os.WriteFile(cfg, []byte("version: \"1\"\naudit:\n  jsonl: events.jsonl\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfg, "audit", "tail", "--kind", "execution", "-n", "1")
	if err != nil {
		t.Fatalf("tail: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 || !strings.HasPrefix(strings.TrimSpace(lines[0]), "3 ") {
		t.Errorf("output = %q", out)
	}
}

func TestAuditTail_NoSink(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "mcpexec.yaml")
	if err := os.WriteFile(cfg, []byte("version: \"1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", cfg, "audit", "tail"); err == nil {
		t.Error("expected an error without a persistent sink")
	}
}

func TestApprovalDetails(t *testing.T) {
	got := approvalDetails(tool.ApprovalRequest{
		Reasons: []string{"fs-mutation: os.Remove", "policy: rm requires approval"},
		Tools:   []string{"rm", "ls"},
		Source:  "package main",
	})
	want := "- fs-mutation: os.Remove\n- policy: rm requires approval\nTools: rm, ls\n\npackage main"
	if got != want {
		t.Errorf("approvalDetails() = %q, want %q", got, want)
	}
	if isTerminal(strings.NewReader("y\n")) {
		t.Error("a string reader is not a terminal")
	}
}
