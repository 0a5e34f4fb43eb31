// Package tooltest provides descriptor fixtures and registry helpers for
// tests of packages built on the tool registry.
package tooltest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/mcpexec/internal/tool"
)

// Echo returns a single-parameter tool that echoes its input.
func Echo() tool.Descriptor {
	return tool.Descriptor{
		Name:        "echo",
		Description: "Echo the given input text back unchanged",
		Category:    "util",
		Parameters: []tool.ParameterSpec{
			{Name: "input", Type: tool.TypeString, Required: true, Description: "Text to echo"},
		},
		Returns: &tool.ReturnSpec{Type: tool.TypeString},
	}
}

// HTTPGet, HTTPPost and FileRead form a small web/file toolset.
func HTTPGet() tool.Descriptor {
	return tool.Descriptor{
		Name:        "http_get",
		Description: "Fetch a web page or resource using an HTTP GET request",
		Category:    "web",
		Parameters: []tool.ParameterSpec{
			{Name: "url", Type: tool.TypeString, Required: true, Description: "Address to fetch"},
		},
		Returns: &tool.ReturnSpec{Type: tool.TypeString},
		Examples: []tool.Example{
			{Input: map[string]any{"url": "https://example.com"}, Output: "<html>example</html>"},
		},
	}
}

func HTTPPost() tool.Descriptor {
	return tool.Descriptor{
		Name:        "http_post",
		Description: "Send data to a web endpoint using an HTTP POST request",
		Category:    "web",
		Parameters: []tool.ParameterSpec{
			{Name: "url", Type: tool.TypeString, Required: true},
			{Name: "body", Type: tool.TypeObject, Required: false, Default: map[string]any{}, HasDefault: true},
		},
		Returns: &tool.ReturnSpec{Type: tool.TypeObject},
	}
}

func FileRead() tool.Descriptor {
	return tool.Descriptor{
		Name:        "file_read",
		Description: "Read the contents of a local file from disk",
		Category:    "fs",
		Parameters: []tool.ParameterSpec{
			{Name: "path", Type: tool.TypeString, Required: true},
		},
		Returns: &tool.ReturnSpec{Type: tool.TypeString},
	}
}

// NewRegistry builds a registry holding descs.
func NewRegistry(t testing.TB, descs ...tool.Descriptor) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry(nil)
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			t.Fatalf("registering %s: %v", d.Name, err)
		}
	}
	return r
}

// WriteFile writes raw descriptor JSON to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteDescriptors marshals descs, one file per descriptor, into a fresh
// temporary directory and returns it.
func WriteDescriptors(t testing.TB, descs ...tool.Descriptor) string {
	t.Helper()
	dir := t.TempDir()
	for _, d := range descs {
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			t.Fatalf("marshal %s: %v", d.Name, err)
		}
		WriteFile(t, dir, d.Name+".json", string(data))
	}
	return dir
}
