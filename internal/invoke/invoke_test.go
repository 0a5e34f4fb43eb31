package invoke

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/internal/tool/tooltest"
)

func registry(t *testing.T, descs ...tool.Descriptor) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry(nil)
	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func weather() tool.Descriptor {
	return tool.Descriptor{
		Name:        "weather",
		Description: "Current weather for a city",
		Parameters: []tool.ParameterSpec{
			{Name: "city", Type: tool.TypeString, Required: true},
			{Name: "days", Type: tool.TypeNumber},
		},
		Examples: []tool.Example{
			{Input: map[string]any{"city": "Paris"}, Output: "sunny"},
			{Input: map[string]any{"city": "Oslo", "days": 2}, Output: []any{"snow", "snow"}},
		},
	}
}

func TestExampleInvoker(t *testing.T) {
	t.Parallel()

	inv := NewExampleInvoker(registry(t, weather(), tooltest.Echo()))
	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		want    any
		wantErr error
	}{
		{name: "exact match", tool: "weather", args: map[string]any{"city": "Paris"}, want: "sunny"},
		{name: "numbers compare by value", tool: "weather", args: map[string]any{"city": "Oslo", "days": 2.0}, want: []any{"snow", "snow"}},
		{name: "first example otherwise", tool: "weather", args: map[string]any{"city": "Rome"}, want: "sunny"},
		{name: "no examples", tool: "echo", args: nil, wantErr: ErrNoExample},
		{name: "unknown tool", tool: "nope", wantErr: tool.ErrToolNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := inv.Invoke(context.Background(), tt.tool, tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRouter(t *testing.T) {
	t.Parallel()

	remote := weather()
	remote.Name = "forecast"
	remote.Server = "meteo"
	orphan := tooltest.Echo()
	orphan.Name = "orphan"
	orphan.Server = "gone"
	reg := registry(t, weather(), remote, orphan)

	var routed []string
	meteo := InvokerFunc(func(_ context.Context, name string, _ map[string]any) (any, error) {
		routed = append(routed, name)
		return "remote", nil
	})
	r := NewRouter(reg, map[string]Invoker{"meteo": meteo}, NewExampleInvoker(reg))

	got, err := r.Invoke(context.Background(), "forecast", nil)
	if err != nil || got != "remote" {
		t.Fatalf("forecast = %v, %v", got, err)
	}
	got, err = r.Invoke(context.Background(), "weather", map[string]any{"city": "Paris"})
	if err != nil || got != "sunny" {
		t.Fatalf("weather = %v, %v", got, err)
	}
	if _, err := r.Invoke(context.Background(), "orphan", nil); !errors.Is(err, ErrUnknownServer) {
		t.Errorf("orphan err = %v, want ErrUnknownServer", err)
	}
	if diff := cmp.Diff([]string{"forecast"}, routed); diff != "" {
		t.Errorf("routed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"meteo"}, r.Servers()); diff != "" {
		t.Errorf("servers (-want +got):\n%s", diff)
	}

	noFallback := NewRouter(reg, nil, nil)
	if _, err := noFallback.Invoke(context.Background(), "weather", nil); !errors.Is(err, ErrUnknownServer) {
		t.Errorf("err = %v, want ErrUnknownServer", err)
	}
}

func TestServerConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  ServerConfig
		ok   bool
	}{
		{name: "stdio", cfg: ServerConfig{Name: "a", Command: "srv"}, ok: true},
		{name: "http", cfg: ServerConfig{Name: "a", URL: "http://localhost:1/mcp"}, ok: true},
		{name: "both", cfg: ServerConfig{Name: "a", Command: "srv", URL: "http://x"}},
		{name: "neither", cfg: ServerConfig{Name: "a"}},
		{name: "no name", cfg: ServerConfig{Command: "srv"}},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}
