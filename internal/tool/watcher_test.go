package tool_test

import (
	"context"
	"testing"
	"time"

	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/internal/tool/tooltest"
)

func TestWatcher_ReindexesOnChange(t *testing.T) {
	t.Parallel()

	dir := tooltest.WriteDescriptors(t, tooltest.Echo())
	r := tool.NewRegistry(nil)
	if _, err := r.IndexFrom(context.Background(), dir); err != nil {
		t.Fatalf("IndexFrom: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := tool.NewWatcher(r, dir, 20*time.Millisecond, nil)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register its watches.
	time.Sleep(100 * time.Millisecond)
	tooltest.WriteFile(t, dir, "sub/new.json", `{"name": "file_read", "description": "Read a file"}`)
	tooltest.WriteFile(t, dir, "top.json", `{"name": "http_get", "description": "Fetch"}`)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Get("http_get"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("registry was not re-indexed, names = %v", r.Names())
}
