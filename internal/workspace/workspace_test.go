package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/mcpexec/internal/cleanup"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/pkg/execution"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *fakeClock, *cleanup.Manager) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cl := cleanup.NewManager(nil)
	m := NewManager(Config{BaseDir: filepath.Join(t.TempDir(), "ws")}, nil, cl)
	m.now = clock.now
	return m, clock, cl
}

var idPattern = regexp.MustCompile(`^ws-\d+-[0-9a-z]{12}$`)

func TestManager_Create(t *testing.T) {
	t.Parallel()

	m, clock, cl := newTestManager(t)
	ws, err := m.Create(synth.TypedScript, "package main\n")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !idPattern.MatchString(ws.ID) {
		t.Errorf("ID = %q, want ws-<millis>-<12 base36>", ws.ID)
	}
	if want := "ws-" + "1772366400000-"; ws.ID[:len(want)] != want {
		t.Errorf("ID = %q, want prefix %q", ws.ID, want)
	}
	if ws.Status != StatusPending {
		t.Errorf("Status = %q, want pending", ws.Status)
	}
	if !ws.CreatedAt.Equal(clock.now()) {
		t.Errorf("CreatedAt = %v", ws.CreatedAt)
	}
	if filepath.Dir(ws.Dir) != m.BaseDir() {
		t.Errorf("Dir = %q, not under %q", ws.Dir, m.BaseDir())
	}
	b, err := os.ReadFile(filepath.Join(ws.Dir, "artifact.go"))
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(b) != "package main\n" {
		t.Errorf("artifact = %q", b)
	}
	if cl.Len() != 1 {
		t.Errorf("cleanup handlers = %d, want 1", cl.Len())
	}
}

func TestManager_CreatePython(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	ws, err := m.Create(synth.ScriptedPython, "print(1)\n")
	if err != nil {
		t.Fatal(err)
	}
	if ws.ArtifactPath() != filepath.Join(ws.Dir, "artifact.py") {
		t.Errorf("ArtifactPath() = %q", ws.ArtifactPath())
	}
	if _, err := os.Stat(ws.ArtifactPath()); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestManager_UniqueIDs(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]bool)
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := m.Create(synth.TypedScript, "x")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ids[ws.ID] {
				t.Errorf("duplicate id %s", ws.ID)
			}
			ids[ws.ID] = true
		}()
	}
	wg.Wait()
	if len(m.List()) != 32 {
		t.Errorf("List() = %d workspaces, want 32", len(m.List()))
	}
}

func TestManager_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps []Status
		fail  int // index of the step expected to fail, -1 for none
	}{
		{"complete", []Status{StatusRunning, StatusCompleted}, -1},
		{"fail", []Status{StatusRunning, StatusFailed}, -1},
		{"skip running", []Status{StatusCompleted}, 0},
		{"revert", []Status{StatusRunning, StatusFailed, StatusRunning}, 2},
		{"terminal to terminal", []Status{StatusRunning, StatusCompleted, StatusFailed}, 2},
		{"back to pending", []Status{StatusRunning, StatusPending}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _, _ := newTestManager(t)
			ws, err := m.Create(synth.TypedScript, "x")
			if err != nil {
				t.Fatal(err)
			}
			for i, s := range tt.steps {
				err := m.UpdateStatus(ws.ID, s)
				if i == tt.fail {
					if !errors.Is(err, ErrInvalidTransition) {
						t.Errorf("step %d (%s): error = %v, want ErrInvalidTransition", i, s, err)
					}
					return
				}
				if err != nil {
					t.Fatalf("step %d (%s): %v", i, s, err)
				}
			}
			got, _ := m.Get(ws.ID)
			if got.Status != tt.steps[len(tt.steps)-1] {
				t.Errorf("Status = %q", got.Status)
			}
		})
	}
}

func TestManager_NotFound(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	if _, err := m.Get("ws-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v", err)
	}
	if err := m.UpdateStatus("ws-missing", StatusRunning); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus() error = %v", err)
	}
	if err := m.SetResult("ws-missing", execution.Result{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetResult() error = %v", err)
	}
	if err := m.Delete("ws-missing"); err != nil {
		t.Errorf("Delete() error = %v, want nil", err)
	}
}

func TestManager_SetResult(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	ws, _ := m.Create(synth.TypedScript, "x")
	if err := m.SetResult(ws.ID, execution.Result{Success: true, Output: "hi"}); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Get(ws.ID)
	if got.Result == nil || got.Result.Output != "hi" {
		t.Errorf("Result = %+v", got.Result)
	}
}

func TestManager_Delete(t *testing.T) {
	t.Parallel()

	m, _, cl := newTestManager(t)
	ws, _ := m.Create(synth.TypedScript, "x")
	if err := m.Delete(ws.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Errorf("dir still present: %v", err)
	}
	if cl.Len() != 0 {
		t.Errorf("cleanup handler not unregistered")
	}
	if err := m.Delete(ws.ID); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestManager_CleanupHandlerRemovesDir(t *testing.T) {
	t.Parallel()

	m, _, cl := newTestManager(t)
	ws, _ := m.Create(synth.TypedScript, "x")
	if err := cl.Run(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Errorf("dir survived cleanup: %v", err)
	}
}

func TestManager_Cleanup(t *testing.T) {
	t.Parallel()

	m, clock, _ := newTestManager(t)
	old, _ := m.Create(synth.TypedScript, "old")
	running, _ := m.Create(synth.TypedScript, "running")
	_ = m.UpdateStatus(running.ID, StatusRunning)
	done, _ := m.Create(synth.TypedScript, "done")
	_ = m.UpdateStatus(done.ID, StatusRunning)
	_ = m.UpdateStatus(done.ID, StatusCompleted)

	clock.advance(2 * time.Hour)
	fresh, _ := m.Create(synth.TypedScript, "fresh")

	removed, err := m.Cleanup(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	for _, id := range []string{old.ID, done.ID} {
		if _, err := m.Get(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s survived cleanup", id)
		}
	}
	for _, id := range []string{running.ID, fresh.ID} {
		if _, err := m.Get(id); err != nil {
			t.Errorf("%s removed: %v", id, err)
		}
	}

	again, err := m.Cleanup(time.Hour)
	if err != nil || again != 0 {
		t.Errorf("second Cleanup() = %d, %v; want 0, nil", again, err)
	}
}

func TestManager_GetTouchesLastAccessed(t *testing.T) {
	t.Parallel()

	m, clock, _ := newTestManager(t)
	ws, _ := m.Create(synth.TypedScript, "x")
	clock.advance(90 * time.Minute)
	if _, err := m.Get(ws.ID); err != nil {
		t.Fatal(err)
	}
	if removed, _ := m.Cleanup(time.Hour); removed != 0 {
		t.Errorf("recently accessed workspace removed")
	}
}

func TestDefaultBaseDir(t *testing.T) {
	t.Parallel()

	if got := NewManager(Config{}, nil, nil).BaseDir(); got != filepath.Join(os.TempDir(), "mcp-workspaces") {
		t.Errorf("BaseDir() = %q", got)
	}
}
