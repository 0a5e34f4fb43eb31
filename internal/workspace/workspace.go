// Package workspace manages the per-execution directories artifacts are
// written to and run from. Each workspace belongs to exactly one execution
// and moves through pending, running and a terminal status.
package workspace

import (
	"cmp"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/flemzord/mcpexec/internal/cleanup"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/pkg/execution"
)

// Status is the lifecycle position of a workspace.
type Status string

// Workspace statuses. Transitions go pending → running → completed|failed.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) canMoveTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Workspace is a snapshot of one workspace record.
type Workspace struct {
	ID             string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Dialect        synth.Dialect
	Source         string
	Status         Status
	Result         *execution.Result
	Dir            string
}

// ArtifactPath is where the artifact source lives.
func (w Workspace) ArtifactPath() string {
	return filepath.Join(w.Dir, w.Dialect.FileName())
}

// DefaultBaseDir is used when Config.BaseDir is empty.
func DefaultBaseDir() string {
	return filepath.Join(os.TempDir(), "mcp-workspaces")
}

// Config configures a Manager.
type Config struct {
	// BaseDir holds one subdirectory per workspace.
	BaseDir string
}

// Cleanups receives a teardown handler per live workspace so an interrupt
// removes its directory.
type Cleanups interface {
	Register(id string, fn cleanup.Func)
	Unregister(id string) bool
}

// Manager creates, tracks and removes workspaces. It is safe for concurrent use.
type Manager struct {
	base     string
	cleanups Cleanups
	logger   *slog.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace

	now func() time.Time
}

// NewManager creates a Manager rooted at cfg.BaseDir. cleanups may be nil.
func NewManager(cfg Config, logger *slog.Logger, cleanups Cleanups) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.BaseDir
	if base == "" {
		base = DefaultBaseDir()
	}
	return &Manager{
		base:       base,
		cleanups:   cleanups,
		logger:     logger.With("component", "workspace"),
		workspaces: make(map[string]*Workspace),
		now:        time.Now,
	}
}

// BaseDir returns the directory workspaces are created under.
func (m *Manager) BaseDir() string {
	return m.base
}

// Create makes a new pending workspace and writes source to its artifact file.
func (m *Manager) Create(dialect synth.Dialect, source string) (Workspace, error) {
	if err := os.MkdirAll(m.base, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("workspace: creating base dir: %w", err)
	}

	now := m.now()
	var (
		id  string
		dir string
	)
	for {
		suffix, err := randomSuffix()
		if err != nil {
			return Workspace{}, fmt.Errorf("workspace: generating id: %w", err)
		}
		id = "ws-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
		dir = filepath.Join(m.base, id)
		// Mkdir fails on an existing directory, so an id is never handed out twice.
		err = os.Mkdir(dir, 0o700)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return Workspace{}, fmt.Errorf("workspace: creating %s: %w", id, err)
		}
	}

	ws := &Workspace{
		ID:             id,
		CreatedAt:      now,
		LastAccessedAt: now,
		Dialect:        dialect,
		Source:         source,
		Status:         StatusPending,
		Dir:            dir,
	}
	if err := os.WriteFile(ws.ArtifactPath(), []byte(source), 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return Workspace{}, fmt.Errorf("workspace: writing artifact: %w", err)
	}

	m.mu.Lock()
	m.workspaces[id] = ws
	m.mu.Unlock()

	if m.cleanups != nil {
		m.cleanups.Register(cleanupID(id), func() error { return os.RemoveAll(dir) })
	}
	m.logger.Debug("workspace created", "id", id, "dialect", dialect)
	return *ws, nil
}

// Get returns the workspace and refreshes its last-accessed time.
func (m *Manager) Get(id string) (Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return Workspace{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ws.LastAccessedAt = m.now()
	return *ws, nil
}

// UpdateStatus moves the workspace to next. Moves that skip or revert a
// status fail with ErrInvalidTransition.
func (m *Manager) UpdateStatus(id string, next Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !ws.Status.canMoveTo(next) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, ws.Status, next)
	}
	ws.Status = next
	ws.LastAccessedAt = m.now()
	return nil
}

// SetResult attaches the execution result to the workspace.
func (m *Manager) SetResult(id string, res execution.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ws.Result = &res
	ws.LastAccessedAt = m.now()
	return nil
}

// Delete removes the workspace directory and record. Deleting an unknown
// id is a no-op.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	delete(m.workspaces, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if m.cleanups != nil {
		m.cleanups.Unregister(cleanupID(id))
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("workspace: removing %s: %w", id, err)
	}
	return nil
}

// Cleanup deletes every workspace not accessed within olderThan, skipping
// running ones, and returns how many were removed.
func (m *Manager) Cleanup(olderThan time.Duration) (int, error) {
	cutoff := m.now().Add(-olderThan)

	m.mu.Lock()
	var stale []string
	for id, ws := range m.workspaces {
		if ws.Status != StatusRunning && ws.LastAccessedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()
	slices.Sort(stale)

	removed := 0
	var firstErr error
	for _, id := range stale {
		if err := m.Delete(id); err != nil {
			m.logger.Warn("workspace cleanup failed", "id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("workspaces cleaned up", "removed", removed)
	}
	return removed, firstErr
}

// List returns every workspace ordered by creation time.
func (m *Manager) List() []Workspace {
	m.mu.Lock()
	out := make([]Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		out = append(out, *ws)
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b Workspace) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func cleanupID(id string) string {
	return "workspace/" + id
}

const (
	suffixLen      = 12
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

func randomSuffix() (string, error) {
	b := make([]byte, suffixLen)
	limit := big.NewInt(int64(len(suffixAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = suffixAlphabet[n.Int64()]
	}
	return string(b), nil
}
