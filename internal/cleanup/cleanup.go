// Package cleanup tracks teardown handlers for live resources (child
// processes, workspaces, containers) and runs them on shutdown or when the
// process receives an interrupt or terminate signal.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Func releases one resource.
type Func func() error

type handler struct {
	id  string
	seq uint64
	fn  Func
}

// Manager holds handlers keyed by resource id. Handlers run in reverse
// registration order; a failing or panicking handler is logged and the
// remaining handlers still run.
type Manager struct {
	mu       sync.Mutex
	handlers []handler
	seq      uint64
	logger   *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "cleanup")}
}

// Register adds fn under id. Registering an id that is already present
// replaces the old handler and moves it to the end of the order.
func (m *Manager) Register(id string, fn Func) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	m.seq++
	m.handlers = append(m.handlers, handler{id: id, seq: m.seq, fn: fn})
}

// Unregister drops the handler for id without running it. It reports
// whether a handler was present.
func (m *Manager) Unregister(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id)
}

func (m *Manager) removeLocked(id string) bool {
	for i, h := range m.handlers {
		if h.id == id {
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered handlers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// IDs returns the registered ids in registration order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.handlers))
	for i, h := range m.handlers {
		ids[i] = h.id
	}
	return ids
}

// Run removes every handler and invokes them newest first. All failures
// are returned joined; Run never stops early.
func (m *Manager) Run() error {
	m.mu.Lock()
	hs := m.handlers
	m.handlers = nil
	m.mu.Unlock()

	var errs []error
	for i := len(hs) - 1; i >= 0; i-- {
		if err := m.invoke(hs[i]); err != nil {
			m.logger.Warn("cleanup handler failed", "id", hs[i].id, "error", err)
			errs = append(errs, err)
		}
	}
	if len(hs) > 0 {
		m.logger.Debug("cleanup complete", "handlers", len(hs), "failed", len(errs))
	}
	return errors.Join(errs...)
}

// RunOne invokes and removes the handler for id, if any.
func (m *Manager) RunOne(id string) error {
	m.mu.Lock()
	var (
		h     handler
		found bool
	)
	for i, cand := range m.handlers {
		if cand.id == id {
			h, found = cand, true
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return nil
	}
	return m.invoke(h)
}

func (m *Manager) invoke(h handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup %s: panic: %v", h.id, r)
		}
	}()
	if err := h.fn(); err != nil {
		return fmt.Errorf("cleanup %s: %w", h.id, err)
	}
	return nil
}

// Notify runs every handler when the process receives SIGINT or SIGTERM,
// then calls onSignal with the signal received. It returns when ctx is
// done or after the handlers ran. Call stop to detach early.
func (m *Manager) Notify(ctx context.Context, onSignal func(os.Signal)) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	var once sync.Once
	stop = func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}

	go func() {
		select {
		case sig := <-sigCh:
			m.logger.Info("signal received, releasing resources", "signal", sig.String())
			_ = m.Run()
			if onSignal != nil {
				onSignal(sig)
			}
			stop()
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop
}
