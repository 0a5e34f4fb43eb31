// Package gateway exposes the execution engine over HTTP: intent
// execution, tool discovery, the audit trail (with a websocket stream) and
// Prometheus metrics. It binds to loopback by default.
package gateway

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/mcpexec/internal/audit"
	"github.com/flemzord/mcpexec/internal/cache"
	"github.com/flemzord/mcpexec/internal/discovery"
	"github.com/flemzord/mcpexec/internal/engine"
	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/pkg/execution"
)

// Config holds HTTP gateway configuration. Zero fields take defaults.
type Config struct {
	Bind string // 127.0.0.1:8080
	// BearerToken, when set, guards every /v1 route.
	BearerToken     string
	ReadTimeout     time.Duration // 10s
	WriteTimeout    time.Duration // 2m, long enough for a full execution
	ShutdownTimeout time.Duration // 5s
	MaxBodyBytes    int64         // 1 MiB
}

func (c *Config) defaults() {
	c.Bind = cmp.Or(c.Bind, "127.0.0.1:8080")
	c.ReadTimeout = cmp.Or(c.ReadTimeout, 10*time.Second)
	c.WriteTimeout = cmp.Or(c.WriteTimeout, 2*time.Minute)
	c.ShutdownTimeout = cmp.Or(c.ShutdownTimeout, 5*time.Second)
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// Engine is the part of engine.Engine the gateway serves.
type Engine interface {
	Execute(ctx context.Context, req engine.Request) execution.Result
	Search(ctx context.Context, intent string, limit int) []discovery.Result
}

// ToolLister lists registered descriptors.
type ToolLister interface {
	All() []tool.Descriptor
}

// AuditQuerier reads persisted events. *audit.Store implements it.
type AuditQuerier interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

// Approvals lists and decides artifacts held for approval. *tool.Approvals
// implements it.
type Approvals interface {
	Pending() []tool.ApprovalRequest
	Resolve(id string, resp tool.ApprovalResponse) bool
}

// Deps are the gateway's collaborators. Engine, Tools and Audit are
// required.
type Deps struct {
	Engine Engine
	Tools  ToolLister
	Audit  *audit.Log
	// Store, if set, answers /v1/audit instead of the in-memory history.
	Store AuditQuerier
	Cache *cache.Cache
	// Approvals, if set, enables /v1/approvals.
	Approvals Approvals
	// Registry receives the HTTP metrics; Gatherer serves /metrics. Both
	// default to the Prometheus globals.
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
}

// Gateway is the HTTP server.
type Gateway struct {
	cfg       Config
	deps      Deps
	logger    *slog.Logger
	metrics   *httpMetrics
	handler   http.Handler
	startedAt time.Time

	server *http.Server
}

// New creates a Gateway. It does not listen until Start.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("gateway: engine is required")
	case deps.Tools == nil:
		return nil, errors.New("gateway: tool lister is required")
	case deps.Audit == nil:
		return nil, errors.New("gateway: audit log is required")
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()

	g := &Gateway{
		cfg:       cfg,
		deps:      deps,
		logger:    logger.With("component", "gateway"),
		metrics:   newHTTPMetrics(deps.Registry),
		startedAt: time.Now(),
	}
	g.handler = g.buildRouter()
	return g, nil
}

// Handler returns the gateway's router.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.cfg.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.cfg.Bind, err)
	}
	g.server = &http.Server{
		Handler:      g.handler,
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting up to the shutdown timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()
	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(ctx)
}
