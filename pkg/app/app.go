// Package app builds the mcpexec stack from a configuration and runs its
// host surfaces. It is shared by every mcpexec subcommand.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/mcpexec/internal/audit"
	"github.com/flemzord/mcpexec/internal/cache"
	"github.com/flemzord/mcpexec/internal/cleanup"
	"github.com/flemzord/mcpexec/internal/config"
	"github.com/flemzord/mcpexec/internal/cron"
	"github.com/flemzord/mcpexec/internal/discovery"
	"github.com/flemzord/mcpexec/internal/engine"
	"github.com/flemzord/mcpexec/internal/invoke"
	"github.com/flemzord/mcpexec/internal/sandbox"
	"github.com/flemzord/mcpexec/internal/security"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/internal/workspace"
)

// credentialEnv lists the environment variables loaded into the credential
// store. Their values are scrubbed from logs and audit payloads and never
// reach a sandboxed child.
var credentialEnv = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "MCPEXEC_BEARER_TOKEN"}

// Options tune Build for a particular host.
type Options struct {
	// Version is reported by the MCP surfaces and telemetry.
	Version string
	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer
	// Registry and Gatherer default to a fresh registry with the Go and
	// process collectors.
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
	// HarnessPath and HarnessArgs override how the sandbox re-executes
	// the harness. See sandbox.Config.
	HarnessPath string
	HarnessArgs []string
	HarnessEnv  []string
	// Approver answers approval requests. Nil leaves the engine's
	// fallback in place.
	Approver tool.ApprovalRequester
	// SkipTracing leaves the global tracer provider untouched.
	SkipTracing bool
}

// App is a fully wired stack.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Credentials *security.CredentialStore
	Redactor    *security.Redactor
	Registry    *tool.Registry
	Index       *discovery.Index
	Workspaces  *workspace.Manager
	Cleanups    *cleanup.Manager
	Cache       *cache.Cache
	Audit       *audit.Log
	// Store is nil unless audit.sqlite is configured.
	Store     *audit.Store
	Engine    *engine.Engine
	Scheduler *cron.Scheduler
	Router    *invoke.Router

	Metrics  prometheus.Registerer
	Gatherer prometheus.Gatherer
	Version  string

	closers []func() error
}

// Build wires every component described by cfg. The caller must Close
// the returned App.
func Build(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	a = &App{Config: cfg, Version: opts.Version}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.Credentials = security.NewCredentialStore()
	a.Credentials.LoadEnv(os.LookupEnv, credentialEnv...)
	a.Credentials.Set("gateway.bearer_token", cfg.Gateway.BearerToken)
	a.Credentials.Set("discovery.genai_api_key", cfg.Discovery.GenAIAPIKey)
	a.Redactor = security.NewRedactor()
	a.Redactor.SyncCredentials(a.Credentials)

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	a.Logger = NewLogger(cfg.Log, out, a.Redactor)

	if !opts.SkipTracing {
		shutdown, err := SetupTracing(ctx, cfg.Telemetry, opts.Version)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
	}

	a.Metrics, a.Gatherer = opts.Registry, opts.Gatherer
	if a.Metrics == nil || a.Gatherer == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics, a.Gatherer = reg, reg
	}

	a.Cleanups = cleanup.NewManager(a.Logger)
	a.Registry = tool.NewRegistry(a.Logger)
	if _, err := a.Registry.IndexFrom(ctx, cfg.Tools.Dir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("indexing tools: %w", err)
		}
		a.Logger.Warn("tool directory not found, starting with no local tools", "dir", cfg.Tools.Dir)
	}

	servers := a.wireServers(ctx, cfg.Servers)

	embedder, err := a.wireEmbedder(ctx, cfg.Discovery)
	if err != nil {
		return nil, err
	}
	a.Index = discovery.New(a.Registry, embedder, discovery.Config{
		Threshold:      cfg.Discovery.Threshold,
		LexicalWeight:  cfg.Discovery.LexicalWeight,
		SemanticWeight: cfg.Discovery.SemanticWeight,
	}, a.Logger)

	var egress *security.URLFilter
	if cfg.Security.Egress != nil {
		egress = security.NewURLFilter(*cfg.Security.Egress)
	}
	validator := security.NewStaticValidator(security.StaticConfig{
		ApprovalThreshold: cfg.Security.ApprovalThreshold,
		RefuseThreshold:   cfg.Security.RefuseThreshold,
		Egress:            egress,
	})

	a.Workspaces = workspace.NewManager(workspace.Config{BaseDir: cfg.Workspace.BaseDir}, a.Logger, a.Cleanups)
	executor, err := sandbox.NewExecutor(sandbox.Config{
		HarnessPath: opts.HarnessPath,
		HarnessArgs: opts.HarnessArgs,
		HarnessEnv:  opts.HarnessEnv,
		Python:      cfg.Sandbox.Python,
		OutputLimit: cfg.Sandbox.OutputLimit,
		Env:         security.SanitizedEnv(os.Environ(), a.Credentials),
		TierLimits:  cfg.Sandbox.Tiers,
		Container:   cfg.Sandbox.Container,
	}, a.Workspaces, a.Cleanups, a.Logger)
	if err != nil {
		return nil, err
	}

	a.Cache = cache.New(cache.Config{TTL: cfg.Cache.TTL}, a.Logger)

	detector, err := a.wireAudit(ctx, cfg.Audit)
	if err != nil {
		return nil, err
	}

	a.Router = invoke.NewRouter(a.Registry, servers, invoke.NewExampleInvoker(a.Registry))

	dialect, err := synth.ParseDialect(cfg.Engine.Dialect)
	if err != nil {
		return nil, err
	}
	a.Engine, err = engine.New(engine.Config{
		MaxTools:        cfg.Engine.MaxTools,
		Dialect:         dialect,
		SummaryLimit:    cfg.Engine.SummaryLimit,
		ApprovalTimeout: cfg.Engine.ApprovalTimeout,
		RemoteApproval:  cfg.Engine.RemoteApproval,
		Policy:          cfg.Security.Policy.Policy(),
		MaxPayloadBytes: cfg.Security.MaxPayloadBytes,
		MaxJSONDepth:    cfg.Security.MaxJSONDepth,
	}, engine.Deps{
		Registry:    a.Registry,
		Index:       a.Index,
		Synthesizer: synth.New(synth.WithDirs(cfg.Engine.TemplateDirs...), a.Logger),
		Validator:   validator,
		Executor:    executor,
		Cache:       a.Cache,
		Audit:       a.Audit,
		Detector:    detector,
		Invoker:     a.Router,
		Approver:    opts.Approver,
		Limiter:     security.NewRateLimiter(cfg.Security.RateLimit),
		Metrics:     engine.NewMetrics(a.Metrics),
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	a.Scheduler = cron.NewScheduler(a.Logger)
	jobs := []cron.Job{
		&cron.WorkspaceCleanupJob{
			Workspaces:   a.Workspaces,
			Retention:    cfg.Workspace.Retention,
			Logger:       a.Logger,
			ScheduleExpr: cfg.Workspace.CleanupSchedule,
		},
		&cron.CacheSweepJob{
			Cache:        a.Cache,
			Logger:       a.Logger,
			ScheduleExpr: cfg.Cache.SweepSchedule,
		},
	}
	for _, j := range jobs {
		if err := a.Scheduler.RegisterJob(j); err != nil {
			return nil, err
		}
	}

	a.Logger.Info("mcpexec ready",
		"tools", a.Registry.Len(),
		"servers", len(servers),
		"embedder", embedder.Name(),
		"dialect", dialect,
	)
	return a, nil
}

// wireAudit opens the configured sinks, creates the log and returns a
// detector, seeded from the SQLite store when asked.
func (a *App) wireAudit(ctx context.Context, cfg config.AuditConfig) (*audit.Detector, error) {
	var sinks []audit.Sink
	if cfg.JSONL != "" {
		w, err := audit.OpenJSONLFile(cfg.JSONL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, w.Close)
		sinks = append(sinks, w)
	}
	if cfg.SQLite != "" {
		store, err := audit.OpenStore(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.Store = store
		sinks = append(sinks, store)
	}

	log, err := audit.NewLog(ctx, audit.Config{
		HistorySize: cfg.HistorySize,
		Sinks:       sinks,
		Redactor:    a.Redactor,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Audit = log
	a.closers = append(a.closers, func() error { log.Close(); return nil })

	detector := audit.NewDetector(audit.DetectorConfig{})
	if cfg.SeedBaseline && a.Store != nil {
		events, err := a.Store.Query(ctx, audit.Filter{Kind: audit.KindExecution, Limit: audit.DefaultBaselineSize})
		if err != nil {
			return nil, fmt.Errorf("seeding anomaly baseline: %w", err)
		}
		a.Logger.Info("anomaly baseline seeded", "samples", detector.Seed(events))
	}
	return detector, nil
}

// Close releases every resource Build opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
