package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/mcpexec/internal/config"
	"github.com/flemzord/mcpexec/internal/gateway"
	"github.com/flemzord/mcpexec/internal/mcpserver"
	"github.com/flemzord/mcpexec/internal/tool"
)

// ConfigFileName is the file searched for by ResolveConfigPath.
const ConfigFileName = "mcpexec.yaml"

// ErrNoConfig is returned by ResolveConfigPath when no file exists.
var ErrNoConfig = errors.New("no configuration file found")

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/mcpexec/mcpexec.yaml, then
// ~/.config/mcpexec/mcpexec.yaml, then ./mcpexec.yaml.
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "mcpexec", ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "mcpexec", ConfigFileName))
	}

	candidates = append(candidates, ConfigFileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, candidates)
}

// LoadConfig loads path, or the first file ResolveConfigPath finds when
// path is empty. With no file anywhere the defaults are used. It returns
// the path actually loaded, empty for defaults.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if errors.Is(err, ErrNoConfig) {
			return config.Default(), "", nil
		}
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// ServeOptions selects the surfaces Serve runs.
type ServeOptions struct {
	// HTTP starts the gateway on the configured bind address.
	HTTP bool
	// MCPIn and MCPOut, when both set, carry an MCP session over stdio
	// framing. Serve returns when the peer closes MCPIn.
	MCPIn  io.Reader
	MCPOut io.Writer
}

// Serve runs the maintenance scheduler, the descriptor watcher and the
// selected surfaces until ctx is done, a surface fails, or the process is
// interrupted. Interrupts first run every registered cleanup handler.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := a.Cleanups.Notify(ctx, func(os.Signal) { cancel() })
	defer stop()

	if err := a.Scheduler.Start(); err != nil {
		return err
	}
	defer func() { _ = a.Scheduler.Stop(context.Background()) }()

	g, gctx := errgroup.WithContext(ctx)

	if a.Config.Tools.Watch {
		w := tool.NewWatcher(a.Registry, a.Config.Tools.Dir, a.Config.Tools.Debounce, a.Logger)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				a.Logger.Warn("descriptor watcher stopped", "error", err)
			}
			return nil
		})
	}

	if opts.HTTP {
		gw, err := a.Gateway()
		if err != nil {
			return err
		}
		if err := gw.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), a.Config.Gateway.ShutdownTimeout)
			defer scancel()
			return gw.Stop(sctx)
		})
	}

	if opts.MCPIn != nil && opts.MCPOut != nil {
		g.Go(func() error {
			// The peer hanging up ends the whole process.
			defer cancel()
			stdio := server.NewStdioServer(a.MCPServer())
			err := stdio.Listen(gctx, opts.MCPIn, opts.MCPOut)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				return fmt.Errorf("mcp stdio: %w", err)
			}
			return nil
		})
	}

	if !opts.HTTP && opts.MCPIn == nil {
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}

	err := g.Wait()
	a.Logger.Info("shutdown complete")
	return err
}

// Gateway builds the HTTP gateway over a's components.
func (a *App) Gateway() (*gateway.Gateway, error) {
	gc := a.Config.Gateway
	deps := gateway.Deps{
		Engine:   a.Engine,
		Tools:    a.Registry,
		Audit:    a.Audit,
		Cache:    a.Cache,
		Registry: a.Metrics,
		Gatherer: a.Gatherer,
	}
	if a.Store != nil {
		deps.Store = a.Store
	}
	if approvals := a.Engine.Approvals(); approvals != nil {
		deps.Approvals = approvals
	}
	return gateway.New(gateway.Config{
		Bind:            gc.Bind,
		BearerToken:     gc.BearerToken,
		ReadTimeout:     gc.ReadTimeout,
		WriteTimeout:    gc.WriteTimeout,
		ShutdownTimeout: gc.ShutdownTimeout,
		MaxBodyBytes:    gc.MaxBodyBytes,
	}, deps, a.Logger)
}

// MCPServer builds the MCP server exposing a's engine.
func (a *App) MCPServer() *server.MCPServer {
	version := a.Version
	if version == "" {
		version = "dev"
	}
	return mcpserver.New(a.Engine, version)
}
