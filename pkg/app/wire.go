package app

import (
	"context"
	"fmt"

	"github.com/flemzord/mcpexec/internal/config"
	"github.com/flemzord/mcpexec/internal/discovery"
	"github.com/flemzord/mcpexec/internal/invoke"
)

// wireServers creates one invoker per configured MCP server and registers
// the tools each one lists. A server that cannot be reached at start is
// still routed to; its tools appear once they are declared in descriptor
// files or the process restarts.
func (a *App) wireServers(ctx context.Context, servers []invoke.ServerConfig) map[string]invoke.Invoker {
	out := make(map[string]invoke.Invoker, len(servers))
	for _, sc := range servers {
		inv := invoke.NewMCPInvoker(sc.Name, invoke.Dial(sc), a.Logger)
		out[sc.Name] = inv
		a.closers = append(a.closers, inv.Close)

		descs, err := inv.Descriptors(ctx)
		if err != nil {
			a.Logger.Warn("mcp server unavailable, tools not listed", "server", sc.Name, "error", err)
			continue
		}
		if err := a.Registry.RegisterStatic(descs...); err != nil {
			a.Logger.Warn("mcp server listed unusable tools", "server", sc.Name, "error", err)
			continue
		}
		a.Logger.Info("mcp server tools registered", "server", sc.Name, "tools", len(descs))
	}
	return out
}

// wireEmbedder builds the semantic embedder, wrapped in the query cache
// when one is configured.
func (a *App) wireEmbedder(ctx context.Context, cfg config.DiscoveryConfig) (discovery.Embedder, error) {
	var embedder discovery.Embedder
	switch cfg.Embedder {
	case config.EmbedderGenAI:
		key := cfg.GenAIAPIKey
		if key == "" {
			key, _ = a.Credentials.Get("GEMINI_API_KEY")
		}
		if key == "" {
			key, _ = a.Credentials.Get("GOOGLE_API_KEY")
		}
		g, err := discovery.NewGenAIEmbedder(ctx, discovery.GenAIConfig{
			APIKey:     key,
			Model:      cfg.GenAIModel,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("genai embedder: %w", err)
		}
		embedder = g
	default:
		embedder = discovery.NewHashingEmbedder(cfg.Dimensions)
	}

	if cfg.CacheMB <= 0 {
		return embedder, nil
	}
	cached, err := discovery.NewCachedEmbedder(embedder, cfg.CacheMB<<20, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	a.closers = append(a.closers, func() error { cached.Close(); return nil })
	return cached, nil
}
