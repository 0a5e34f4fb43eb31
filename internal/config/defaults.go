package config

import (
	"path/filepath"
	"time"

	"github.com/flemzord/mcpexec/internal/workspace"
)

func (c *Config) defaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Tools.Dir == "" {
		c.Tools.Dir = "tools"
	}
	if c.Tools.Debounce <= 0 {
		c.Tools.Debounce = 250 * time.Millisecond
	}
	if c.Discovery.Embedder == "" {
		c.Discovery.Embedder = EmbedderHashing
	}
	if c.Discovery.Embedder == EmbedderGenAI && c.Discovery.CacheTTL <= 0 {
		c.Discovery.CacheTTL = time.Hour
	}
	if c.Engine.Dialect == "" {
		c.Engine.Dialect = "typed-script"
	}
	if c.Workspace.BaseDir == "" {
		c.Workspace.BaseDir = workspace.DefaultBaseDir()
	}
	if c.Workspace.Retention <= 0 {
		c.Workspace.Retention = time.Hour
	}
	if c.Workspace.CleanupSchedule == "" {
		c.Workspace.CleanupSchedule = "*/10 * * * *"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Cache.SweepSchedule == "" {
		c.Cache.SweepSchedule = "*/5 * * * *"
	}
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "127.0.0.1:8080"
	}
	if c.Gateway.ReadTimeout <= 0 {
		c.Gateway.ReadTimeout = 10 * time.Second
	}
	if c.Gateway.WriteTimeout <= 0 {
		// Long enough for a full execution under the default wall limit.
		c.Gateway.WriteTimeout = 2 * time.Minute
	}
	if c.Gateway.ShutdownTimeout <= 0 {
		c.Gateway.ShutdownTimeout = 5 * time.Second
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "mcpexec"
	}
}

// resolvePaths makes file paths relative to the config file's directory.
func (c *Config) resolvePaths(dir string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	abs(&c.Tools.Dir)
	abs(&c.Audit.JSONL)
	abs(&c.Audit.SQLite)
	for i := range c.Engine.TemplateDirs {
		abs(&c.Engine.TemplateDirs[i])
	}
}
