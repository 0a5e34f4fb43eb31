package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/flemzord/mcpexec/internal/sandbox"
	"github.com/flemzord/mcpexec/internal/synth"
	"github.com/flemzord/mcpexec/internal/tool"
	"github.com/flemzord/mcpexec/pkg/execution"
)

// Policy converts the YAML policy to a tool.Policy.
func (p PolicyConfig) Policy() tool.Policy {
	pol := tool.Policy{
		Default: tool.ApprovalLevel(p.Default),
		Allow:   p.Allow,
		Ask:     p.Ask,
		Deny:    p.Deny,
	}
	if len(p.Tools) > 0 {
		pol.Tools = make(map[string]tool.ApprovalLevel, len(p.Tools))
		for name, level := range p.Tools {
			pol.Tools[name] = tool.ApprovalLevel(level)
		}
	}
	return pol
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level: unknown level %q", cfg.Log.Level))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("config: log.format: want text or json, got %q", cfg.Log.Format))
	}

	errs = append(errs, validateDiscovery(cfg.Discovery)...)
	errs = append(errs, validateEngine(cfg.Engine)...)
	errs = append(errs, validateSecurity(cfg.Security)...)
	errs = append(errs, validateSandbox(cfg.Sandbox)...)
	errs = append(errs, validateServers(cfg)...)

	if _, err := net.ResolveTCPAddr("tcp", cfg.Gateway.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: gateway.bind: %w", err))
	}
	return errors.Join(errs...)
}

func validateDiscovery(d DiscoveryConfig) []error {
	var errs []error
	for name, v := range map[string]float64{
		"threshold":       d.Threshold,
		"lexical_weight":  d.LexicalWeight,
		"semantic_weight": d.SemanticWeight,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("config: discovery.%s must be within [0, 1], got %g", name, v))
		}
	}
	switch d.Embedder {
	case EmbedderHashing, EmbedderGenAI:
	default:
		errs = append(errs, fmt.Errorf("config: discovery.embedder: unknown embedder %q", d.Embedder))
	}
	if d.CacheMB < 0 {
		errs = append(errs, errors.New("config: discovery.cache_mb must not be negative"))
	}
	return errs
}

func validateEngine(e EngineConfig) []error {
	var errs []error
	if _, err := synth.ParseDialect(e.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("config: engine.dialect: %w", err))
	}
	if e.MaxTools < 0 {
		errs = append(errs, errors.New("config: engine.max_tools must not be negative"))
	}
	if e.SummaryLimit < 0 {
		errs = append(errs, errors.New("config: engine.summary_limit must not be negative"))
	}
	return errs
}

func validateSecurity(s SecurityConfig) []error {
	var errs []error
	if s.ApprovalThreshold < 0 || s.RefuseThreshold < 0 {
		errs = append(errs, errors.New("config: security thresholds must not be negative"))
	}
	if s.ApprovalThreshold > 0 && s.RefuseThreshold > 0 && s.ApprovalThreshold >= s.RefuseThreshold {
		errs = append(errs, fmt.Errorf("config: security.approval_threshold (%d) must be below refuse_threshold (%d)",
			s.ApprovalThreshold, s.RefuseThreshold))
	}
	if s.RateLimit.ExecutionsPerMin < 0 || s.RateLimit.ToolCallsPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limit values must not be negative"))
	}
	if err := s.Policy.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: security.policy: %w", err))
	}
	return errs
}

func validateSandbox(s SandboxConfig) []error {
	var errs []error
	for tier, l := range s.Tiers {
		switch tier {
		case execution.TierProcess, execution.TierVM, execution.TierContainer:
		default:
			errs = append(errs, fmt.Errorf("config: sandbox.tiers: unknown tier %q", tier))
			continue
		}
		if l.Wall < 0 || l.MemoryBytes < 0 || l.CPUShare < 0 {
			errs = append(errs, fmt.Errorf("config: sandbox.tiers.%s: limits must not be negative", tier))
		}
		switch l.Network {
		case "", sandbox.NetworkNone, sandbox.NetworkEgress:
		default:
			errs = append(errs, fmt.Errorf("config: sandbox.tiers.%s.network: unknown policy %q", tier, l.Network))
		}
	}
	if s.OutputLimit < 0 {
		errs = append(errs, errors.New("config: sandbox.output_limit must not be negative"))
	}
	return errs
}

func validateServers(cfg *Config) []error {
	var errs []error
	seen := make(map[string]bool, len(cfg.Servers))
	for i, s := range cfg.Servers {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: servers[%d]: %w", i, err))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("config: servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}
	return errs
}
