// Package config loads the mcpexec YAML configuration: environment
// expansion, defaults and structural validation.
package config

import (
	"time"

	"github.com/flemzord/mcpexec/internal/invoke"
	"github.com/flemzord/mcpexec/internal/sandbox"
	"github.com/flemzord/mcpexec/internal/security"
	"github.com/flemzord/mcpexec/pkg/execution"
)

// Config is the top-level configuration.
type Config struct {
	// Version is the config format version. Only "1" is supported.
	Version string `yaml:"version"`

	Log       LogConfig             `yaml:"log"`
	Tools     ToolsConfig           `yaml:"tools"`
	Discovery DiscoveryConfig       `yaml:"discovery"`
	Engine    EngineConfig          `yaml:"engine"`
	Security  SecurityConfig        `yaml:"security"`
	Sandbox   SandboxConfig         `yaml:"sandbox"`
	Workspace WorkspaceConfig       `yaml:"workspace"`
	Cache     CacheConfig           `yaml:"cache"`
	Audit     AuditConfig           `yaml:"audit"`
	Servers   []invoke.ServerConfig `yaml:"servers,omitempty"`
	Gateway   GatewayConfig         `yaml:"gateway"`
	Telemetry TelemetryConfig       `yaml:"telemetry"`
}

// LogConfig selects the root slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ToolsConfig locates the descriptor files.
type ToolsConfig struct {
	Dir      string        `yaml:"dir"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// Embedder names.
const (
	EmbedderHashing = "hashing"
	EmbedderGenAI   = "genai"
)

// DiscoveryConfig tunes relevance scoring.
type DiscoveryConfig struct {
	Threshold      float64 `yaml:"threshold"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	Embedder       string  `yaml:"embedder"`
	Dimensions     int     `yaml:"dimensions"`
	GenAIModel     string  `yaml:"genai_model"`
	GenAIAPIKey    string  `yaml:"genai_api_key"`
	// CacheMB bounds the query embedding cache. Zero disables it.
	CacheMB  int64         `yaml:"cache_mb"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// EngineConfig configures the orchestrator.
type EngineConfig struct {
	MaxTools        int           `yaml:"max_tools"`
	Dialect         string        `yaml:"dialect"`
	SummaryLimit    int           `yaml:"summary_limit"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	RemoteApproval  bool          `yaml:"remote_approval"`
	TemplateDirs    []string      `yaml:"template_dirs,omitempty"`
}

// SecurityConfig configures validation, rate limits and the tool policy.
type SecurityConfig struct {
	ApprovalThreshold int                       `yaml:"approval_threshold"`
	RefuseThreshold   int                       `yaml:"refuse_threshold"`
	Egress            *security.URLFilterConfig `yaml:"egress,omitempty"`
	RateLimit         security.RateLimitConfig  `yaml:"rate_limit"`
	MaxPayloadBytes   int                       `yaml:"max_payload_bytes"`
	MaxJSONDepth      int                       `yaml:"max_json_depth"`
	Policy            PolicyConfig              `yaml:"policy"`
}

// PolicyConfig is the YAML form of tool.Policy.
type PolicyConfig struct {
	Default string            `yaml:"default"`
	Allow   []string          `yaml:"allow,omitempty"`
	Ask     []string          `yaml:"ask,omitempty"`
	Deny    []string          `yaml:"deny,omitempty"`
	Tools   map[string]string `yaml:"tools,omitempty"`
}

// SandboxConfig configures the executor.
type SandboxConfig struct {
	Python      string                            `yaml:"python"`
	OutputLimit int                               `yaml:"output_limit"`
	Tiers       map[execution.Tier]sandbox.Limits `yaml:"tiers,omitempty"`
	Container   sandbox.ContainerConfig           `yaml:"container"`
}

// WorkspaceConfig configures workspace storage and retention.
type WorkspaceConfig struct {
	BaseDir         string        `yaml:"base_dir"`
	Retention       time.Duration `yaml:"retention"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// AuditConfig selects the audit sinks. Both may be set.
type AuditConfig struct {
	JSONL       string `yaml:"jsonl"`
	SQLite      string `yaml:"sqlite"`
	HistorySize int    `yaml:"history_size"`
	// SeedBaseline replays stored events into the anomaly detector on start.
	SeedBaseline bool `yaml:"seed_baseline"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Bind            string        `yaml:"bind"`
	BearerToken     string        `yaml:"bearer_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// TelemetryConfig enables trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}
