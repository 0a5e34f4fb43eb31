package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/mcpexec/internal/tool"
)

// ClientVersion is reported to MCP servers during the handshake.
var ClientVersion = "dev"

// ServerConfig describes one MCP server. Exactly one of Command and URL is
// set: Command starts a stdio server, URL reaches a streamable HTTP one.
type ServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// Validate checks that c names exactly one transport.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return errors.New("mcp server: name is required")
	}
	if (c.Command == "") == (c.URL == "") {
		return fmt.Errorf("mcp server %s: set exactly one of command and url", c.Name)
	}
	return nil
}

// Connector creates an unstarted-or-started client; MCPInvoker performs the
// handshake itself.
type Connector func(ctx context.Context) (mcpclient.MCPClient, error)

// Dial returns the Connector for cfg.
func Dial(cfg ServerConfig) Connector {
	return func(ctx context.Context) (mcpclient.MCPClient, error) {
		if cfg.Command != "" {
			env := make([]string, 0, len(cfg.Env))
			for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
				env = append(env, k+"="+cfg.Env[k])
			}
			return mcpclient.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
		}
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err := mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	}
}

// MCPInvoker forwards tool calls to an MCP server. It connects on first
// use and reconnects after a transport failure.
type MCPInvoker struct {
	name    string
	connect Connector
	logger  *slog.Logger

	mu     sync.Mutex
	client mcpclient.MCPClient
}

// NewMCPInvoker creates an invoker for the server called name.
func NewMCPInvoker(name string, connect Connector, logger *slog.Logger) *MCPInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPInvoker{
		name:    name,
		connect: connect,
		logger:  logger.With("component", "invoke", "server", name),
	}
}

func (m *MCPInvoker) session(ctx context.Context) (mcpclient.MCPClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client, nil
	}
	c, err := m.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: connect: %w", m.name, err)
	}
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "mcpexec", Version: ClientVersion}
	info, err := c.Initialize(ctx, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp server %s: initialize: %w", m.name, err)
	}
	m.logger.Info("mcp server connected", "remote", info.ServerInfo.Name, "version", info.ServerInfo.Version)
	m.client = c
	return c, nil
}

// drop forgets c so the next call reconnects.
func (m *MCPInvoker) drop(c mcpclient.MCPClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == c {
		_ = c.Close()
		m.client = nil
	}
}

// Invoke calls the named tool on the server. Structured content is
// returned as is; text content is decoded as JSON when possible.
func (m *MCPInvoker) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	c, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			m.drop(c)
		}
		return nil, fmt.Errorf("mcp server %s: call %s: %w", m.name, name, err)
	}
	if res.IsError {
		return nil, fmt.Errorf("%w: %s: %s", ErrToolFailed, name, contentText(res.Content))
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	text := contentText(res.Content)
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	return text, nil
}

// Descriptors lists the server's tools as descriptors served by it.
func (m *MCPInvoker) Descriptors(ctx context.Context) ([]tool.Descriptor, error) {
	c, err := m.session(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: list tools: %w", m.name, err)
	}
	out := make([]tool.Descriptor, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, descriptorFromMCP(m.name, t))
	}
	return out, nil
}

// Close closes the connection, if any.
func (m *MCPInvoker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

func descriptorFromMCP(server string, t mcp.Tool) tool.Descriptor {
	d := tool.Descriptor{
		Name:        t.Name,
		Description: t.Description,
		Category:    server,
		Server:      server,
	}
	for _, name := range slices.Sorted(maps.Keys(t.InputSchema.Properties)) {
		p := tool.ParameterSpec{
			Name:     name,
			Type:     tool.TypeAny,
			Required: slices.Contains(t.InputSchema.Required, name),
		}
		if prop, ok := t.InputSchema.Properties[name].(map[string]any); ok {
			if typ, ok := prop["type"].(string); ok {
				p.Type = typeTag(typ)
			}
			p.Description, _ = prop["description"].(string)
			if def, ok := prop["default"]; ok {
				p.Default, p.HasDefault = def, true
			}
		}
		d.Parameters = append(d.Parameters, p)
	}
	if t.Annotations.DestructiveHint != nil && *t.Annotations.DestructiveHint {
		d.SideEffects = append(d.SideEffects, tool.SideEffectWrite)
	}
	if t.Annotations.OpenWorldHint != nil && *t.Annotations.OpenWorldHint {
		d.SideEffects = append(d.SideEffects, tool.SideEffectNetwork)
	}
	return d
}

func typeTag(schemaType string) tool.TypeTag {
	switch schemaType {
	case "integer":
		return tool.TypeNumber
	default:
		if t := tool.TypeTag(schemaType); t.Valid() {
			return t
		}
		return tool.TypeAny
	}
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
