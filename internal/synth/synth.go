// Package synth turns a list of tool descriptors into a deterministic
// program (an artifact) that calls each tool in order and prints the
// combined results as its final JSON line.
package synth

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"text/template"

	"github.com/flemzord/mcpexec/internal/bridge"
	"github.com/flemzord/mcpexec/internal/tool"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// Embedded returns the built-in template set.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Artifact is a synthesized program.
type Artifact struct {
	Dialect       Dialect  `json:"dialect"`
	Source        string   `json:"source"`
	Dependencies  []string `json:"dependencies"`
	EstimatedCost int      `json:"estimated_cost"`
	Tools         []string `json:"tools"`
	SideEffects   []string `json:"side_effects,omitempty"`
	Intent        string   `json:"intent"`
}

// Digest returns the hex SHA-256 of the artifact source.
func (a Artifact) Digest() string {
	sum := sha256.Sum256([]byte(a.Source))
	return hex.EncodeToString(sum[:])
}

// EstimateCost approximates the token count of src as ceil(len/4).
func EstimateCost(src string) int {
	return (len(src) + 3) / 4
}

// Request describes what to synthesize.
type Request struct {
	Tools   []tool.Descriptor
	Dialect Dialect
	Intent  string
}

// Config lists template candidates in priority order. When Templates is
// empty, the embedded set is used.
type Config struct {
	Templates []fs.FS
}

// WithDirs prepends on-disk template directories to the candidate list and
// keeps the embedded set as the last resort.
func WithDirs(dirs ...string) Config {
	cfg := Config{}
	for _, d := range dirs {
		cfg.Templates = append(cfg.Templates, os.DirFS(d))
	}
	cfg.Templates = append(cfg.Templates, Embedded())
	return cfg
}

// Synthesizer renders artifacts. It is safe for concurrent use.
type Synthesizer struct {
	candidates []fs.FS
	logger     *slog.Logger

	mu     sync.Mutex
	loaded map[Dialect]*template.Template
}

// New creates a synthesizer.
func New(cfg Config, logger *slog.Logger) *Synthesizer {
	if cfg.Templates == nil {
		cfg.Templates = []fs.FS{Embedded()}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		candidates: cfg.Templates,
		logger:     logger.With("component", "synth"),
		loaded:     make(map[Dialect]*template.Template),
	}
}

// Synthesize renders req into an artifact. The same request always yields a
// byte-identical source.
func (s *Synthesizer) Synthesize(req Request) (Artifact, error) {
	if len(req.Tools) == 0 {
		return Artifact{}, ErrNoTools
	}
	if req.Dialect == "" {
		req.Dialect = TypedScript
	}
	if req.Dialect != TypedScript && req.Dialect != ScriptedPython {
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownDialect, req.Dialect)
	}

	tmpl, err := s.template(req.Dialect)
	if err != nil {
		return Artifact{}, err
	}

	data := buildData(req)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Artifact{}, fmt.Errorf("rendering %s artifact: %w", req.Dialect, err)
	}
	src := buf.String()

	names := make([]string, len(req.Tools))
	var effects []string
	for i, d := range req.Tools {
		names[i] = d.Name
		effects = append(effects, d.Effects()...)
	}
	return Artifact{
		Dialect:       req.Dialect,
		Source:        src,
		Dependencies:  req.Dialect.dependencies(),
		EstimatedCost: EstimateCost(src),
		Tools:         names,
		SideEffects:   dedupe(effects),
		Intent:        req.Intent,
	}, nil
}

// template returns the first candidate template for d that loads and parses.
func (s *Synthesizer) template(d Dialect) (*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.loaded[d]; ok {
		return t, nil
	}
	name := d.templateName()
	for i, fsys := range s.candidates {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			s.logger.Debug("template candidate unavailable", "dialect", d, "candidate", i, "error", err)
			continue
		}
		t, err := template.New(name).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			s.logger.Warn("template candidate does not parse", "dialect", d, "candidate", i, "error", err)
			continue
		}
		s.loaded[d] = t
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s (%d candidate(s) tried)", ErrTemplatesUnavailable, d, len(s.candidates))
}

type templateData struct {
	IntentComment string
	Marker        string
	Tools         []toolData
}

type toolData struct {
	NameLiteral string
	Ident       string
	Comment     string
	Params      []paramData
	ReturnType  string
	Args        []string
}

type paramData struct {
	NameLiteral string
	Ident       string
	Type        string
}

func buildData(req Request) templateData {
	d := req.Dialect
	data := templateData{
		IntentComment: commentLine(req.Intent),
		Marker:        quote(d, bridge.Marker),
		Tools:         make([]toolData, 0, len(req.Tools)),
	}

	suffix := "Tool"
	paramSuffix := "Arg"
	if d == ScriptedPython {
		suffix, paramSuffix = "_tool", "_"
	}

	funcs := newUniqueNamer()
	for _, desc := range req.Tools {
		td := toolData{
			NameLiteral: quote(d, desc.Name),
			Ident:       funcs.claim(identifier(d, desc.Name, "tool", suffix)),
			Comment:     commentLine(desc.Description),
			ReturnType:  typeName(d, desc.ReturnType()),
		}
		params := newUniqueNamer()
		for _, p := range desc.Parameters {
			td.Params = append(td.Params, paramData{
				NameLiteral: quote(d, p.Name),
				Ident:       params.claim(identifier(d, p.Name, "param", paramSuffix)),
				Type:        typeName(d, p.Type),
			})
			td.Args = append(td.Args, argument(d, p, req.Intent))
		}
		data.Tools = append(data.Tools, td)
	}
	return data
}

// argument picks the value passed for p: its default when declared, the
// intent for required text parameters, otherwise the zero value of its type.
func argument(d Dialect, p tool.ParameterSpec, intent string) string {
	if p.HasDefault {
		return literal(d, p.Default)
	}
	if p.Required && (p.Type == tool.TypeString || p.Type == tool.TypeAny) {
		return quote(d, intent)
	}
	return zeroLiteral(d, p.Type)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
