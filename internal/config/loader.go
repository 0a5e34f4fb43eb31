package config

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// reference matches ${NAME}, ${NAME:-fallback} and ${NAME:?message}.
var reference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])((?:[^}\\]|\\.)*))?\}`)

// Load reads the YAML file at path, expands environment variables, applies
// defaults and resolves relative paths against the file's directory.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes raw YAML into a Config with defaults applied. Variables
// come from the process environment. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	expanded, err := expand(raw, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("expanding variables: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	cfg.defaults()
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Version: "1"}
	cfg.defaults()
	return cfg
}

// expand substitutes variable references line by line. Comment lines are
// copied as is, and $${ yields a literal ${ so tool server arguments can
// carry their own placeholders. Every unresolved reference is reported.
func expand(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var (
		out  bytes.Buffer
		errs []error
	)
	out.Grow(len(raw))
	for i, line := range bytes.SplitAfter(raw, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("#")) {
			out.Write(line)
			continue
		}
		last := 0
		for _, m := range reference.FindAllSubmatchIndex(line, -1) {
			if m[0] > 0 && line[m[0]-1] == '$' {
				out.Write(line[last : m[0]-1])
				out.Write(line[m[0]:m[1]])
				last = m[1]
				continue
			}
			out.Write(line[last:m[0]])
			last = m[1]

			name := string(line[m[2]:m[3]])
			if v, ok := lookup(name); ok && v != "" {
				out.WriteString(v)
				continue
			}
			var op, arg string
			if m[4] >= 0 {
				op, arg = string(line[m[4]:m[5]]), string(line[m[6]:m[7]])
			}
			switch op {
			case ":-":
				out.WriteString(arg)
			case ":?":
				errs = append(errs, fmt.Errorf("line %d: %s: %s", i+1, name, cmp.Or(arg, "required")))
			default:
				if v, ok := lookup(name); ok {
					out.WriteString(v)
					continue
				}
				errs = append(errs, fmt.Errorf("line %d: unresolved variable: %s", i+1, name))
			}
		}
		out.Write(line[last:])
	}
	return out.Bytes(), errors.Join(errs...)
}
