package harness

import (
	"reflect"
	"slices"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"github.com/traefik/yaegi/stdlib/unrestricted"

	"github.com/flemzord/mcpexec/internal/bridge"
)

// restrictedPackages are removed from the restricted profile, with every
// package below them.
var restrictedPackages = []string{
	"os/exec",
	"os/signal",
	"os/user",
	"net",
	"crypto/tls",
	"syscall",
	"unsafe",
	"plugin",
	"runtime/debug",
	"runtime/pprof",
	"debug",
}

// restrictedSymbols are single exports removed from packages the restricted
// profile otherwise keeps.
var restrictedSymbols = map[string][]string{
	"os/os": {"StartProcess", "FindProcess", "Exit"},
}

// Symbols returns the standard library exports visible to artifacts
// running under p. The full profile adds yaegi's unrestricted set
// (os/exec, a real os.Exit); the restricted profile drops every package in
// restrictedPackages and the exports in restrictedSymbols.
func Symbols(p Profile) interp.Exports {
	if p != ProfileRestricted {
		out := make(interp.Exports, len(stdlib.Symbols)+len(unrestricted.Symbols))
		for key, syms := range stdlib.Symbols {
			out[key] = syms
		}
		for key, syms := range unrestricted.Symbols {
			if strings.HasPrefix(key, "github.com/traefik/") {
				continue
			}
			merged := make(map[string]reflect.Value, len(out[key])+len(syms))
			for name, v := range out[key] {
				merged[name] = v
			}
			for name, v := range syms {
				merged[name] = v
			}
			out[key] = merged
		}
		return out
	}
	out := make(interp.Exports, len(stdlib.Symbols))
	for key, syms := range stdlib.Symbols {
		if blocked(importPath(key)) {
			continue
		}
		if drop, ok := restrictedSymbols[key]; ok {
			kept := make(map[string]reflect.Value, len(syms))
			for name, v := range syms {
				if !slices.Contains(drop, name) {
					kept[name] = v
				}
			}
			syms = kept
		}
		out[key] = syms
	}
	return out
}

// importPath strips the trailing package name from a yaegi export key
// ("net/http/http" → "net/http").
func importPath(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}

func blocked(path string) bool {
	for _, p := range restrictedPackages {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func toolrtExports(client *bridge.Client) interp.Exports {
	return interp.Exports{
		"toolrt/toolrt": {
			"Call": reflect.ValueOf(client.Call),
		},
	}
}
