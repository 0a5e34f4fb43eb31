package synth

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/flemzord/mcpexec/internal/tool"
)

var goReserved = setOf(
	// keywords
	"break", "case", "chan", "const", "continue", "default", "defer", "else",
	"fallthrough", "for", "func", "go", "goto", "if", "import", "interface",
	"map", "package", "range", "return", "select", "struct", "switch", "type", "var",
	// predeclared
	"any", "append", "bool", "byte", "cap", "clear", "close", "comparable", "complex",
	"complex64", "complex128", "copy", "delete", "error", "false", "float32", "float64",
	"imag", "int", "int8", "int16", "int32", "int64", "iota", "len", "make", "max",
	"min", "new", "nil", "panic", "print", "println", "real", "recover", "rune",
	"string", "true", "uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
	// names used by the template
	"args", "context", "ctx", "err", "fmt", "init", "invoke", "json", "main",
	"out", "results", "toolrt", "value", "Run",
)

var pyReserved = setOf(
	"False", "None", "True", "and", "as", "assert", "async", "await", "break",
	"class", "continue", "def", "del", "elif", "else", "except", "finally", "for",
	"from", "global", "if", "import", "in", "is", "lambda", "nonlocal", "not", "or",
	"pass", "raise", "return", "try", "while", "with", "yield", "match", "case",
	// names used by the template
	"Any", "Dict", "List", "asyncio", "json", "main", "print", "results", "sys",
)

func setOf(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// words splits a name on separators and lower-to-upper case changes.
func words(name string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsUpper(runes[i-1]) && unicode.IsLower(runes[i+1]))):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}

// identifier converts name to the naming convention of d: lower-camel for
// typed-script, underscore-lower for scripted-python. fallback is used when
// name has no letters or digits. Reserved names get suffix appended.
func identifier(d Dialect, name, fallback, suffix string) string {
	ws := words(name)
	if len(ws) == 0 {
		ws = []string{fallback}
	}
	var id string
	if d == ScriptedPython {
		id = strings.Join(ws, "_")
	} else {
		var b strings.Builder
		for i, w := range ws {
			if i == 0 {
				b.WriteString(w)
				continue
			}
			r := []rune(w)
			r[0] = unicode.ToUpper(r[0])
			b.WriteString(string(r))
		}
		id = b.String()
	}
	if unicode.IsDigit([]rune(id)[0]) {
		if d == ScriptedPython {
			id = fallback + "_" + id
		} else {
			id = fallback + id
		}
	}
	reserved := goReserved
	if d == ScriptedPython {
		reserved = pyReserved
	}
	if _, bad := reserved[id]; bad {
		id += suffix
	}
	return id
}

// uniqueNamer hands out identifiers, numbering repeats.
type uniqueNamer struct {
	used map[string]int
}

func newUniqueNamer() *uniqueNamer { return &uniqueNamer{used: make(map[string]int)} }

func (u *uniqueNamer) claim(id string) string {
	n := u.used[id]
	u.used[id] = n + 1
	if n == 0 {
		return id
	}
	next := id + strconv.Itoa(n+1)
	for u.used[next] > 0 {
		n++
		next = id + strconv.Itoa(n+1)
	}
	u.used[next] = 1
	return next
}

func typeName(d Dialect, t tool.TypeTag) string {
	if d == ScriptedPython {
		switch t {
		case tool.TypeString:
			return "str"
		case tool.TypeNumber:
			return "float"
		case tool.TypeBoolean:
			return "bool"
		case tool.TypeArray:
			return "List[Any]"
		case tool.TypeObject:
			return "Dict[str, Any]"
		case tool.TypeNull:
			return "None"
		default:
			return "Any"
		}
	}
	switch t {
	case tool.TypeString:
		return "string"
	case tool.TypeNumber:
		return "float64"
	case tool.TypeBoolean:
		return "bool"
	case tool.TypeArray:
		return "[]any"
	case tool.TypeObject:
		return "map[string]any"
	default:
		return "any"
	}
}

func zeroLiteral(d Dialect, t tool.TypeTag) string {
	switch t {
	case tool.TypeString:
		return quote(d, "")
	case tool.TypeNumber:
		if d == ScriptedPython {
			return "0.0"
		}
		return "0"
	case tool.TypeBoolean:
		return literal(d, false)
	case tool.TypeArray:
		return literal(d, []any{})
	case tool.TypeObject:
		return literal(d, map[string]any{})
	default:
		return literal(d, nil)
	}
}

// quote renders s as a string literal of d.
func quote(d Dialect, s string) string {
	if d == ScriptedPython {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(s)
		return strings.TrimSuffix(buf.String(), "\n")
	}
	return strconv.Quote(s)
}

// literal renders a decoded JSON value as a source literal of d. Object keys
// are emitted in sorted order.
func literal(d Dialect, v any) string {
	switch x := v.(type) {
	case nil:
		if d == ScriptedPython {
			return "None"
		}
		return "nil"
	case bool:
		if d == ScriptedPython {
			if x {
				return "True"
			}
			return "False"
		}
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return quote(d, x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = literal(d, e)
		}
		if d == ScriptedPython {
			return "[" + strings.Join(parts, ", ") + "]"
		}
		return "[]any{" + strings.Join(parts, ", ") + "}"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = quote(d, k) + ": " + literal(d, x[k])
		}
		if d == ScriptedPython {
			return "{" + strings.Join(parts, ", ") + "}"
		}
		return "map[string]any{" + strings.Join(parts, ", ") + "}"
	default:
		// Values decoded from JSON never reach here; render via JSON.
		raw, _ := json.Marshal(x)
		return quote(d, string(raw))
	}
}

// commentLine flattens text to a single line safe for a line comment.
func commentLine(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\u2028' || r == '\u2029' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
