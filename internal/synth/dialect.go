package synth

import (
	"fmt"
	"strings"
)

// Dialect selects the language an artifact is written in.
type Dialect string

const (
	// TypedScript is Go source run by the embedded interpreter.
	TypedScript Dialect = "typed-script"
	// ScriptedPython is Python 3 source run by the system interpreter.
	ScriptedPython Dialect = "scripted-python"
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{TypedScript, ScriptedPython}

// ParseDialect maps a name to a Dialect. Short aliases are accepted.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "typed-script", "typed", "go":
		return TypedScript, nil
	case "scripted-python", "python", "py":
		return ScriptedPython, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, s)
	}
}

// Extension returns the file extension used for artifacts of d.
func (d Dialect) Extension() string {
	if d == ScriptedPython {
		return ".py"
	}
	return ".go"
}

// FileName returns the artifact file name inside a workspace.
func (d Dialect) FileName() string {
	return "artifact" + d.Extension()
}

func (d Dialect) templateName() string {
	return string(d) + ".tmpl"
}

// dependencies lists the modules an artifact of d imports beyond the
// language standard library.
func (d Dialect) dependencies() []string {
	if d == TypedScript {
		return []string{"toolrt"}
	}
	return []string{}
}
