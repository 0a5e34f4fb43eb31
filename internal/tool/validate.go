package tool

import (
	"fmt"
	"strings"
	"unicode"
)

// Issue is a single problem found in a descriptor.
type Issue struct {
	Field   string
	Message string
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return i.Field + ": " + i.Message
}

// Validate checks a descriptor for structural problems. It never mutates d.
// An empty result means the descriptor is usable.
func Validate(d Descriptor) []Issue {
	var issues []Issue
	add := func(field, format string, args ...any) {
		issues = append(issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case strings.TrimSpace(d.Name) == "":
		add("name", "must not be empty")
	case strings.IndexFunc(d.Name, unicode.IsSpace) >= 0:
		add("name", "must not contain whitespace")
	}

	seen := make(map[string]struct{}, len(d.Parameters))
	for i, p := range d.Parameters {
		field := fmt.Sprintf("parameters[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			add(field, "name must not be empty")
			continue
		}
		if _, dup := seen[p.Name]; dup {
			add(field, "duplicate parameter name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if !p.Type.Valid() {
			add(field, "unknown type %q", p.Type)
			continue
		}
		if p.HasDefault && !matchesType(p.Default, p.Type) {
			add(field, "default value does not match type %s", p.Type)
		}
	}

	if d.Returns != nil && d.Returns.Type != "" && !d.Returns.Type.Valid() {
		add("returns", "unknown type %q", d.Returns.Type)
	}
	return issues
}

// matchesType reports whether a decoded JSON value conforms to a type tag.
func matchesType(v any, t TypeTag) bool {
	switch t {
	case TypeAny:
		return true
	case TypeNull:
		return v == nil
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}
