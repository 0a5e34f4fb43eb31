// Package tool holds the library of externally described tools. Descriptors
// are read from JSON files on disk, normalized, and indexed by name so that
// discovery and synthesis can look them up cheaply.
package tool

import (
	"slices"
	"strings"
)

// TypeTag is the declared type of a parameter or return value.
type TypeTag string

// Supported type tags.
const (
	TypeString  TypeTag = "string"
	TypeNumber  TypeTag = "number"
	TypeBoolean TypeTag = "boolean"
	TypeArray   TypeTag = "array"
	TypeObject  TypeTag = "object"
	TypeNull    TypeTag = "null"
	TypeAny     TypeTag = "any"
)

// Valid reports whether t is one of the supported tags.
func (t TypeTag) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeNull, TypeAny:
		return true
	default:
		return false
	}
}

// Side effects a descriptor may declare.
const (
	SideEffectRead    = "read"
	SideEffectWrite   = "write"
	SideEffectNetwork = "network"
	SideEffectExec    = "exec"
	SideEffectDelete  = "delete"
)

// ParameterSpec describes one input of a tool.
type ParameterSpec struct {
	Name        string  `json:"name"`
	Type        TypeTag `json:"type"`
	Required    bool    `json:"required"`
	Default     any     `json:"default,omitempty"`
	HasDefault  bool    `json:"-"`
	Description string  `json:"description,omitempty"`
}

// ReturnSpec describes the value a tool produces.
type ReturnSpec struct {
	Type        TypeTag `json:"type"`
	Description string  `json:"description,omitempty"`
}

// Example is an illustrative input/output pair.
type Example struct {
	Input  map[string]any `json:"input"`
	Output any            `json:"output"`
}

// Descriptor is the normalized description of a callable tool.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Parameters  []ParameterSpec `json:"parameters"`
	Returns     *ReturnSpec     `json:"returns,omitempty"`
	Examples    []Example       `json:"examples,omitempty"`

	// Server names the backend that serves this tool. Empty means the
	// descriptor examples answer calls.
	Server string `json:"server,omitempty"`

	// SideEffects lists the declared effects of calling the tool.
	SideEffects []string `json:"side_effects,omitempty"`

	// Source is the file the descriptor was read from.
	Source string `json:"-"`
}

// Parameter returns the parameter with the given name.
func (d Descriptor) Parameter(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// ReturnType returns the declared return type, defaulting to any.
func (d Descriptor) ReturnType() TypeTag {
	if d.Returns == nil || d.Returns.Type == "" {
		return TypeAny
	}
	return d.Returns.Type
}

// Effects returns the declared side effects plus those implied by the tool
// name, deduplicated and sorted.
func (d Descriptor) Effects() []string {
	effects := make([]string, 0, len(d.SideEffects)+1)
	for _, e := range d.SideEffects {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			effects = append(effects, e)
		}
	}
	name := strings.ToLower(d.Name)
	for verb, effect := range impliedEffects {
		if strings.Contains(name, verb) {
			effects = append(effects, effect)
		}
	}
	slices.Sort(effects)
	return slices.Compact(effects)
}

var impliedEffects = map[string]string{
	"write":  SideEffectWrite,
	"delete": SideEffectDelete,
	"remove": SideEffectDelete,
	"exec":   SideEffectExec,
	"shell":  SideEffectExec,
	"post":   SideEffectNetwork,
	"send":   SideEffectNetwork,
	"upload": SideEffectNetwork,
}
