package tool

import (
	"errors"
	"fmt"
	"strings"
)

// ApprovalLevel defines how a tool is treated when an intent selects it.
type ApprovalLevel string

const (
	// ApprovalAllow lets the tool run without confirmation.
	ApprovalAllow ApprovalLevel = "allow"

	// ApprovalAsk forces the artifact that calls the tool through approval.
	ApprovalAsk ApprovalLevel = "ask"

	// ApprovalDeny removes the tool from discovery results entirely.
	ApprovalDeny ApprovalLevel = "deny"
)

// Policy defines per-tool approval settings.
type Policy struct {
	// Default is the fallback approval level for tools not explicitly listed.
	Default ApprovalLevel

	// Tools maps tool names to explicit approval levels.
	Tools map[string]ApprovalLevel

	// Allow lists tools that can run without confirmation.
	Allow []string

	// Ask lists tools that require confirmation.
	Ask []string

	// Deny lists tools that must never run.
	Deny []string
}

// Resolve determines the effective approval level for a tool.
// Resolution order: explicit tool mapping > lists > policy default > allow.
func (p Policy) Resolve(name string) ApprovalLevel {
	name = strings.TrimSpace(name)
	if level, ok := p.explicitLevel(name); ok {
		return level
	}
	if p.Default != "" {
		return p.Default
	}
	return ApprovalAllow
}

// Permitted filters out descriptors denied by the policy, keeping order.
func (p Policy) Permitted(descs []Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		if p.Resolve(d.Name) != ApprovalDeny {
			out = append(out, d)
		}
	}
	return out
}

// NeedsApproval reports which of the named tools resolve to ApprovalAsk.
func (p Policy) NeedsApproval(names []string) []string {
	var ask []string
	for _, n := range names {
		if p.Resolve(n) == ApprovalAsk {
			ask = append(ask, n)
		}
	}
	return ask
}

// Validate checks that no tool appears with conflicting assignments
// (e.g., listed in both allow and deny).
func (p Policy) Validate() error {
	if p.Default != "" && !isValidApprovalLevel(p.Default) {
		return fmt.Errorf("invalid default level %q", p.Default)
	}

	explicit := make(map[string]ApprovalLevel)
	for name, level := range p.Tools {
		toolName := strings.TrimSpace(name)
		if toolName == "" {
			return errors.New("tool mapping has empty name")
		}
		if !isValidApprovalLevel(level) {
			return fmt.Errorf("tool %q has invalid level %q", toolName, level)
		}
		explicit[toolName] = level
	}

	if err := validatePolicyList(p.Allow, ApprovalAllow, "allow", explicit); err != nil {
		return err
	}
	if err := validatePolicyList(p.Ask, ApprovalAsk, "ask", explicit); err != nil {
		return err
	}
	return validatePolicyList(p.Deny, ApprovalDeny, "deny", explicit)
}

func (p Policy) explicitLevel(toolName string) (ApprovalLevel, bool) {
	for name, level := range p.Tools {
		if strings.TrimSpace(name) == toolName {
			return level, true
		}
	}
	if toolInList(p.Deny, toolName) {
		return ApprovalDeny, true
	}
	if toolInList(p.Ask, toolName) {
		return ApprovalAsk, true
	}
	if toolInList(p.Allow, toolName) {
		return ApprovalAllow, true
	}
	return "", false
}

func validatePolicyList(names []string, level ApprovalLevel, listName string, explicit map[string]ApprovalLevel) error {
	for _, rawName := range names {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return fmt.Errorf("%s list contains empty tool name", listName)
		}
		if existing, ok := explicit[name]; ok && existing != level {
			return fmt.Errorf("%w: tool %q appears in both %q and %q", ErrToolInMultipleLists, name, existing, level)
		}
		explicit[name] = level
	}
	return nil
}

func toolInList(list []string, name string) bool {
	for _, candidate := range list {
		if strings.TrimSpace(candidate) == name {
			return true
		}
	}
	return false
}

func isValidApprovalLevel(level ApprovalLevel) bool {
	switch level {
	case ApprovalAllow, ApprovalAsk, ApprovalDeny:
		return true
	default:
		return false
	}
}
