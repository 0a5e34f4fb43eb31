package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/mcpexec/pkg/execution"
)

// DefaultSummaryLimit bounds summaries, in characters.
const DefaultSummaryLimit = 500

// summarize describes a sandbox outcome in one line.
func summarize(res execution.Result) string {
	if !res.Success {
		if res.TimedOut() {
			return fmt.Sprintf("Execution failed: timeout after %s", res.Metrics.Wall())
		}
		return "Execution failed: " + firstLine(res.Error)
	}
	var b strings.Builder
	b.WriteString("Ran ")
	b.WriteString(strings.Join(res.Tools, ", "))
	if res.Cached {
		b.WriteString(" (cached)")
	} else if res.Tier != "" {
		fmt.Fprintf(&b, " in the %s tier", res.Tier)
	}
	b.WriteString(": ")
	b.WriteString(render(res.Output))
	return b.String()
}

func render(v any) string {
	switch x := v.(type) {
	case nil:
		return "no output"
	case string:
		return strings.Join(strings.Fields(x), " ")
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncate shortens s to at most limit characters, marking the cut.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

// estimateTokens approximates the token count of s as ceil(chars/4).
func estimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}
