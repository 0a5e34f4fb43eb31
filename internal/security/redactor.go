package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every secret the Redactor finds.
const RedactPlaceholder = "***REDACTED***"

// secretField matches audit payload and tool argument keys whose string
// values are dropped outright.
var secretField = regexp.MustCompile(`(?i)(secret|token|password|key|api_key|credential|authorization)`)

// Redactor scrubs secrets from log records, audit payloads and recorded tool
// arguments. Well-known key formats are found by pattern; the host's own
// credentials are matched literally. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor with DefaultPatterns and no literals.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an extra key format, such as a private tool server's
// token shape.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers one secret value. Empty values are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// SyncCredentials makes the store's values the full literal set, dropping
// literals added before.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = values
}

// Redact returns s with every pattern match and literal replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	return s
}

// RedactMap scrubs an audit payload in place. A string under a secret-looking
// key ("api_key", "authorization") is dropped whole; everything else goes
// through RedactValue.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretField.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		m[k] = r.RedactValue(v)
	}
}

// RedactValue returns v with secrets removed from every string leaf. Maps
// are redacted in place; callers own the value they pass in.
func (r *Redactor) RedactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
		return val
	case []any:
		for i, item := range val {
			val[i] = r.RedactValue(item)
		}
		return val
	default:
		return v
	}
}

// DefaultPatterns returns the key formats most likely to show up in tool
// output or tool server errors.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// OpenAI
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		// Anthropic
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
		// GitHub: ghp_, gho_, ghs_, github_pat_
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
		// Google API keys (Gemini embeddings)
		regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),
		// AWS Access Key ID
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		// Slack bot and user tokens
		regexp.MustCompile(`xox[bp]-[0-9]+-[a-zA-Z0-9]+`),
		// Bearer tokens in headers echoed by tool servers
		regexp.MustCompile(`(?i)bearer\s+[a-z0-9._~+/\-]{20,}=*`),
	}
}
