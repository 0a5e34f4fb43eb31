package security

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// sensitiveEnvPrefixes are stripped from every child environment: sandboxed
// artifacts and MCP tool servers never see host secrets.
var sensitiveEnvPrefixes = []string{
	"OPENAI_",
	"ANTHROPIC_",
	"GEMINI_",
	"GOOGLE_API_KEY",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"AZURE_CLIENT_SECRET",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
	"SLACK_TOKEN",
	"SLACK_BOT_TOKEN",
	"SMTP_PASSWORD",
	"MCPEXEC_AUTH_",
}

// sensitiveEnvExact are stripped only on an exact name match so that, for
// example, DB_PORT survives while DB_PASSWORD does not.
var sensitiveEnvExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
	"REDIS_PASSWORD":        {},
}

// SanitizedEnv filters base (typically os.Environ()) for a child process.
// Sensitive variables are dropped; values of the remaining ones have every
// credential from store (8 characters or longer) replaced by the redaction
// placeholder.
func SanitizedEnv(base []string, store *CredentialStore) []string {
	result := make([]string, 0, len(base))

	var secrets []string
	if store != nil {
		secrets = store.Values()
	}

	for _, entry := range base {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || isSensitiveEnvVar(key) {
			continue
		}
		for _, secret := range secrets {
			if len(secret) >= 8 && strings.Contains(entry, secret) {
				entry = strings.ReplaceAll(entry, secret, RedactPlaceholder)
			}
		}
		result = append(result, entry)
	}
	return result
}

// MergeEnv returns base with extra KEY=VALUE entries appended, replacing any
// existing entry with the same key.
func MergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, replaced := extra[key]; replaced {
			continue
		}
		out = append(out, entry)
	}
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		out = append(out, k+"="+extra[k])
	}
	return out
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// ErrRestrictedPath is returned for paths under /proc, /sys or /dev.
var ErrRestrictedPath = errors.New("access to restricted path is not allowed")

// ValidatePath rejects directories that must never host workspaces or
// descriptor trees. The path is made absolute and symlinks are resolved
// (best-effort) before checking.
func ValidatePath(path string) error {
	cleaned := filepath.Clean(path)
	if abs, err := filepath.Abs(cleaned); err == nil {
		cleaned = abs
	}
	if resolved, err := filepath.EvalSymlinks(cleaned); err == nil {
		cleaned = resolved
	}
	normalized := strings.ToLower(cleaned) + "/"

	for _, prefix := range []string{"/proc/", "/sys/", "/dev/"} {
		if strings.HasPrefix(normalized, prefix) {
			return fmt.Errorf("%w: %s", ErrRestrictedPath, path)
		}
	}
	return nil
}
