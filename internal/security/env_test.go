package security

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestIsSensitiveEnvVar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sensitive bool
	}{
		{"OPENAI_API_KEY", true},
		{"GEMINI_API_KEY", true},
		{"GOOGLE_API_KEY", true},
		{"AWS_SECRET_ACCESS_KEY", true},
		{"AWS_SESSION_TOKEN_STUFF", true},
		{"GITHUB_TOKEN", true},
		{"MCPEXEC_AUTH_TOKEN", true},
		{"DB_PASSWORD", true},
		{"openai_api_key", true},
		{"Github_Token", true},
		{"DB_PORT", false},
		{"PATH", false},
		{"HOME", false},
		{"MCPEXEC_CONFIG", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isSensitiveEnvVar(tt.name); got != tt.sensitive {
				t.Errorf("isSensitiveEnvVar(%q) = %v, want %v", tt.name, got, tt.sensitive)
			}
		})
	}
}

func TestSanitizedEnv(t *testing.T) {
	t.Parallel()

	store := NewCredentialStore()
	store.Set("backend", "super-secret-123")
	store.Set("short", "abc")

	base := []string{
		"PATH=/usr/bin",
		"OPENAI_API_KEY=sk-nope",
		"NOTES=token is super-secret-123 ok",
		"LETTERS=abc",
		"MALFORMED",
	}
	got := SanitizedEnv(base, store)
	want := []string{
		"PATH=/usr/bin",
		"NOTES=token is " + RedactPlaceholder + " ok",
		"LETTERS=abc",
	}
	if !slices.Equal(got, want) {
		t.Errorf("SanitizedEnv() = %q, want %q", got, want)
	}
}

func TestMergeEnv(t *testing.T) {
	t.Parallel()

	got := MergeEnv([]string{"A=1", "B=2"}, map[string]string{"B": "3"})
	want := []string{"A=1", "B=3"}
	if !slices.Equal(got, want) {
		t.Errorf("MergeEnv() = %q, want %q", got, want)
	}
	if got := MergeEnv([]string{"A=1"}, nil); len(got) != 1 {
		t.Errorf("MergeEnv(nil extra) = %q", got)
	}
}

func TestValidatePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/proc/self/environ", true},
		{"/proc", true},
		{"/sys/kernel", true},
		{"/dev/shm/ws", true},
		{"/home/user/tools", false},
		{"/tmp/mcp-workspaces", false},
		{"/process/data", false},
	}

	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.path, "/", "_"), func(t *testing.T) {
			t.Parallel()
			err := ValidatePath(tt.path)
			if tt.wantErr && !errors.Is(err, ErrRestrictedPath) {
				t.Errorf("ValidatePath(%q) = %v, want ErrRestrictedPath", tt.path, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidatePath(%q) = %v, want nil", tt.path, err)
			}
		})
	}
}
