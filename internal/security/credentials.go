// Package security holds the safety layer: static validation of artifacts,
// risk assessment, PII tokenization, secret redaction, egress filtering,
// rate limiting and child environment sanitization.
package security

import (
	"slices"
	"sync"
)

// CredentialStore is the host's inventory of secrets: the embedder API key,
// the gateway bearer token and whatever credentials are loaded from the
// environment. Every value is replaced in logs and audit payloads by the
// Redactor and in a sandboxed child's environment by SanitizedEnv.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]string)}
}

// Set records a credential under name. An empty value removes it, so an
// unset config field never shadows one loaded earlier.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.creds, name)
		return
	}
	s.creds[name] = value
}

// Get looks a credential up by name.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.creds[name]
	return v, ok
}

// LoadEnv records each named variable that lookup (os.LookupEnv outside
// tests) reports as set and non-empty, and returns how many it found.
func (s *CredentialStore) LoadEnv(lookup func(string) (string, bool), names ...string) int {
	n := 0
	for _, name := range names {
		if v, ok := lookup(name); ok && v != "" {
			s.Set(name, v)
			n++
		}
	}
	return n
}

// Names returns the sorted credential names.
func (s *CredentialStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values returns the secret values, longest first, so a secret that
// contains another is replaced whole.
func (s *CredentialStore) Values() []string {
	s.mu.RLock()
	values := make([]string, 0, len(s.creds))
	for _, v := range s.creds {
		values = append(values, v)
	}
	s.mu.RUnlock()

	slices.SortFunc(values, func(a, b string) int { return len(b) - len(a) })
	return values
}

func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
