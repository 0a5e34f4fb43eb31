package security

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrURLBlocked is returned when a URL is denied by the filter.
var ErrURLBlocked = errors.New("URL blocked by egress policy")

// URLFilterConfig is the egress policy applied to URL literals found in
// artifacts.
type URLFilterConfig struct {
	// AllowDomains lists the reachable domains; subdomains match too. An
	// entry of "*" allows every public host. Empty blocks everything.
	AllowDomains []string `yaml:"allow_domains"`

	// DenyDomains wins over AllowDomains.
	DenyDomains []string `yaml:"deny_domains"`

	// AllowPrivate permits loopback, private, link-local and cloud
	// metadata addresses.
	AllowPrivate bool `yaml:"allow_private"`
}

// URLFilter decides whether an artifact may reach a URL. Only http and
// https pass.
type URLFilter struct {
	allow        []string
	allowAll     bool
	deny         []string
	allowPrivate bool
}

// NewURLFilter creates a URL filter from the given config.
func NewURLFilter(cfg URLFilterConfig) *URLFilter {
	f := &URLFilter{
		deny:         normalizeDomains(cfg.DenyDomains),
		allowPrivate: cfg.AllowPrivate,
	}
	for _, d := range normalizeDomains(cfg.AllowDomains) {
		if d == "*" {
			f.allowAll = true
			continue
		}
		f.allow = append(f.allow, d)
	}
	return f
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(d, "*."), "."), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// sharedAddressSpace is RFC 6598 carrier-grade NAT space, reachable from
// many cloud VPCs.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// internalHosts are names that resolve to the machine or its cloud
// metadata service.
var internalHosts = map[string]struct{}{
	"localhost":                {},
	"metadata":                 {},
	"metadata.google.internal": {},
}

// internal reports whether host names a loopback, private, link-local or
// metadata endpoint.
func internal(host string) bool {
	if _, ok := internalHosts[host]; ok || strings.HasSuffix(host, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified() || sharedAddressSpace.Contains(addr)
}

// Check returns nil when rawURL may be reached and an error wrapping
// ErrURLBlocked otherwise.
func (f *URLFilter) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", ErrURLBlocked, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q not allowed", ErrURLBlocked, parsed.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: empty hostname", ErrURLBlocked)
	}
	if !f.allowPrivate && internal(host) {
		return fmt.Errorf("%w: %s (internal address)", ErrURLBlocked, host)
	}

	for _, d := range f.deny {
		if matchDomain(host, d) {
			return fmt.Errorf("%w: %s (denied)", ErrURLBlocked, host)
		}
	}
	if f.allowAll {
		return nil
	}
	for _, a := range f.allow {
		if matchDomain(host, a) {
			return nil
		}
	}
	if len(f.allow) == 0 {
		return fmt.Errorf("%w: %s (no domains allowed)", ErrURLBlocked, host)
	}
	return fmt.Errorf("%w: %s (not in allow list)", ErrURLBlocked, host)
}

// IsConfigured reports whether any allow or deny entry is set.
func (f *URLFilter) IsConfigured() bool {
	return f != nil && (f.allowAll || len(f.allow) > 0 || len(f.deny) > 0)
}

// matchDomain reports whether host is domain or one of its subdomains.
func matchDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
