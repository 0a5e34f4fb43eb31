package security

import (
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// PIIKind names a class of personal data.
type PIIKind string

// Detected PII kinds. The string value is the token prefix.
const (
	PIIEmail   PIIKind = "EMAIL"
	PIICard    PIIKind = "CARD"
	PIIGovID   PIIKind = "GOVID"
	PIIPhone   PIIKind = "PHONE"
	PIIAddress PIIKind = "ADDRESS"
)

// Detectors run in this order; earlier matches are replaced before later
// patterns see the text.
var piiDetectors = []struct {
	kind  PIIKind
	re    *regexp.Regexp
	valid func(string) bool
}{
	{PIIEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), nil},
	{PIICard, regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), luhn},
	{PIIGovID, regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`), nil},
	{PIIPhone, regexp.MustCompile(`(?:\+\d{1,3}[-.\s]?)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`), nil},
	{PIIPhone, regexp.MustCompile(`\+\d{1,3}[-\s]?\d{1,4}[-\s]?\d{3,4}[-\s]?\d{3,4}\b`), nil},
	{PIIAddress, regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Za-z][A-Za-z.'\-]*\s+){1,3}(?i:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl|terrace|parkway|pkwy)\b\.?`), nil},
}

var piiToken = regexp.MustCompile(`\[(EMAIL|CARD|GOVID|PHONE|ADDRESS)_\d+\]`)

// PIITokenizer replaces personal data with opaque tokens such as [EMAIL_1].
// The same literal always maps to the same token for the lifetime of one
// tokenizer, so tokens can be reversed with Detokenize. Safe for concurrent
// use.
type PIITokenizer struct {
	mu      sync.Mutex
	forward map[string]string
	reverse map[string]string
	counts  map[PIIKind]int
}

// NewPIITokenizer creates an empty tokenizer.
func NewPIITokenizer() *PIITokenizer {
	return &PIITokenizer{
		forward: make(map[string]string),
		reverse: make(map[string]string),
		counts:  make(map[PIIKind]int),
	}
}

// Tokenize replaces every detected occurrence in s. It reports whether
// anything was replaced. Tokenizing already tokenized text is a no-op.
func (t *PIITokenizer) Tokenize(s string) (string, bool) {
	if s == "" {
		return s, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	replaced := false
	for _, d := range piiDetectors {
		s = d.re.ReplaceAllStringFunc(s, func(m string) string {
			if d.valid != nil && !d.valid(m) {
				return m
			}
			replaced = true
			return t.tokenFor(d.kind, m)
		})
	}
	return s, replaced
}

// tokenFor must be called with t.mu held.
func (t *PIITokenizer) tokenFor(kind PIIKind, literal string) string {
	key := string(kind) + "\x00" + literal
	if tok, ok := t.forward[key]; ok {
		return tok
	}
	t.counts[kind]++
	tok := "[" + string(kind) + "_" + strconv.Itoa(t.counts[kind]) + "]"
	t.forward[key] = tok
	t.reverse[tok] = literal
	return tok
}

// Detokenize restores the literals behind tokens issued by t. Unknown
// tokens are left as they are.
func (t *PIITokenizer) Detokenize(s string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return piiToken.ReplaceAllStringFunc(s, func(tok string) string {
		if lit, ok := t.reverse[tok]; ok {
			return lit
		}
		return tok
	})
}

// TokenizeValue walks a decoded JSON value and tokenizes every string leaf,
// map keys excluded. Keys are visited in sorted order so token numbering
// is stable. The input is not modified.
func (t *PIITokenizer) TokenizeValue(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return t.Tokenize(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		changed := false
		for _, k := range slices.Sorted(maps.Keys(x)) {
			var hit bool
			out[k], hit = t.TokenizeValue(x[k])
			changed = changed || hit
		}
		return out, changed
	case []any:
		out := make([]any, len(x))
		changed := false
		for i, e := range x {
			var hit bool
			out[i], hit = t.TokenizeValue(e)
			changed = changed || hit
		}
		return out, changed
	default:
		return v, false
	}
}

// luhn reports whether the digits of s pass the Luhn checksum.
func luhn(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
