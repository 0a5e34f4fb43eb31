package security

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/flemzord/mcpexec/internal/synth"
)

// Severity grades a static-validation finding.
type Severity string

// Severities in increasing order of weight.
const (
	SeverityLow          Severity = "low"
	SeverityMedium       Severity = "medium"
	SeverityHigh         Severity = "high"
	SeverityCatastrophic Severity = "catastrophic"
)

// Weight returns the score contribution of one finding of severity s.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 5
	case SeverityMedium:
		return 20
	case SeverityHigh:
		return 40
	case SeverityCatastrophic:
		return 100
	default:
		return 0
	}
}

// Category groups forbidden constructs.
type Category string

// Static-validation categories.
const (
	CategoryDynamicEval   Category = "dynamic-eval"
	CategoryProcessSpawn  Category = "process-spawn"
	CategoryFSMutation    Category = "fs-mutation"
	CategoryNetworkEgress Category = "network-egress"
	CategoryObjectGraph   Category = "object-graph"
)

// Issue is one match of a forbidden construct.
type Issue struct {
	Kind     Category `json:"kind"`
	Severity Severity `json:"severity"`
	Location string   `json:"location,omitempty"`
	Detail   string   `json:"detail"`
}

// Report is the outcome of validating one artifact.
type Report struct {
	Secure           bool    `json:"secure"`
	RiskScore        int     `json:"risk_score"`
	Issues           []Issue `json:"issues,omitempty"`
	RequiresApproval bool    `json:"requires_approval"`
	Refused          bool    `json:"refused"`
}

// Catastrophic reports whether any issue has catastrophic severity.
func (r Report) Catastrophic() bool {
	return slices.ContainsFunc(r.Issues, func(i Issue) bool { return i.Severity == SeverityCatastrophic })
}

// MaxSeverity returns the highest severity among the issues, or "" when
// there are none.
func (r Report) MaxSeverity() Severity {
	var best Severity
	for _, i := range r.Issues {
		if i.Severity.Weight() > best.Weight() {
			best = i.Severity
		}
	}
	return best
}

type rule struct {
	re       *regexp.Regexp
	kind     Category
	severity Severity
	detail   string
}

func newRule(pattern string, kind Category, sev Severity, detail string) rule {
	return rule{re: regexp.MustCompile(pattern), kind: kind, severity: sev, detail: detail}
}

// Rules shared by every dialect.
var commonRules = []rule{
	newRule(`\beval\s*\(`, CategoryDynamicEval, SeverityCatastrophic, "dynamic code evaluation"),
}

var goRules = []rule{
	newRule(`"github\.com/traefik/yaegi[^"]*"`, CategoryDynamicEval, SeverityCatastrophic, "nested interpreter import"),
	newRule(`\binterp\.New\s*\(`, CategoryDynamicEval, SeverityCatastrophic, "nested interpreter"),
	newRule(`\.Eval(Path)?\s*\(`, CategoryDynamicEval, SeverityCatastrophic, "interpreter evaluation"),
	newRule(`"plugin"`, CategoryDynamicEval, SeverityHigh, "plugin loading"),
	newRule(`//go:linkname`, CategoryObjectGraph, SeverityCatastrophic, "linkname directive"),

	newRule(`"os/exec"`, CategoryProcessSpawn, SeverityHigh, "os/exec import"),
	newRule(`\bsyscall\.(Exec|ForkExec|StartProcess)\s*\(`, CategoryProcessSpawn, SeverityHigh, "raw process spawn"),
	newRule(`\bos\.StartProcess\s*\(`, CategoryProcessSpawn, SeverityHigh, "os.StartProcess"),
	newRule(`"syscall"|"golang\.org/x/sys/[^"]*"`, CategoryProcessSpawn, SeverityMedium, "system call package"),

	newRule(`\bos\.(WriteFile|Create|OpenFile|Mkdir|MkdirAll|Remove|RemoveAll|Rename|Symlink|Link|Chmod|Chown|Truncate)\s*\(\s*"(/|\.\.)`,
		CategoryFSMutation, SeverityHigh, "filesystem mutation outside the workspace"),
	newRule(`\bos\.(Remove|RemoveAll|Rename|Symlink|Link|Chmod|Chown|Truncate)\s*\(`,
		CategoryFSMutation, SeverityMedium, "filesystem mutation"),

	newRule(`"net"|"net/http"|"net/rpc"|"net/smtp"`, CategoryNetworkEgress, SeverityMedium, "network package import"),

	newRule(`"unsafe"`, CategoryObjectGraph, SeverityHigh, "unsafe import"),
	newRule(`\breflect\.(NewAt|SliceHeader|StringHeader)\b|\.UnsafePointer\s*\(`, CategoryObjectGraph, SeverityHigh, "unsafe reflection"),
}

var pyRules = []rule{
	newRule(`\bexec\s*\(`, CategoryDynamicEval, SeverityCatastrophic, "exec()"),
	newRule(`(?m)(?:^|[^.\w])compile\s*\(`, CategoryDynamicEval, SeverityHigh, "compile()"),
	newRule(`\b__import__\s*\(`, CategoryDynamicEval, SeverityHigh, "__import__()"),
	newRule(`\bimportlib\b`, CategoryDynamicEval, SeverityHigh, "importlib"),
	newRule(`\b(marshal|pickle)\.loads?\s*\(`, CategoryDynamicEval, SeverityHigh, "code deserialization"),

	newRule(`\bsubprocess\b`, CategoryProcessSpawn, SeverityHigh, "subprocess"),
	newRule(`\bos\.(system|popen|fork|forkpty|exec\w*|spawn\w*|posix_spawn\w*)\s*\(`, CategoryProcessSpawn, SeverityHigh, "os process spawn"),
	newRule(`\bpty\.spawn\s*\(`, CategoryProcessSpawn, SeverityHigh, "pty.spawn"),
	newRule(`\bctypes\b|\bcffi\b`, CategoryProcessSpawn, SeverityHigh, "foreign function interface"),

	newRule(`\bopen\s*\(\s*['"](/|\.\.)[^'"]*['"]\s*,\s*['"][^'"]*[wax+]`, CategoryFSMutation, SeverityHigh, "file write outside the workspace"),
	newRule(`\bopen\s*\([^)]*,\s*['"][^'"]*[wax+]`, CategoryFSMutation, SeverityLow, "file write"),
	newRule(`\bos\.(remove|unlink|rmdir|removedirs|rename|replace|chmod|chown|symlink|link|truncate)\s*\(`, CategoryFSMutation, SeverityMedium, "filesystem mutation"),
	newRule(`\bshutil\.(rmtree|move|copy\w*|chown)\s*\(`, CategoryFSMutation, SeverityMedium, "filesystem mutation"),

	newRule(`\bimport\s+(socket|urllib\w*|requests|httpx|aiohttp|ftplib|smtplib|telnetlib)\b|\bfrom\s+(socket|urllib\w*|requests|httpx|aiohttp|http\.client)\b`,
		CategoryNetworkEgress, SeverityMedium, "network module import"),

	newRule(`__(subclasses|globals|builtins|code|closure|mro|bases)__`, CategoryObjectGraph, SeverityHigh, "interpreter object graph access"),
	newRule(`\b(setattr|delattr)\s*\(`, CategoryObjectGraph, SeverityMedium, "attribute mutation"),
	newRule(`\bsys\.modules\b`, CategoryObjectGraph, SeverityHigh, "module table access"),
}

var urlLiteral = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s"'<>\x60)]+`)

// StaticConfig tunes the static validator.
type StaticConfig struct {
	// ApprovalThreshold is the score at or above which approval is required.
	ApprovalThreshold int `yaml:"approval_threshold"`
	// RefuseThreshold is the score at or above which the artifact is refused.
	RefuseThreshold int `yaml:"refuse_threshold"`
	// Egress, when configured, decides which URL literals are acceptable.
	Egress *URLFilter `yaml:"-"`
}

func (c StaticConfig) withDefaults() StaticConfig {
	if c.ApprovalThreshold <= 0 {
		c.ApprovalThreshold = 30
	}
	if c.RefuseThreshold <= 0 {
		c.RefuseThreshold = 70
	}
	return c
}

// StaticValidator matches artifact sources against a per-dialect catalog of
// forbidden constructs. It holds no mutable state.
type StaticValidator struct {
	cfg StaticConfig
}

// NewStaticValidator creates a validator.
func NewStaticValidator(cfg StaticConfig) *StaticValidator {
	return &StaticValidator{cfg: cfg.withDefaults()}
}

// Validate scans the whole source, comments and literals included.
func (v *StaticValidator) Validate(a synth.Artifact) Report {
	rules := slices.Concat(commonRules, goRules)
	if a.Dialect == synth.ScriptedPython {
		rules = slices.Concat(commonRules, pyRules)
	}

	lines := newLineIndex(a.Source)
	var issues []Issue
	for _, rl := range rules {
		for _, m := range rl.re.FindAllStringIndex(a.Source, -1) {
			issues = append(issues, Issue{
				Kind:     rl.kind,
				Severity: rl.severity,
				Location: lines.position(m[0]),
				Detail:   rl.detail + ": " + snippet(a.Source[m[0]:m[1]]),
			})
		}
	}
	issues = append(issues, v.egress(a.Source, lines)...)

	slices.SortStableFunc(issues, func(x, y Issue) int {
		return lines.compare(x.Location, y.Location)
	})
	return v.report(issues)
}

// egress checks every URL literal against the configured filter. Without a
// filter, literals are reported at low severity as unverified targets.
func (v *StaticValidator) egress(src string, lines lineIndex) []Issue {
	var issues []Issue
	for _, m := range urlLiteral.FindAllStringIndex(src, -1) {
		raw := src[m[0]:m[1]]
		issue := Issue{Kind: CategoryNetworkEgress, Location: lines.position(m[0])}
		if v.cfg.Egress == nil || !v.cfg.Egress.IsConfigured() {
			issue.Severity = SeverityLow
			issue.Detail = "unverified egress target: " + snippet(raw)
			issues = append(issues, issue)
			continue
		}
		if err := v.cfg.Egress.Check(raw); err != nil {
			issue.Severity = SeverityHigh
			issue.Detail = err.Error()
			issues = append(issues, issue)
		}
	}
	return issues
}

func (v *StaticValidator) report(issues []Issue) Report {
	score := 0
	for _, i := range issues {
		score += i.Severity.Weight()
	}
	score = min(score, 100)
	rep := Report{RiskScore: score, Issues: issues}
	rep.RequiresApproval = rep.Catastrophic() || score >= v.cfg.ApprovalThreshold
	rep.Refused = score >= v.cfg.RefuseThreshold
	rep.Secure = !rep.RequiresApproval && !rep.Refused
	return rep
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}

// lineIndex converts byte offsets to "line:col" positions.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	idx := lineIndex{0}
	for i := range len(src) {
		if src[i] == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (l lineIndex) position(off int) string {
	line, _ := slices.BinarySearch(l, off+1)
	start := l[line-1]
	return strconv.Itoa(line) + ":" + strconv.Itoa(off-start+1)
}

func (l lineIndex) compare(a, b string) int {
	al, ac := splitPos(a)
	bl, bc := splitPos(b)
	if al != bl {
		return al - bl
	}
	return ac - bc
}

func splitPos(p string) (int, int) {
	ls, cs, _ := strings.Cut(p, ":")
	line, _ := strconv.Atoi(ls)
	col, _ := strconv.Atoi(cs)
	return line, col
}
