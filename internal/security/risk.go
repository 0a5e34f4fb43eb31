package security

import (
	"fmt"

	"github.com/flemzord/mcpexec/internal/synth"
)

// RiskLevel is the coarse outcome of a risk assessment. It selects the
// sandbox tier.
type RiskLevel string

// Risk levels in increasing order.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Factor is one contribution to a risk score.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Detail string `json:"detail,omitempty"`
}

// Assessment combines the static report with heuristic factors.
type Assessment struct {
	Level   RiskLevel `json:"level"`
	Score   int       `json:"score"`
	Factors []Factor  `json:"factors,omitempty"`
}

// Assess scores an artifact. Length, external dependencies and declared side
// effects each add points on top of the static score; any catastrophic
// finding forces the critical level.
func Assess(a synth.Artifact, rep Report) Assessment {
	var factors []Factor
	add := func(name string, points int, detail string) {
		if points > 0 {
			factors = append(factors, Factor{Name: name, Points: points, Detail: detail})
		}
	}

	add("static", rep.RiskScore, fmt.Sprintf("%d issue(s)", len(rep.Issues)))

	n := len(a.Source)
	switch {
	case n > 20_000:
		add("length", 20, fmt.Sprintf("%d bytes", n))
	case n > 5_000:
		add("length", 10, fmt.Sprintf("%d bytes", n))
	case n > 2_000:
		add("length", 5, fmt.Sprintf("%d bytes", n))
	}

	if extra := len(a.Dependencies) - 2; extra > 0 {
		add("dependencies", 5*extra, fmt.Sprintf("%d external module(s)", len(a.Dependencies)))
	}
	if len(a.SideEffects) > 0 {
		add("side_effects", min(10*len(a.SideEffects), 30), fmt.Sprint(a.SideEffects))
	}

	score := 0
	for _, f := range factors {
		score += f.Points
	}
	score = min(score, 100)

	level := levelFor(score)
	if rep.Catastrophic() {
		level = RiskCritical
	}
	return Assessment{Level: level, Score: score, Factors: factors}
}

func levelFor(score int) RiskLevel {
	switch {
	case score >= 75:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 25:
		return RiskMedium
	default:
		return RiskLow
	}
}
