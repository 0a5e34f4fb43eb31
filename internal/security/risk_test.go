package security

import (
	"strings"
	"testing"

	"github.com/flemzord/mcpexec/internal/synth"
)

func TestAssess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		artifact  synth.Artifact
		report    Report
		wantScore int
		wantLevel RiskLevel
	}{
		{
			name:      "small clean artifact",
			artifact:  synth.Artifact{Source: "x", Dependencies: []string{"toolrt"}},
			wantScore: 0,
			wantLevel: RiskLow,
		},
		{
			name:      "long artifact",
			artifact:  synth.Artifact{Source: strings.Repeat("x", 6000)},
			wantScore: 10,
			wantLevel: RiskLow,
		},
		{
			name:      "medium static score",
			artifact:  synth.Artifact{Source: "x"},
			report:    Report{RiskScore: 20},
			wantScore: 20,
			wantLevel: RiskLow,
		},
		{
			name:      "side effects push to medium",
			artifact:  synth.Artifact{Source: "x", SideEffects: []string{"network", "write"}},
			report:    Report{RiskScore: 20},
			wantScore: 40,
			wantLevel: RiskMedium,
		},
		{
			name:      "side effects are capped",
			artifact:  synth.Artifact{Source: "x", SideEffects: []string{"a", "b", "c", "d", "e"}},
			wantScore: 30,
			wantLevel: RiskMedium,
		},
		{
			name:      "dependencies beyond two",
			artifact:  synth.Artifact{Source: "x", Dependencies: []string{"a", "b", "c", "d"}},
			report:    Report{RiskScore: 40},
			wantScore: 50,
			wantLevel: RiskHigh,
		},
		{
			name:      "high static plus length",
			artifact:  synth.Artifact{Source: strings.Repeat("x", 25_000)},
			report:    Report{RiskScore: 60},
			wantScore: 80,
			wantLevel: RiskCritical,
		},
		{
			name:     "catastrophic forces critical",
			artifact: synth.Artifact{Source: "x"},
			report: Report{RiskScore: 100, Issues: []Issue{
				{Kind: CategoryDynamicEval, Severity: SeverityCatastrophic},
			}},
			wantScore: 100,
			wantLevel: RiskCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Assess(tt.artifact, tt.report)
			if got.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d (factors %+v)", got.Score, tt.wantScore, got.Factors)
			}
			if got.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", got.Level, tt.wantLevel)
			}
		})
	}
}

func TestLevelFor_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  RiskLevel
	}{
		{0, RiskLow}, {24, RiskLow}, {25, RiskMedium}, {49, RiskMedium},
		{50, RiskHigh}, {74, RiskHigh}, {75, RiskCritical}, {100, RiskCritical},
	}
	for _, tt := range tests {
		if got := levelFor(tt.score); got != tt.want {
			t.Errorf("levelFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
