package audit

import (
	"testing"
)

func kinds(as []Anomaly) []AnomalyKind {
	out := make([]AnomalyKind, len(as))
	for i, a := range as {
		out[i] = a.Kind
	}
	return out
}

func has(as []Anomaly, k AnomalyKind) bool {
	for _, a := range as {
		if a.Kind == k {
			return true
		}
	}
	return false
}

func warm(d *Detector, n int, wall, mem int64) {
	for range n {
		d.Observe(Observation{Success: true, WallMS: wall, MemoryBytes: mem})
	}
}

func TestDetector_ResourceSpike(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{})
	warm(d, 5, 100, 1000)

	if got := d.Observe(Observation{Success: true, WallMS: 300, MemoryBytes: 1000}); len(got) != 0 {
		t.Errorf("3x mean flagged: %v", kinds(got))
	}
	got := d.Observe(Observation{ExecutionID: "e", Success: true, WallMS: 500, MemoryBytes: 5000})
	if len(got) != 2 || !has(got, AnomalyResourceSpike) {
		t.Fatalf("anomalies = %v, want wall and memory spikes", kinds(got))
	}
	if got[0].ExecutionID != "e" || got[0].Severity != SeverityWarning {
		t.Errorf("anomaly = %+v", got[0])
	}
}

func TestDetector_NeedsMinimumSamples(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{})
	warm(d, 4, 100, 0)
	if got := d.Observe(Observation{Success: true, WallMS: 10_000}); has(got, AnomalyResourceSpike) {
		t.Error("spike flagged before the baseline had 5 samples")
	}
}

func TestDetector_FastAndLong(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{})
	if got := d.Observe(Observation{Success: true, WallMS: 3}); !has(got, AnomalyFastExecution) {
		t.Errorf("fast run not flagged: %v", kinds(got))
	}
	if got := d.Observe(Observation{Success: true, WallMS: 3, Cached: true}); len(got) != 0 {
		t.Errorf("cache hit flagged: %v", kinds(got))
	}
	if got := d.Observe(Observation{Success: true, WallMS: 61_000}); !has(got, AnomalyLongExecution) {
		t.Errorf("long run not flagged: %v", kinds(got))
	}
	if got := d.Observe(Observation{Success: false, WallMS: 2}); has(got, AnomalyFastExecution) {
		t.Error("failed run flagged as fast")
	}
}

func TestDetector_ConsecutiveFailures(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{})
	fail := Observation{Success: false, WallMS: 50}
	d.Observe(fail)
	d.Observe(fail)
	got := d.Observe(fail)
	if !has(got, AnomalyConsecutiveFailures) {
		t.Fatalf("third failure not flagged: %v", kinds(got))
	}
	d.Observe(Observation{Success: true, WallMS: 50})
	if got := d.Observe(fail); has(got, AnomalyConsecutiveFailures) {
		t.Error("failure run not reset by success")
	}
}

func TestDetector_Catastrophic(t *testing.T) {
	t.Parallel()

	d := NewDetector(DetectorConfig{})
	got := d.Observe(Observation{ExecutionID: "x", Catastrophic: true})
	if !has(got, AnomalyCatastrophicCode) || got[0].Severity != SeverityCritical {
		t.Errorf("anomalies = %+v", got)
	}
	ev := got[0].Event()
	if ev.Kind != KindAnomaly || ev.Payload["anomaly"] != "catastrophic_code" || ev.ExecutionID != "x" {
		t.Errorf("Event() = %+v", ev)
	}
}

func TestBaseline_Ring(t *testing.T) {
	t.Parallel()

	b := NewBaseline(3)
	for _, w := range []int64{10, 20, 30, 40} {
		b.Add(w, w*2)
	}
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}
	wall, mem := b.Mean()
	if wall != 30 || mem != 60 {
		t.Errorf("Mean() = %v, %v; want 30, 60", wall, mem)
	}
}

func TestDetector_Seed(t *testing.T) {
	t.Parallel()

	events := []Event{
		{Kind: KindExecution, Payload: map[string]any{"success": true, "wall_ms": 100.0, "memory_bytes": 10.0}},
		{Kind: KindExecution, Payload: map[string]any{"success": true, "cached": true, "wall_ms": 1.0}},
		{Kind: KindExecution, Payload: map[string]any{"success": false, "wall_ms": 100.0}},
		{Kind: KindSecurity, Payload: map[string]any{"success": true, "wall_ms": 100.0}},
		{Kind: KindExecution, Payload: map[string]any{"cache": "hit"}},
	}
	d := NewDetector(DetectorConfig{})
	if n := d.Seed(events); n != 1 {
		t.Errorf("Seed() = %d, want 1", n)
	}
	if d.Samples() != 1 {
		t.Errorf("Samples() = %d", d.Samples())
	}
}
