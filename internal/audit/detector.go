package audit

import (
	"fmt"
	"sync"
	"time"
)

// AnomalyKind names a detector rule.
type AnomalyKind string

// Detector rules.
const (
	AnomalyResourceSpike       AnomalyKind = "resource_spike"
	AnomalyFastExecution       AnomalyKind = "fast_execution"
	AnomalyLongExecution       AnomalyKind = "long_execution"
	AnomalyConsecutiveFailures AnomalyKind = "consecutive_failures"
	AnomalyCatastrophicCode    AnomalyKind = "catastrophic_code"
)

// Anomaly is one detector finding.
type Anomaly struct {
	Kind        AnomalyKind
	Severity    Severity
	ExecutionID string
	Detail      string
}

// Event converts a into an anomaly audit event.
func (a Anomaly) Event() Event {
	return Event{
		Kind:        KindAnomaly,
		Severity:    a.Severity,
		ExecutionID: a.ExecutionID,
		Payload: map[string]any{
			"anomaly": string(a.Kind),
			"detail":  a.Detail,
		},
	}
}

// Observation is what the detector learns from one finished execution.
type Observation struct {
	ExecutionID  string
	Success      bool
	Cached       bool
	WallMS       int64
	MemoryBytes  int64
	Catastrophic bool
}

// DefaultBaselineSize is the number of samples the rolling baseline keeps.
const DefaultBaselineSize = 1000

type sample struct {
	wallMS      int64
	memoryBytes int64
}

// Baseline is a fixed-size ring of recent successful executions.
type Baseline struct {
	samples []sample
	next    int
	n       int
	sumWall int64
	sumMem  int64
}

// NewBaseline creates a baseline holding size samples.
func NewBaseline(size int) *Baseline {
	if size <= 0 {
		size = DefaultBaselineSize
	}
	return &Baseline{samples: make([]sample, size)}
}

// Add records a sample, evicting the oldest once full.
func (b *Baseline) Add(wallMS, memoryBytes int64) {
	if b.n == len(b.samples) {
		old := b.samples[b.next]
		b.sumWall -= old.wallMS
		b.sumMem -= old.memoryBytes
	} else {
		b.n++
	}
	b.samples[b.next] = sample{wallMS: wallMS, memoryBytes: memoryBytes}
	b.sumWall += wallMS
	b.sumMem += memoryBytes
	b.next = (b.next + 1) % len(b.samples)
}

// Len returns the number of samples held.
func (b *Baseline) Len() int {
	return b.n
}

// Mean returns the average wall time and memory of the held samples.
func (b *Baseline) Mean() (wallMS, memoryBytes float64) {
	if b.n == 0 {
		return 0, 0
	}
	return float64(b.sumWall) / float64(b.n), float64(b.sumMem) / float64(b.n)
}

// DetectorConfig tunes the rules. Zero fields take the defaults shown.
type DetectorConfig struct {
	SpikeFactor  float64       // 3
	MinSamples   int           // 5
	FastBelow    time.Duration // 10ms
	SlowAbove    time.Duration // 60s
	FailureRun   int           // 3
	BaselineSize int           // DefaultBaselineSize
}

func (c *DetectorConfig) defaults() {
	if c.SpikeFactor <= 0 {
		c.SpikeFactor = 3
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
	if c.FastBelow <= 0 {
		c.FastBelow = 10 * time.Millisecond
	}
	if c.SlowAbove <= 0 {
		c.SlowAbove = 60 * time.Second
	}
	if c.FailureRun <= 0 {
		c.FailureRun = 3
	}
}

// Detector flags unusual executions. It only reports; callers decide what
// to record.
type Detector struct {
	cfg DetectorConfig

	mu       sync.Mutex
	baseline *Baseline
	failures int
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	cfg.defaults()
	return &Detector{cfg: cfg, baseline: NewBaseline(cfg.BaselineSize)}
}

// Observe checks o against every rule, then folds it into the baseline.
// Spikes compare against the mean before o is added.
func (d *Detector) Observe(o Observation) []Anomaly {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Anomaly
	add := func(kind AnomalyKind, sev Severity, format string, args ...any) {
		out = append(out, Anomaly{
			Kind:        kind,
			Severity:    sev,
			ExecutionID: o.ExecutionID,
			Detail:      fmt.Sprintf(format, args...),
		})
	}

	if o.Catastrophic {
		add(AnomalyCatastrophicCode, SeverityCritical, "artifact matched a catastrophic pattern")
	}

	if o.Success {
		d.failures = 0
	} else {
		d.failures++
		if d.failures >= d.cfg.FailureRun {
			add(AnomalyConsecutiveFailures, SeverityHigh, "%d consecutive failed executions", d.failures)
		}
	}

	if o.Cached {
		return out
	}

	wall := time.Duration(o.WallMS) * time.Millisecond
	if wall > d.cfg.SlowAbove {
		add(AnomalyLongExecution, SeverityWarning, "execution took %s", wall)
	}
	if !o.Success {
		return out
	}
	if wall < d.cfg.FastBelow {
		add(AnomalyFastExecution, SeverityWarning, "execution finished in %s", wall)
	}

	if d.baseline.Len() >= d.cfg.MinSamples {
		meanWall, meanMem := d.baseline.Mean()
		if meanWall > 0 && float64(o.WallMS) > d.cfg.SpikeFactor*meanWall {
			add(AnomalyResourceSpike, SeverityWarning, "wall time %dms exceeds %.0fx mean %.1fms", o.WallMS, d.cfg.SpikeFactor, meanWall)
		}
		if meanMem > 0 && float64(o.MemoryBytes) > d.cfg.SpikeFactor*meanMem {
			add(AnomalyResourceSpike, SeverityWarning, "memory %d bytes exceeds %.0fx mean %.0f bytes", o.MemoryBytes, d.cfg.SpikeFactor, meanMem)
		}
	}
	d.baseline.Add(o.WallMS, o.MemoryBytes)
	return out
}

// Samples returns the number of baseline samples.
func (d *Detector) Samples() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseline.Len()
}

// Seed replays stored execution events into the baseline so a restarted
// process does not start cold. It returns the number of samples added.
func (d *Detector) Seed(events []Event) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	added := 0
	for _, e := range events {
		o, ok := ObservationFromEvent(e)
		if !ok || !o.Success || o.Cached {
			continue
		}
		d.baseline.Add(o.WallMS, o.MemoryBytes)
		added++
	}
	return added
}

// ObservationFromEvent reads an Observation back from a terminal execution
// event. Events without wall-time data report false.
func ObservationFromEvent(e Event) (Observation, bool) {
	if e.Kind != KindExecution || e.Payload == nil {
		return Observation{}, false
	}
	wall, ok := number(e.Payload["wall_ms"])
	if !ok {
		return Observation{}, false
	}
	mem, _ := number(e.Payload["memory_bytes"])
	success, _ := e.Payload["success"].(bool)
	cached, _ := e.Payload["cached"].(bool)
	return Observation{
		ExecutionID: e.ExecutionID,
		Success:     success,
		Cached:      cached,
		WallMS:      wall,
		MemoryBytes: mem,
	}, true
}

func number(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
