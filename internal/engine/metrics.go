package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	cache      *prometheus.CounterVec
	anomalies  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpexec_executions_total",
			Help: "Executions by terminal stage and outcome.",
		}, []string{"stage", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcpexec_execution_duration_seconds",
			Help:    "End-to-end execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"tier"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpexec_cache_lookups_total",
			Help: "Result cache lookups by outcome.",
		}, []string{"result"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpexec_anomalies_total",
			Help: "Anomalies reported by the detector.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.executions, m.duration, m.cache, m.anomalies)
	}
	return m
}

func (m *Metrics) execution(stage stage, success bool, tier string, seconds float64) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.executions.WithLabelValues(string(stage), outcome).Inc()
	if tier == "" {
		tier = "none"
	}
	m.duration.WithLabelValues(tier).Observe(seconds)
}

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) anomaly(kind string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(kind).Inc()
}
