// Package observability provides prometheus instrumentation for the episode
// driver and aggregate statistics over finished runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the driver reports into. Create once per
// process and register against your registry of choice.
type Metrics struct {
	StepsTotal    *prometheus.CounterVec
	EpisodesTotal *prometheus.CounterVec
	StepLatency   prometheus.Histogram
	MapCoverage   *prometheus.GaugeVec
}

// NewMetrics creates the collector set with the symgym namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symgym",
			Name:      "steps_total",
			Help:      "Engine step exchanges, by map.",
		}, []string{"map"}),
		EpisodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symgym",
			Name:      "episodes_total",
			Help:      "Finished episodes, by map and outcome (done|faulted).",
		}, []string{"map", "outcome"}),
		StepLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "symgym",
			Name:      "step_latency_seconds",
			Help:      "Latency of one engine step exchange.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		MapCoverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "symgym",
			Name:      "map_coverage",
			Help:      "Final coverage of the last finished episode, by map.",
		}, []string{"map"}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.StepsTotal, m.EpisodesTotal, m.StepLatency, m.MapCoverage,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
