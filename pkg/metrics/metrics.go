// Package metrics holds the prometheus collectors for a run. They are
// written once at exit to a node-exporter style textfile.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of one run on a private registry.
type Metrics struct {
	Registry       *prometheus.Registry
	Steps          prometheus.Counter
	Episodes       *prometheus.CounterVec
	Divergences    prometheus.Counter
	MaxDivergence  prometheus.Gauge
	ModalityMisses prometheus.Counter

	mu     sync.Mutex
	maxDiv float64
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robodata_playback_steps_total",
			Help: "Environment steps or state resets performed during playback.",
		}),
		Episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robodata_playback_episodes_total",
			Help: "Episodes played back, by mode.",
		}, []string{"mode"}),
		Divergences: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robodata_playback_divergences_total",
			Help: "Steps whose simulated state differed from the stored state.",
		}),
		MaxDivergence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "robodata_playback_max_divergence",
			Help: "Largest L2 distance between simulated and stored state.",
		}),
		ModalityMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robodata_obs_modality_misses_total",
			Help: "Observation keys not found in the modality table.",
		}),
	}
	m.Registry.MustRegister(m.Steps, m.Episodes, m.Divergences, m.MaxDivergence, m.ModalityMisses)
	return m
}

// ObserveDivergence counts one divergent step and keeps the maximum norm.
func (m *Metrics) ObserveDivergence(norm float64) {
	m.Divergences.Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	if norm > m.maxDiv {
		m.maxDiv = norm
		m.MaxDivergence.Set(norm)
	}
}

// WriteFile writes all collectors in the prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
