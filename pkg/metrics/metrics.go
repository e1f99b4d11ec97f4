// Package metrics exposes prometheus collectors for the simulation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SimulationRuns counts finished simulation requests by outcome.
	SimulationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cvsim_simulation_runs_total",
		Help: "Finished simulation requests partitioned by outcome.",
	}, []string{"outcome"})

	// SimulationDuration observes wall-clock duration of simulation requests.
	SimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cvsim_simulation_duration_seconds",
		Help:    "Wall-clock duration of simulation requests.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// SettingsWrites counts settings upserts.
	SettingsWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cvsim_settings_writes_total",
		Help: "Simulation settings upserts.",
	})
)

// ObserveRun records one finished simulation request.
func ObserveRun(outcome string, seconds float64) {
	SimulationRuns.WithLabelValues(outcome).Inc()
	SimulationDuration.Observe(seconds)
}
