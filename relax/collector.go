package relax

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// RunStats counts work done by an optimizer across runs.
type RunStats struct {
	Runs            atomic.Int64
	Iterations      atomic.Int64
	Converged       atomic.Int64
	DegenerateSteps atomic.Int64
}

// Collector exposes RunStats as prometheus metrics.
type Collector struct {
	stats *RunStats

	runs       *prometheus.Desc
	iterations *prometheus.Desc
	converged  *prometheus.Desc
	degenerate *prometheus.Desc
}

func NewCollector(stats *RunStats) *Collector {
	return &Collector{
		stats: stats,

		runs: prometheus.NewDesc(
			"relax_runs_total",
			"Total number of relaxation runs started",
			nil, nil,
		),
		iterations: prometheus.NewDesc(
			"relax_iterations_total",
			"Total number of L-BFGS iterations taken",
			nil, nil,
		),
		converged: prometheus.NewDesc(
			"relax_converged_systems_total",
			"Total number of systems that reached the force threshold",
			nil, nil,
		),
		degenerate: prometheus.NewDesc(
			"relax_degenerate_steps_total",
			"Total number of near-zero steps skipped",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runs
	ch <- c.iterations
	ch <- c.converged
	ch <- c.degenerate
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.runs, prometheus.CounterValue, float64(c.stats.Runs.Load()))
	ch <- prometheus.MustNewConstMetric(c.iterations, prometheus.CounterValue, float64(c.stats.Iterations.Load()))
	ch <- prometheus.MustNewConstMetric(c.converged, prometheus.CounterValue, float64(c.stats.Converged.Load()))
	ch <- prometheus.MustNewConstMetric(c.degenerate, prometheus.CounterValue, float64(c.stats.DegenerateSteps.Load()))
}
