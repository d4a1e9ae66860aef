// Package metrics holds the Prometheus collectors for one pipeline run. Each
// run gets its own registry; there is no HTTP endpoint. The registry can be
// dumped in text exposition format for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meshbatch"

// Metrics holds all collectors.
type Metrics struct {
	Registry *prometheus.Registry

	// Scheduler
	UnitsRunning   prometheus.Gauge
	UnitsPending   prometheus.Gauge
	UnitsCompleted *prometheus.CounterVec
	UnitsFailed    *prometheus.CounterVec
	UnitDuration   *prometheus.HistogramVec

	// Pipeline
	StageDuration   *prometheus.GaugeVec
	TextureOutcomes *prometheus.CounterVec
	GeometryFiles   prometheus.Gauge
	Batches         prometheus.Gauge
	RunStatus       *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		UnitsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units_running",
			Help:      "Worker processes currently running",
		}),
		UnitsPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units_pending",
			Help:      "Invocations waiting for a free slot",
		}),
		UnitsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_completed_total",
			Help:      "Invocations that exited 0 with all outputs present",
		}, []string{"pool"}),
		UnitsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_failed_total",
			Help:      "Invocations that failed, by reason",
		}, []string{"pool", "reason"}),
		UnitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall time from launch to observed exit",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"pool"}),

		StageDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage",
		}, []string{"stage"}),
		TextureOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "texture_outcomes_total",
			Help:      "Texture consolidation outcomes by kind",
		}, []string{"kind"}),
		GeometryFiles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geometry_files",
			Help:      "Geometry files found by the last scan",
		}),
		Batches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches",
			Help:      "Batches dispatched in this run",
		}),
		RunStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_status",
			Help:      "1 for the terminal status of the run, 0 otherwise",
		}, []string{"status"}),
	}
}

// ObserveStage records a stage's wall time.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// SetStatus marks status as the run's terminal status.
func (m *Metrics) SetStatus(status string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		m.RunStatus.WithLabelValues(s).Set(v)
	}
}

// WriteTextfile writes the registry to path atomically in text format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
