// Package telemetry exposes cleanup activity as Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cleanupd/pkg/models"
)

const namespace = "cleanupd"

// Metrics holds the daemon's collectors. A nil *Metrics is valid and
// records nothing, so components can run without telemetry.
type Metrics struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	recordsArchived prometheus.Counter
	runDuration     *prometheus.HistogramVec
	batchSize       prometheus.Gauge
	emergencies     prometheus.Counter
	emergencyMode   prometheus.Gauge
	diskUsage       prometheus.Gauge
	diskFreed       prometheus.Counter
}

// New registers all collectors on registry, creating one when nil
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: registry,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Cleanup runs by job type and status.",
		}, []string{"job_type", "status"}),
		recordsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_archived_total",
			Help:      "Records moved to the archive by successful runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cleanup_duration_seconds",
			Help:      "Cleanup run duration.",
			// Runs target five minutes; buckets span seconds to an hour
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"job_type"}),
		batchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Batch size used by the most recent run.",
		}),
		emergencies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disk_emergencies_total",
			Help:      "Transitions into disk emergency mode.",
		}),
		emergencyMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_emergency_mode",
			Help:      "1 while the disk guardian is in emergency mode.",
		}),
		diskUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_usage_percent",
			Help:      "Disk usage seen by the most recent guardian check.",
		}),
		diskFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disk_freed_bytes_total",
			Help:      "Disk space reclaimed by cleanup runs.",
		}),
	}

	registry.MustRegister(
		m.runs,
		m.recordsArchived,
		m.runDuration,
		m.batchSize,
		m.emergencies,
		m.emergencyMode,
		m.diskUsage,
		m.diskFreed,
	)
	return m
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records a finished cleanup run
func (m *Metrics) ObserveRun(outcome models.CleanupOutcome) {
	if m == nil {
		return
	}

	status := "success"
	if !outcome.Success {
		status = "failure"
	}
	m.runs.WithLabelValues(outcome.JobType, status).Inc()
	m.runDuration.WithLabelValues(outcome.JobType).Observe(outcome.DurationSeconds)
	m.batchSize.Set(float64(outcome.BatchSize))

	if outcome.Success {
		m.recordsArchived.Add(float64(outcome.RecordsArchived))
		m.diskFreed.Add(float64(outcome.DiskFreedBytes))
	}
}

// ObserveDiskCheck records a guardian probe result
func (m *Metrics) ObserveDiskCheck(percent float64, emergency bool) {
	if m == nil {
		return
	}

	m.diskUsage.Set(percent)
	if emergency {
		m.emergencyMode.Set(1)
	} else {
		m.emergencyMode.Set(0)
	}
}

// ObserveEmergency counts a transition into emergency mode
func (m *Metrics) ObserveEmergency() {
	if m == nil {
		return
	}
	m.emergencies.Inc()
}
