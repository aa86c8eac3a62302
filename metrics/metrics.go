// Package metrics provides Prometheus metrics for pgsnap components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var registerOnce sync.Once

const (
	// Namespace is the Prometheus namespace for all pgsnap metrics.
	Namespace = "pgsnap"

	// Subsystem constants for metric organization.
	SubsystemSnapshot = "snapshot"
	SubsystemOffset   = "offset"
)

// Label constants for consistent labeling across metrics.
const (
	LabelServer = "server"
	LabelTable  = "table"
	LabelStatus = "status"
)

var (
	// Snapshot metrics

	// SnapshotRunsTotal counts snapshot runs by terminal status.
	SnapshotRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSnapshot,
			Name:      "runs_total",
			Help:      "Total number of snapshot runs by terminal status",
		},
		[]string{LabelServer, LabelStatus},
	)

	// SnapshotInProgress is 1 while a snapshot run is active.
	SnapshotInProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSnapshot,
			Name:      "in_progress",
			Help:      "Whether a snapshot run is currently active (0 or 1)",
		},
		[]string{LabelServer},
	)

	// SnapshotTablesCaptured tracks how many tables the active run captures.
	SnapshotTablesCaptured = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSnapshot,
			Name:      "tables_captured",
			Help:      "Number of tables captured by the most recent snapshot run",
		},
		[]string{LabelServer},
	)

	// SnapshotTablesCompleted counts tables fully exported across runs.
	SnapshotTablesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSnapshot,
			Name:      "tables_completed_total",
			Help:      "Total number of table scans completed",
		},
		[]string{LabelServer},
	)

	// SnapshotRowsTotal counts rows exported per table.
	SnapshotRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSnapshot,
			Name:      "rows_total",
			Help:      "Total number of rows exported by snapshots",
		},
		[]string{LabelServer, LabelTable},
	)

	// SnapshotDurationSeconds tracks the duration of completed snapshot runs.
	SnapshotDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemSnapshot,
			Name:      "duration_seconds",
			Help:      "Duration of completed snapshot runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{LabelServer},
	)

	// Offset metrics

	// OffsetSavesTotal counts offset store writes by status.
	OffsetSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemOffset,
			Name:      "saves_total",
			Help:      "Total number of offset store writes",
		},
		[]string{LabelServer, LabelStatus},
	)

	// OffsetLSN exposes the last saved WAL position. Positions beyond 2^53
	// lose precision in the float conversion, which is fine for trending.
	OffsetLSN = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemOffset,
			Name:      "lsn",
			Help:      "Last saved WAL position as a number",
		},
		[]string{LabelServer},
	)

	// allMetrics contains all metrics for registration.
	allMetrics = []prometheus.Collector{
		// Snapshot
		SnapshotRunsTotal,
		SnapshotInProgress,
		SnapshotTablesCaptured,
		SnapshotTablesCompleted,
		SnapshotRowsTotal,
		SnapshotDurationSeconds,
		// Offset
		OffsetSavesTotal,
		OffsetLSN,
	}
)

// Register registers all pgsnap metrics with the default Prometheus registry.
// It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		for _, m := range allMetrics {
			prometheus.MustRegister(m)
		}
	})
}

// RegisterWith registers all pgsnap metrics with the given registry.
func RegisterWith(reg prometheus.Registerer) {
	for _, m := range allMetrics {
		reg.MustRegister(m)
	}
}

// NewRegistry creates a new Prometheus registry with all pgsnap metrics and
// standard Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	RegisterWith(reg)

	return reg
}
