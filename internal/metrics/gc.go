// Package metrics exposes Prometheus metrics for the storage GC.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Duration histogram buckets: GC cycles range from sub-millisecond
// (in-memory stores) to minutes (large Oxia keyspaces).
var durationBuckets = []float64{
	0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300,
}

// GCMetrics holds metrics for the garbage collection cycle.
type GCMetrics struct {
	// Runs counts compact completions; a cycle whose scan finds nothing
	// does not increment it.
	Runs prometheus.Counter

	// ScanDuration observes the wall time of each scan phase.
	ScanDuration prometheus.Histogram

	// CompactionDuration observes the wall time of each compact phase.
	CompactionDuration prometheus.Histogram

	// DeletedRecords tracks the records deleted by the last cycle,
	// labelled by record family.
	DeletedRecords *prometheus.GaugeVec

	// BlockedWriters tracks the number of writers currently pinned
	// behind an in-flight compaction.
	BlockedWriters prometheus.Gauge
}

// NewGCMetrics creates and registers GC metrics with the default registry.
func NewGCMetrics() *GCMetrics {
	return &GCMetrics{
		Runs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "marathon",
			Subsystem: "persistence_gc",
			Name:      "runs_total",
			Help:      "Number of completed garbage collection cycles.",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "marathon",
			Subsystem: "persistence_gc",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of each GC scan phase.",
			Buckets:   durationBuckets,
		}),
		CompactionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "marathon",
			Subsystem: "persistence_gc",
			Name:      "compaction_duration_seconds",
			Help:      "Wall time of each GC compaction phase.",
			Buckets:   durationBuckets,
		}),
		DeletedRecords: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "marathon",
			Subsystem: "persistence_gc",
			Name:      "deleted_records",
			Help:      "Records deleted by the last completed cycle, by family.",
		}, []string{"family"}),
		BlockedWriters: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "marathon",
			Subsystem: "persistence_gc",
			Name:      "blocked_writers",
			Help:      "Writers currently pinned behind an in-flight compaction.",
		}),
	}
}

// NewGCMetricsWithRegistry creates GC metrics registered with a custom
// registry. Useful for testing to avoid conflicts with the default registry.
func NewGCMetricsWithRegistry(reg prometheus.Registerer) *GCMetrics {
	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "marathon",
		Subsystem: "persistence_gc",
		Name:      "runs_total",
		Help:      "Number of completed garbage collection cycles.",
	})
	scanDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marathon",
		Subsystem: "persistence_gc",
		Name:      "scan_duration_seconds",
		Help:      "Wall time of each GC scan phase.",
		Buckets:   durationBuckets,
	})
	compactionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marathon",
		Subsystem: "persistence_gc",
		Name:      "compaction_duration_seconds",
		Help:      "Wall time of each GC compaction phase.",
		Buckets:   durationBuckets,
	})
	deletedRecords := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "marathon",
		Subsystem: "persistence_gc",
		Name:      "deleted_records",
		Help:      "Records deleted by the last completed cycle, by family.",
	}, []string{"family"})
	blockedWriters := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "marathon",
		Subsystem: "persistence_gc",
		Name:      "blocked_writers",
		Help:      "Writers currently pinned behind an in-flight compaction.",
	})

	reg.MustRegister(runs)
	reg.MustRegister(scanDuration)
	reg.MustRegister(compactionDuration)
	reg.MustRegister(deletedRecords)
	reg.MustRegister(blockedWriters)

	return &GCMetrics{
		Runs:               runs,
		ScanDuration:       scanDuration,
		CompactionDuration: compactionDuration,
		DeletedRecords:     deletedRecords,
		BlockedWriters:     blockedWriters,
	}
}

// RecordRun increments the completed-cycle counter.
func (m *GCMetrics) RecordRun() {
	m.Runs.Inc()
}

// ObserveScan records one scan phase duration.
func (m *GCMetrics) ObserveScan(d time.Duration) {
	m.ScanDuration.Observe(d.Seconds())
}

// ObserveCompaction records one compact phase duration.
func (m *GCMetrics) ObserveCompaction(d time.Duration) {
	m.CompactionDuration.Observe(d.Seconds())
}

// RecordDeleted updates the per-family deleted record gauges.
func (m *GCMetrics) RecordDeleted(apps, appVersions, pods, podVersions, roots int) {
	m.DeletedRecords.WithLabelValues("apps").Set(float64(apps))
	m.DeletedRecords.WithLabelValues("app_versions").Set(float64(appVersions))
	m.DeletedRecords.WithLabelValues("pods").Set(float64(pods))
	m.DeletedRecords.WithLabelValues("pod_versions").Set(float64(podVersions))
	m.DeletedRecords.WithLabelValues("roots").Set(float64(roots))
}

// RecordBlockedWriters updates the pinned-writer gauge.
func (m *GCMetrics) RecordBlockedWriters(n int) {
	m.BlockedWriters.Set(float64(n))
}
