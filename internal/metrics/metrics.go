// Package metrics records save and snapshot activity with Prometheus
// collectors and exports them to a node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storyloom"

// Recorder owns a private registry. A nil *Recorder is valid and records
// nothing, so components can run without metrics.
type Recorder struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	durations        *prometheus.HistogramVec
	snapshotsCreated *prometheus.CounterVec
	snapshotsPruned  prometheus.Counter
	memoryOnly       prometheus.Gauge
}

// New creates a recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Persistence operations by name and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of persistence operations.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"operation"}),
		snapshotsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_created_total",
			Help:      "Snapshots created, by kind.",
		}, []string{"kind"}),
		snapshotsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_pruned_total",
			Help:      "Automatic snapshots removed by retention.",
		}),
		memoryOnly: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_only",
			Help:      "1 when the local database is unavailable and data is kept in memory.",
		}),
	}
	r.registry.MustRegister(r.operations, r.durations, r.snapshotsCreated, r.snapshotsPruned, r.memoryOnly)
	return r
}

// Observe records an operation outcome such as "save", "import" or "restore".
func (r *Recorder) Observe(operation string, success bool, duration time.Duration) {
	if r == nil || operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.operations.WithLabelValues(operation, result).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// SnapshotCreated counts a new snapshot.
func (r *Recorder) SnapshotCreated(automatic bool) {
	if r == nil {
		return
	}
	kind := "manual"
	if automatic {
		kind = "automatic"
	}
	r.snapshotsCreated.WithLabelValues(kind).Inc()
}

// SnapshotsPruned counts snapshots removed by retention.
func (r *Recorder) SnapshotsPruned(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.snapshotsPruned.Add(float64(n))
}

// SetMemoryOnly flags whether the app fell back to the in-memory store.
func (r *Recorder) SetMemoryOnly(on bool) {
	if r == nil {
		return
	}
	if on {
		r.memoryOnly.Set(1)
	} else {
		r.memoryOnly.Set(0)
	}
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes every metric in the text exposition format. The file
// is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
