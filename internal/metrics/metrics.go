// Package metrics defines the Prometheus collectors exported by termgraph.
//
// A Metrics value is registered against a caller-supplied Registerer so that
// tests and embedded services can use private registries. Every recording
// method is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "termgraph"

// Metrics holds every termgraph collector.
type Metrics struct {
	// CommitsTotal counts successful commits.
	CommitsTotal prometheus.Counter

	// CommitDurationSeconds measures commit latency, permit drain included.
	CommitDurationSeconds prometheus.Histogram

	// CommitUnits counts units promoted by commits, by kind.
	CommitUnits *prometheus.CounterVec

	// CancelsTotal counts cancel operations.
	CancelsTotal prometheus.Counter

	// Uncommitted is the size of each uncommitted set.
	Uncommitted *prometheus.GaugeVec

	// CheckFailuresTotal counts failed checks by phase.
	CheckFailuresTotal *prometheus.CounterVec

	// SnapshotRequestsTotal counts snapshot requests by mode and outcome.
	SnapshotRequestsTotal *prometheus.CounterVec

	// InvalidationsTotal counts snapshot cache invalidations.
	InvalidationsTotal prometheus.Counter

	// TreeBuildDurationSeconds measures full tree builds.
	TreeBuildDurationSeconds prometheus.Histogram

	// TaxonomyEdgesTotal counts edges written into taxonomy records by kind.
	TaxonomyEdgesTotal *prometheus.CounterVec

	// TaxonomyFailuresTotal counts taxonomy updates aborted for one semantic.
	TaxonomyFailuresTotal prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CommitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "total",
			Help:      "Successful commits",
		}),
		CommitDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "duration_seconds",
			Help:      "Commit latency including write permit drain",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		CommitUnits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "units_total",
			Help:      "Units promoted by commits",
		}, []string{"kind"}),
		CancelsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "cancels_total",
			Help:      "Cancel operations",
		}),
		Uncommitted: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "uncommitted",
			Help:      "Units waiting in each uncommitted set",
		}, []string{"set"}),
		CheckFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commit",
			Name:      "check_failures_total",
			Help:      "Failed checks by phase",
		}, []string{"phase"}),
		SnapshotRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "requests_total",
			Help:      "Snapshot requests by mode and cache outcome",
		}, []string{"mode", "outcome"}),
		InvalidationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "invalidations_total",
			Help:      "Snapshot cache invalidations",
		}),
		TreeBuildDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "tree_build_duration_seconds",
			Help:      "Full taxonomy tree build latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		TaxonomyEdgesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "taxonomy",
			Name:      "edges_total",
			Help:      "Edges written into taxonomy records",
		}, []string{"kind"}),
		TaxonomyFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "taxonomy",
			Name:      "failures_total",
			Help:      "Taxonomy updates aborted for a single semantic",
		}),
	}
}

// NewUnregistered creates collectors on a private registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveCommit records one commit.
func (m *Metrics) ObserveCommit(d time.Duration, concepts, semantics int) {
	if m == nil {
		return
	}
	m.CommitsTotal.Inc()
	m.CommitDurationSeconds.Observe(d.Seconds())
	m.CommitUnits.WithLabelValues("concept").Add(float64(concepts))
	m.CommitUnits.WithLabelValues("semantic").Add(float64(semantics))
}

// ObserveCancel records one cancel.
func (m *Metrics) ObserveCancel() {
	if m == nil {
		return
	}
	m.CancelsTotal.Inc()
}

// SetUncommitted publishes the size of an uncommitted set.
func (m *Metrics) SetUncommitted(set string, n int) {
	if m == nil {
		return
	}
	m.Uncommitted.WithLabelValues(set).Set(float64(n))
}

// CheckFailed records a failed check.
func (m *Metrics) CheckFailed(phase string) {
	if m == nil {
		return
	}
	m.CheckFailuresTotal.WithLabelValues(phase).Inc()
}

// SnapshotRequest records a snapshot cache lookup. outcome is "hit",
// "miss" or "pending".
func (m *Metrics) SnapshotRequest(mode, outcome string) {
	if m == nil {
		return
	}
	m.SnapshotRequestsTotal.WithLabelValues(mode, outcome).Inc()
}

// Invalidated records a snapshot cache invalidation.
func (m *Metrics) Invalidated() {
	if m == nil {
		return
	}
	m.InvalidationsTotal.Inc()
}

// ObserveTreeBuild records one tree build.
func (m *Metrics) ObserveTreeBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.TreeBuildDurationSeconds.Observe(d.Seconds())
}

// EdgesWritten records taxonomy edges. kind is "added", "retired" or
// "status".
func (m *Metrics) EdgesWritten(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.TaxonomyEdgesTotal.WithLabelValues(kind).Add(float64(n))
}

// TaxonomyFailed records an aborted taxonomy update.
func (m *Metrics) TaxonomyFailed() {
	if m == nil {
		return
	}
	m.TaxonomyFailuresTotal.Inc()
}
