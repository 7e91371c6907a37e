package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCommit(time.Millisecond, 1, 2)
		m.ObserveCancel()
		m.SetUncommitted("concepts", 3)
		m.CheckFailed("commit")
		m.SnapshotRequest("tree", "hit")
		m.Invalidated()
		m.ObserveTreeBuild(time.Millisecond)
		m.EdgesWritten("added", 4)
		m.TaxonomyFailed()
	})
}

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommit(5*time.Millisecond, 2, 3)
	m.ObserveCommit(time.Millisecond, 0, 1)
	m.SnapshotRequest("tree", "miss")
	m.SnapshotRequest("tree", "hit")
	m.SnapshotRequest("tree", "hit")
	m.EdgesWritten("retired", 0)
	m.EdgesWritten("added", 7)
	m.SetUncommitted("semantics", 4)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.CommitsTotal))
	assert.Equal(t, 4.0, promtest.ToFloat64(m.CommitUnits.WithLabelValues("semantic")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.SnapshotRequestsTotal.WithLabelValues("tree", "hit")))
	assert.Equal(t, 7.0, promtest.ToFloat64(m.TaxonomyEdgesTotal.WithLabelValues("added")))
	assert.Equal(t, 4.0, promtest.ToFloat64(m.Uncommitted.WithLabelValues("semantics")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "termgraph_commit_total")
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
