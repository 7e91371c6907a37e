package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termgraph/internal/ir"
)

func TestWriteCommitRecord_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestCommit(1, -7, "first", -3, -2)
	require.NoError(t, s.WriteCommitRecord(ctx, rec))

	got, ok, err := s.ReadCommitRecord(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	_, ok, err = s.ReadCommitRecord(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteCommitRecord_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestCommit(1, -7, "first", -3)
	require.NoError(t, s.WriteCommitRecord(ctx, rec))
	require.NoError(t, s.WriteCommitRecord(ctx, rec))

	records, err := s.ReadCommitRecords(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReadCommitRecords_OrderedFrom(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, seq := range []int64{3, 1, 2} {
		require.NoError(t, s.WriteCommitRecord(ctx, createTestCommit(seq, -7, "c", -1)))
	}

	records, err := s.ReadCommitRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].Sequence)
	assert.Equal(t, int64(3), records[1].Sequence)

	latest, err := s.LatestCommitSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)
}

func TestReadCommitRecords_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	records, err := s.ReadCommitRecords(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	latest, err := s.LatestCommitSequence(context.Background())
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestReplayCommits(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, s.WriteCommitRecord(ctx, createTestCommit(seq, -7, "c", -1)))
	}

	var seen []int64
	last, err := s.ReplayCommits(ctx, 2, func(rec ir.CommitRecord) error {
		seen = append(seen, rec.Sequence)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, seen)
	assert.Equal(t, int64(3), last)

	stop := errors.New("stop")
	last, err = s.ReplayCommits(ctx, 1, func(rec ir.CommitRecord) error {
		if rec.Sequence == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, int64(1), last)
}

func TestReplayCommits_DetectsTampering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := createTestCommit(1, -7, "original", -1)
	require.NoError(t, s.WriteCommitRecord(ctx, rec))
	_, err := s.DB().ExecContext(ctx, `UPDATE commit_records SET comment = 'edited' WHERE sequence = 1`)
	require.NoError(t, err)

	_, err = s.ReplayCommits(ctx, 0, func(ir.CommitRecord) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match content hash")
}
