package store

import (
	"context"
	"fmt"

	"github.com/roach88/termgraph/internal/ir"
)

// ReplayCommits calls fn for every commit with sequence >= from, in sequence
// order, and returns the last sequence delivered. Replay stops at the first
// error fn returns.
//
// Each record's ID is recomputed and checked so a tampered log is reported
// instead of replayed.
func (s *Store) ReplayCommits(ctx context.Context, from int64, fn func(ir.CommitRecord) error) (int64, error) {
	records, err := s.ReadCommitRecords(ctx, from)
	if err != nil {
		return 0, fmt.Errorf("replay commits: %w", err)
	}

	var last int64
	for _, rec := range records {
		id, err := ir.CommitID(rec)
		if err != nil {
			return last, fmt.Errorf("replay commit %d: %w", rec.Sequence, err)
		}
		if id != rec.ID {
			return last, fmt.Errorf("replay commit %d: id %s does not match content hash %s", rec.Sequence, rec.ID, id)
		}
		if err := fn(rec); err != nil {
			return last, fmt.Errorf("replay commit %d: %w", rec.Sequence, err)
		}
		last = rec.Sequence
	}
	return last, nil
}
