package store

import (
	"context"
	"fmt"

	"github.com/roach88/termgraph/internal/ir"
)

// WriteCommitRecord appends a commit record to the commit log.
// Uses ON CONFLICT(sequence) DO NOTHING for idempotency - rewriting the same
// record after a crash-and-replay is silently ignored. A different record
// reusing an ID still fails on the UNIQUE(id) constraint.
func (s *Store) WriteCommitRecord(ctx context.Context, rec ir.CommitRecord) error {
	stampsJSON, err := marshalStamps(rec.Stamps)
	if err != nil {
		return fmt.Errorf("write commit record: %w", err)
	}

	nidsJSON, err := marshalNids(rec.Nids)
	if err != nil {
		return fmt.Errorf("write commit record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO commit_records
		(sequence, id, time, author, comment, stamps, nids)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sequence) DO NOTHING
	`,
		rec.Sequence,
		rec.ID,
		rec.Time,
		int32(rec.Author),
		rec.Comment,
		stampsJSON,
		nidsJSON,
	)
	if err != nil {
		return fmt.Errorf("write commit record: %w", err)
	}

	return nil
}
