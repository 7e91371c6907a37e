package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/termgraph/internal/ir"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadCommitRecord returns the commit record with the given sequence.
// The boolean is false when no such commit exists.
func (s *Store) ReadCommitRecord(ctx context.Context, sequence int64) (ir.CommitRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sequence, id, time, author, comment, stamps, nids
		FROM commit_records
		WHERE sequence = ?
	`, sequence)

	rec, err := scanCommitRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.CommitRecord{}, false, nil
	}
	if err != nil {
		return ir.CommitRecord{}, false, err
	}
	return rec, true, nil
}

// ReadCommitRecords returns every commit with sequence >= from, ordered by
// sequence. Returns an empty slice (not nil) when there are none.
func (s *Store) ReadCommitRecords(ctx context.Context, from int64) ([]ir.CommitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, id, time, author, comment, stamps, nids
		FROM commit_records
		WHERE sequence >= ?
		ORDER BY sequence ASC
	`, from)
	if err != nil {
		return nil, fmt.Errorf("query commit records: %w", err)
	}
	defer rows.Close()

	records := []ir.CommitRecord{}
	for rows.Next() {
		rec, err := scanCommitRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commit records: %w", err)
	}
	return records, nil
}

// LatestCommitSequence returns the highest committed sequence, or 0 when the
// log is empty.
func (s *Store) LatestCommitSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM commit_records`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest commit sequence: %w", err)
	}
	return seq.Int64, nil
}

func scanCommitRecord(row rowScanner) (ir.CommitRecord, error) {
	var (
		rec        ir.CommitRecord
		author     int32
		stampsJSON string
		nidsJSON   string
	)
	if err := row.Scan(&rec.Sequence, &rec.ID, &rec.Time, &author, &rec.Comment, &stampsJSON, &nidsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan commit record: %w", err)
	}
	rec.Author = ir.Nid(author)

	stamps, err := unmarshalStamps(stampsJSON)
	if err != nil {
		return rec, err
	}
	rec.Stamps = stamps

	nids, err := unmarshalNids(nidsJSON)
	if err != nil {
		return rec, err
	}
	rec.Nids = nids
	return rec, nil
}
