package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/termgraph/internal/ir"
)

// createTestStore creates a new SQLite store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCommit creates a commit record with its content-addressed ID set.
func createTestCommit(seq int64, author ir.Nid, comment string, nids ...ir.Nid) ir.CommitRecord {
	rec := ir.CommitRecord{
		Sequence: seq,
		Time:     1000 + seq,
		Author:   author,
		Comment:  comment,
		Stamps:   []ir.StampSeq{ir.StampSeq(seq)},
		Nids:     nids,
	}
	if rec.Nids == nil {
		rec.Nids = []ir.Nid{}
	}
	rec.ID = ir.MustCommitID(rec)
	return rec
}
