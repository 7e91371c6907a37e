package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() CommitRecord {
	return CommitRecord{
		Sequence: 3,
		Time:     1_700_000_000_000,
		Author:   Nid(-2147483640),
		Comment:  "add asthma",
		Stamps:   []StampSeq{4, 5},
		Nids:     []Nid{-2147483600, -2147483599},
	}
}

func TestCommitIDDeterminism(t *testing.T) {
	id1, err := CommitID(testRecord())
	require.NoError(t, err)

	id2, err := CommitID(testRecord())
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "CommitID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestCommitIDIgnoresIDField(t *testing.T) {
	r := testRecord()
	id := MustCommitID(r)

	r.ID = "something else"
	assert.Equal(t, id, MustCommitID(r))
}

func TestCommitIDChangesWithInput(t *testing.T) {
	base := MustCommitID(testRecord())

	seq := testRecord()
	seq.Sequence++
	comment := testRecord()
	comment.Comment = "other"
	stamps := testRecord()
	stamps.Stamps = []StampSeq{4}
	nids := testRecord()
	nids.Nids = nil

	assert.NotEqual(t, base, MustCommitID(seq), "different sequence")
	assert.NotEqual(t, base, MustCommitID(comment), "different comment")
	assert.NotEqual(t, base, MustCommitID(stamps), "different stamps")
	assert.NotEqual(t, base, MustCommitID(nids), "different nids")
}

func TestCommitIDNormalizesComment(t *testing.T) {
	a := testRecord()
	a.Comment = "cafe\u0301"
	b := testRecord()
	b.Comment = "caf\u00e9"

	assert.Equal(t, MustCommitID(a), MustCommitID(b))
}
