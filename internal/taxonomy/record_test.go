package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termgraph/internal/ir"
)

func mustMerge(t *testing.T, a, b Record) Record {
	t.Helper()
	out, err := Merge(a, b)
	require.NoError(t, err)
	return out
}

func TestPack_CanonicalOrder(t *testing.T) {
	a := Pack([]Edge{
		{Dest: 5, Type: 1, Stamp: 3, Flags: FlagStated},
		{Dest: 2, Type: 1, Stamp: 7, Flags: FlagStated},
		{Dest: 5, Type: 1, Stamp: 1, Flags: FlagStated},
		{Dest: 5, Type: 1, Stamp: 3, Flags: FlagStated},
	})
	assert.Equal(t, Record{2, 1, 1, 7, 1, 5, 1, 2, 1, 1, 3, 1}, a)
	require.NoError(t, a.Validate())
	assert.Equal(t, 3, a.Len())
}

func TestPack_Empty(t *testing.T) {
	r := Pack(nil)
	assert.Empty(t, r)
	require.NoError(t, r.Validate())
	edges, err := r.Unpack()
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMerge_CommutativeAndIdempotent(t *testing.T) {
	a := Pack([]Edge{
		{Dest: 10, Type: 1, Stamp: 1, Flags: FlagStated},
		{Dest: 11, Type: 2, Stamp: 1, Flags: FlagInferred},
	})
	b := Pack([]Edge{
		{Dest: 10, Type: 1, Stamp: 2, Flags: FlagStated},
		{Dest: 10, Type: 1, Stamp: 1, Flags: FlagInferred},
		{Dest: 3, Type: 1, Stamp: 4, Flags: FlagStated | FlagInbound},
	})
	c := Pack([]Edge{{Dest: 11, Type: 2, Stamp: 9, Flags: FlagInferred}})

	assert.Equal(t, mustMerge(t, a, b), mustMerge(t, b, a), "commutative")
	assert.Equal(t, a, mustMerge(t, a, a), "idempotent")
	assert.Equal(t,
		mustMerge(t, mustMerge(t, a, b), c),
		mustMerge(t, a, mustMerge(t, b, c)),
		"associative")

	merged := mustMerge(t, a, b)
	require.NoError(t, merged.Validate())
	assert.Equal(t, 5, merged.Len(), "stated and inferred under one stamp stay distinct")
}

func TestAddStampRecord(t *testing.T) {
	r, err := AddStampRecord(nil, 4, 1, 2, FlagStated)
	require.NoError(t, err)
	r, err = AddStampRecord(r, 4, 1, 3, FlagStated)
	require.NoError(t, err)
	again, err := AddStampRecord(r, 4, 1, 3, FlagStated)
	require.NoError(t, err)

	assert.Equal(t, r, again)
	edges, err := r.Unpack()
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{Dest: 4, Type: 1, Stamp: 2, Flags: FlagStated},
		{Dest: 4, Type: 1, Stamp: 3, Flags: FlagStated},
	}, edges)
}

func TestCorruptRecords(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"truncated header", Record{1, 2}},
		{"zero count", Record{1, 2, 0}},
		{"overrun", Record{1, 2, 3, 5, 1}},
		{"unordered blocks", Record{5, 1, 1, 1, 1, 2, 1, 1, 1, 1}},
		{"duplicate pair", Record{5, 1, 2, 1, 1, 1, 1}},
	}
	good := Pack([]Edge{{Dest: 1, Type: 1, Stamp: 1, Flags: FlagStated}})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			require.Error(t, err)
			assert.True(t, IsCorruptRecordError(err))

			_, err = Merge(good, tt.rec)
			assert.True(t, IsCorruptRecordError(err))
		})
	}
}

func TestRecords_AccumulateRejectsCorrupt(t *testing.T) {
	records := NewRecords()
	concept := ir.Nid(-2147483646)

	_, err := records.Accumulate(concept, Pack([]Edge{{Dest: 1, Type: 1, Stamp: 1, Flags: FlagStated}}))
	require.NoError(t, err)

	_, err = records.Accumulate(concept, Record{1, 1})
	require.Error(t, err)
	assert.True(t, IsCorruptRecordError(err))

	rec, ok := records.Get(concept)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Len(), "stored record untouched")
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "STATED|INBOUND", (FlagStated | FlagInbound).String())
	assert.Equal(t, "NONE", Flags(0).String())
}
