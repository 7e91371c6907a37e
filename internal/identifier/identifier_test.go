package identifier

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/store"
)

func TestIndexRoundTrip(t *testing.T) {
	assert.Equal(t, 0, Index(FirstNid))
	assert.Equal(t, FirstNid, NidAt(0))
	assert.Equal(t, ir.Nid(-1), NidAt(Index(-1)))
}

func TestNidFor_AssignsOnce(t *testing.T) {
	s := New()
	id := uuid.New()

	a, err := s.NidFor(id)
	require.NoError(t, err)
	b, err := s.NidFor(id)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Less(t, a, ir.Nid(0), "nids are negative")

	got, ok := s.UUIDFor(a)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = s.UUIDFor(a + 1)
	assert.False(t, ok)
}

func TestNidFor_ConcurrentAssignmentIsDense(t *testing.T) {
	s := New()
	before := s.Len()

	ids := make([]uuid.UUID, 500)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	nids := make([]ir.Nid, len(ids))
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nid, err := s.NidFor(ids[i])
			if err != nil {
				t.Error(err)
				return
			}
			nids[i] = nid
		}(i)
	}
	wg.Wait()

	seen := make(map[ir.Nid]bool)
	for _, n := range nids {
		assert.False(t, seen[n], "nid %d assigned twice", n)
		seen[n] = true
	}
	assert.Equal(t, before+len(ids), s.Len())
}

func TestRegister_ElementSequences(t *testing.T) {
	s := New()
	assemblage := s.Terms().StatedAssemblage

	a, _ := s.NidFor(uuid.New())
	b, _ := s.NidFor(uuid.New())

	seqA, err := s.Register(a, assemblage)
	require.NoError(t, err)
	seqB, err := s.Register(b, assemblage)
	require.NoError(t, err)
	assert.Equal(t, int32(0), seqA)
	assert.Equal(t, int32(1), seqB)

	again, err := s.Register(a, assemblage)
	require.NoError(t, err)
	assert.Equal(t, seqA, again)

	_, err = s.Register(a, s.Terms().InferredAssemblage)
	assert.Error(t, err, "a nid cannot move assemblages")

	_, err = s.Register(-5, assemblage)
	assert.Error(t, err, "unassigned nid")

	got, ok := s.AssemblageOf(b)
	assert.True(t, ok)
	assert.Equal(t, assemblage, got)
	assert.Equal(t, 2, s.AssemblageSize(assemblage))
}

func TestTermsAreDeterministic(t *testing.T) {
	a := New().Terms()
	b := New().Terms()
	assert.Equal(t, a, b)

	assert.NotEqual(t, a.IsA, a.RoleGroup)
	assert.NotEqual(t, ir.NoNid, a.Root)
	assert.Equal(t, TermUUID(TermIsA), TermUUID("is-a"))
}

func TestTermsHaveNames(t *testing.T) {
	s := New()
	assert.Equal(t, "is-a", s.Name(s.Terms().IsA))
	assert.Equal(t, "42", s.Name(42))

	nid, ok := s.NidByName("root")
	require.True(t, ok)
	assert.Equal(t, s.Terms().Root, nid)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	objects := store.NewMemoryStore()

	_, found, err := Load(ctx, objects)
	require.NoError(t, err)
	assert.False(t, found, "nothing saved yet")

	s := New()
	id := uuid.New()
	nid, err := s.NidFor(id)
	require.NoError(t, err)
	_, err = s.Register(nid, s.Terms().ConceptAssemblage)
	require.NoError(t, err)
	require.NoError(t, s.SetName(nid, "heart"))
	require.NoError(t, s.Save(ctx, objects))

	loaded, found, err := Load(ctx, objects)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, s.Terms(), loaded.Terms())
	got, ok := loaded.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, nid, got)
	assert.Equal(t, "heart", loaded.Name(nid))

	seq, ok := loaded.ElementSequence(nid)
	require.True(t, ok)
	wantSeq, _ := s.ElementSequence(nid)
	assert.Equal(t, wantSeq, seq)

	next, err := loaded.NidFor(uuid.New())
	require.NoError(t, err)
	assert.Equal(t, nid+1, next, "assignment continues after the saved high-water mark")
}
