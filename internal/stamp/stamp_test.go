package stamp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/store"
)

const (
	author ir.Nid = -10
	module ir.Nid = -20
	path   ir.Nid = -30
)

func active(t int64) ir.Stamp {
	return ir.Stamp{Status: ir.StatusActive, Time: t, Author: author, Module: module, Path: path}
}

func TestIntern_EqualTuplesShareSequence(t *testing.T) {
	s := New()

	a, err := s.Intern(active(5))
	require.NoError(t, err)
	b, err := s.Intern(active(5))
	require.NoError(t, err)
	c, err := s.Intern(active(6))
	require.NoError(t, err)

	assert.Equal(t, ir.StampSeq(1), a, "sequences start at 1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, s.Len())

	_, ok := s.Stamp(ir.NoStamp)
	assert.False(t, ok)
	assert.Equal(t, active(6), s.MustStamp(c))
}

func TestIntern_Concurrent(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	results := make([][]ir.StampSeq, 8)
	for g := range results {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := int64(0); i < 100; i++ {
				seq, err := s.Intern(active(i))
				if err != nil {
					t.Error(err)
					return
				}
				results[g] = append(results[g], seq)
			}
		}(g)
	}
	wg.Wait()

	for g := 1; g < len(results); g++ {
		assert.Equal(t, results[0], results[g])
	}
	assert.Equal(t, 100, s.Len())
}

func TestRetireAndCommit(t *testing.T) {
	s := New()

	pending, err := s.Intern(ir.EditCoordinate{Author: author, Module: module, Path: path}.UncommittedStamp(ir.StatusActive))
	require.NoError(t, err)

	committed, err := s.Commit(pending, 100)
	require.NoError(t, err)
	assert.Equal(t, active(100), s.MustStamp(committed))

	again, err := s.Commit(committed, 200)
	require.NoError(t, err)
	assert.Equal(t, committed, again, "committing a committed stamp is a no-op")

	retired, err := s.Retire(committed)
	require.NoError(t, err)
	assert.Equal(t, active(100).WithStatus(ir.StatusInactive), s.MustStamp(retired))

	_, err = s.Retire(999)
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	objects := store.NewMemoryStore()

	_, found, err := Load(ctx, objects)
	require.NoError(t, err)
	assert.False(t, found)

	s := New()
	for i := int64(1); i <= 5; i++ {
		_, err := s.Intern(active(i))
		require.NoError(t, err)
	}
	require.NoError(t, s.Save(ctx, objects))

	loaded, found, err := Load(ctx, objects)
	require.NoError(t, err)
	require.True(t, found)
	for seq := ir.StampSeq(1); seq <= 5; seq++ {
		assert.Equal(t, s.MustStamp(seq), loaded.MustStamp(seq))
	}

	next, err := loaded.Intern(active(6))
	require.NoError(t, err)
	assert.Equal(t, ir.StampSeq(6), next)
}
