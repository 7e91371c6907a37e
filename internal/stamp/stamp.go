// Package stamp interns provenance stamps and decides which stamp a
// coordinate selects among competing versions of the same fact.
package stamp

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/spinemap"
	"github.com/roach88/termgraph/internal/store"
)

// ObjectKey is where the stamp table is persisted.
const ObjectKey = "stamp/table"

// Lookup resolves a stamp sequence to its tuple.
type Lookup interface {
	Stamp(seq ir.StampSeq) (ir.Stamp, bool)
}

// Service interns stamp tuples. Equal tuples always share a sequence and a
// sequence never changes meaning once assigned.
type Service struct {
	mu      sync.Mutex
	byStamp map[ir.Stamp]ir.StampSeq
	next    ir.StampSeq

	stamps *spinemap.Map[ir.Stamp]
}

// New creates an empty stamp table.
func New() *Service {
	return &Service{
		byStamp: make(map[ir.Stamp]ir.StampSeq),
		next:    1,
		stamps:  spinemap.New[ir.Stamp](),
	}
}

// Intern returns the sequence for st, assigning the next one if st is new.
func (s *Service) Intern(st ir.Stamp) (ir.StampSeq, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.byStamp[st]; ok {
		return seq, nil
	}
	if s.next == math.MaxInt32 {
		return ir.NoStamp, fmt.Errorf("intern %s: stamp sequence space exhausted", st)
	}
	seq := s.next
	if err := s.stamps.Put(int(seq), st); err != nil {
		return ir.NoStamp, fmt.Errorf("intern %s: %w", st, err)
	}
	s.byStamp[st] = seq
	s.next++
	return seq, nil
}

// Stamp returns the tuple for seq.
func (s *Service) Stamp(seq ir.StampSeq) (ir.Stamp, bool) {
	if seq <= ir.NoStamp {
		return ir.Stamp{}, false
	}
	return s.stamps.Get(int(seq))
}

// MustStamp is like Stamp but panics when seq was never interned.
// Use only in tests or when seq is known to be valid.
func (s *Service) MustStamp(seq ir.StampSeq) ir.Stamp {
	st, ok := s.Stamp(seq)
	if !ok {
		panic(fmt.Sprintf("stamp %d was never interned", seq))
	}
	return st
}

// derive interns a transformation of an existing stamp.
func (s *Service) derive(seq ir.StampSeq, fn func(ir.Stamp) ir.Stamp) (ir.StampSeq, error) {
	st, ok := s.Stamp(seq)
	if !ok {
		return ir.NoStamp, fmt.Errorf("stamp %d was never interned", seq)
	}
	return s.Intern(fn(st))
}

// Retire returns the stamp recording that a fact stopped holding: the same
// time, author, module and path with INACTIVE status.
func (s *Service) Retire(seq ir.StampSeq) (ir.StampSeq, error) {
	return s.derive(seq, func(st ir.Stamp) ir.Stamp { return st.WithStatus(ir.StatusInactive) })
}

// Commit returns the committed form of an uncommitted stamp.
func (s *Service) Commit(seq ir.StampSeq, time int64) (ir.StampSeq, error) {
	return s.derive(seq, func(st ir.Stamp) ir.Stamp {
		if !st.IsUncommitted() {
			return st
		}
		return st.WithTime(time)
	})
}

// Len returns the number of interned stamps.
func (s *Service) Len() int {
	return s.stamps.Len()
}

// Save writes the stamp table, in sequence order, to objects.
func (s *Service) Save(ctx context.Context, objects store.ObjectStore) error {
	var table []ir.Stamp
	for _, st := range s.stamps.All() {
		table = append(table, st)
	}
	data, err := msgpack.Marshal(table)
	if err != nil {
		return fmt.Errorf("save stamp table: %w", err)
	}
	if err := objects.Put(ctx, ObjectKey, data); err != nil {
		return fmt.Errorf("save stamp table: %w", err)
	}
	return nil
}

// Load reads a stamp table saved by Save. It reports false when none exists.
func Load(ctx context.Context, objects store.ObjectStore) (*Service, bool, error) {
	s := New()
	data, ok, err := objects.Get(ctx, ObjectKey)
	if err != nil {
		return nil, false, fmt.Errorf("load stamp table: %w", err)
	}
	if !ok {
		return s, false, nil
	}

	var table []ir.Stamp
	if err := msgpack.Unmarshal(data, &table); err != nil {
		return nil, false, fmt.Errorf("load stamp table: %w", err)
	}
	for i, st := range table {
		seq, err := s.Intern(st)
		if err != nil {
			return nil, false, fmt.Errorf("load stamp table: %w", err)
		}
		if seq != ir.StampSeq(i+1) {
			return nil, false, fmt.Errorf("load stamp table: duplicate stamp %s at sequence %d", st, i+1)
		}
	}
	return s, true, nil
}
