package taxonomy

import (
	"context"
	"fmt"
	"iter"

	"github.com/roach88/termgraph/internal/identifier"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/spinemap"
)

// Records holds one taxonomy record per concept. Accumulate is the only way
// to change a record, so every stored record is the union of everything
// ever written to it.
type Records struct {
	m *spinemap.Map[Record]
}

// NewRecords creates an empty record table.
func NewRecords(opts ...spinemap.Option) *Records {
	return &Records{m: spinemap.New[Record](opts...)}
}

// Get returns the record for concept.
func (r *Records) Get(concept ir.Nid) (Record, bool) {
	return r.m.Get(identifier.Index(concept))
}

// Accumulate merges rec into the concept's record and returns the result.
// rec is validated first; a record already in the table is never replaced
// by a corrupt one.
func (r *Records) Accumulate(concept ir.Nid, rec Record) (Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("accumulate into %d: %w", concept, err)
	}
	var mergeErr error
	next, err := r.m.Accumulate(identifier.Index(concept), rec, func(prev, x Record) Record {
		merged, err := Merge(prev, x)
		if err != nil {
			mergeErr = err
			return prev
		}
		mergeErr = nil
		return merged
	})
	if err != nil {
		return nil, fmt.Errorf("accumulate into %d: %w", concept, err)
	}
	if mergeErr != nil {
		return nil, fmt.Errorf("accumulate into %d: %w", concept, mergeErr)
	}
	return next, nil
}

// Reserve makes every nid with an index below n addressable.
func (r *Records) Reserve(n int) {
	r.m.Grow(n)
}

// Len returns the number of concepts with a record.
func (r *Records) Len() int {
	return r.m.Len()
}

// All iterates records in nid order.
func (r *Records) All() iter.Seq2[ir.Nid, Record] {
	return func(yield func(ir.Nid, Record) bool) {
		for key, rec := range r.m.All() {
			if !yield(identifier.NidAt(key), rec) {
				return
			}
		}
	}
}

// Range calls fn for every record in parallel. See spinemap.Map.ParallelRange.
func (r *Records) Range(ctx context.Context, fn func(ctx context.Context, concept ir.Nid, rec Record) error) error {
	return r.m.ParallelRange(ctx, func(ctx context.Context, key int, rec Record) error {
		return fn(ctx, identifier.NidAt(key), rec)
	})
}
