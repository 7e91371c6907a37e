package snapshot

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/termgraph/internal/ir"
)

// maxMemo bounds the positive child-of memo of a Direct snapshot.
const maxMemo = 1 << 14

type childOf struct {
	child, parent ir.Nid
}

// Direct answers every call from the taxonomy records. It remembers
// positive child-of answers, so it must be discarded when the records
// change; the Provider does that on Invalidate.
type Direct struct {
	src    source
	logger *slog.Logger

	memo     sync.Map // childOf -> struct{}
	memoSize atomic.Int32
}

var _ Snapshot = (*Direct)(nil)

func newDirect(src source, logger *slog.Logger) *Direct {
	return &Direct{src: src, logger: logger}
}

// Premise returns the premise type the snapshot reads.
func (d *Direct) Premise() ir.PremiseType { return d.src.premise }

// Coordinate returns the snapshot's coordinate.
func (d *Direct) Coordinate() ir.Coordinate { return d.src.coord }

// Parents returns the concept's direct parents.
func (d *Direct) Parents(concept ir.Nid) []ir.Nid {
	return d.src.parents(concept)
}

// Children returns the concept's direct children.
func (d *Direct) Children(concept ir.Nid) []ir.Nid {
	return d.src.children(concept)
}

// IsChildOf reports whether parent is a direct parent of child.
func (d *Direct) IsChildOf(child, parent ir.Nid) bool {
	key := childOf{child: child, parent: parent}
	if _, ok := d.memo.Load(key); ok {
		return true
	}
	if !d.src.isChildOf(child, parent) {
		return false
	}
	if d.memoSize.Load() < maxMemo {
		if _, loaded := d.memo.LoadOrStore(key, struct{}{}); !loaded {
			d.memoSize.Add(1)
		}
	}
	return true
}

// IsKindOf reports whether ancestor subsumes concept.
func (d *Direct) IsKindOf(concept, ancestor ir.Nid) bool {
	return isKindOf(d, d.logger, concept, ancestor)
}

// Roots scans every record for concepts with children and no parents.
func (d *Direct) Roots() []ir.Nid {
	var roots []ir.Nid
	for concept, rec := range d.src.records.All() {
		if len(d.src.parentsOf(rec)) > 0 {
			continue
		}
		if len(d.src.children(concept)) > 0 {
			roots = append(roots, concept)
		}
	}
	return roots
}
