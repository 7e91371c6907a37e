package commit

import (
	"fmt"
	"sync"

	"github.com/weaviate/sroar"

	"github.com/roach88/termgraph/internal/identifier"
	"github.com/roach88/termgraph/internal/ir"
)

// Set names one of the four uncommitted sets.
type Set uint8

const (
	SetConceptsChecked Set = iota
	SetConceptsUnchecked
	SetSemanticsChecked
	SetSemanticsUnchecked

	setCount
)

func (s Set) String() string {
	switch s {
	case SetConceptsChecked:
		return "concepts-checked"
	case SetConceptsUnchecked:
		return "concepts-unchecked"
	case SetSemanticsChecked:
		return "semantics-checked"
	case SetSemanticsUnchecked:
		return "semantics-unchecked"
	default:
		return fmt.Sprintf("Set(%d)", uint8(s))
	}
}

// Checked reports whether units in the set run change checkers.
func (s Set) Checked() bool {
	return s == SetConceptsChecked || s == SetSemanticsChecked
}

func setFor(kind ir.ChronologyKind, checked bool) Set {
	switch {
	case kind == ir.KindConceptChronology && checked:
		return SetConceptsChecked
	case kind == ir.KindConceptChronology:
		return SetConceptsUnchecked
	case checked:
		return SetSemanticsChecked
	default:
		return SetSemanticsUnchecked
	}
}

// uncommittedSets tracks which components hold uncommitted versions. Members
// are stored by identifier.Index.
// inflight counts writes registered but not finished per component; a
// component with writes in flight is never dropped from the sets.
type uncommittedSets struct {
	mu       sync.Mutex
	sets     [setCount]*sroar.Bitmap
	inflight map[ir.Nid]int
}

func newUncommittedSets() *uncommittedSets {
	u := &uncommittedSets{inflight: make(map[ir.Nid]int)}
	for i := range u.sets {
		u.sets[i] = sroar.NewBitmap()
	}
	return u
}

// begin adds nid to set and records a write in flight.
func (u *uncommittedSets) begin(set Set, nid ir.Nid) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sets[set].Set(uint64(identifier.Index(nid)))
	u.inflight[nid]++
}

// done records the end of a write started with begin.
func (u *uncommittedSets) done(nid ir.Nid) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inflight[nid] <= 1 {
		delete(u.inflight, nid)
		return
	}
	u.inflight[nid]--
}

// removeIdle drops nid from every set unless a write for it is in flight.
func (u *uncommittedSets) removeIdle(nid ir.Nid) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inflight[nid] > 0 {
		return false
	}
	for _, s := range u.sets {
		s.Remove(uint64(identifier.Index(nid)))
	}
	return true
}

func (u *uncommittedSets) contains(set Set, nid ir.Nid) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sets[set].Contains(uint64(identifier.Index(nid)))
}

func (u *uncommittedSets) members(set Set) []ir.Nid {
	u.mu.Lock()
	keys := u.sets[set].ToArray()
	u.mu.Unlock()

	out := make([]ir.Nid, len(keys))
	for i, k := range keys {
		out[i] = identifier.NidAt(int(k))
	}
	return out
}

func (u *uncommittedSets) len(set Set) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sets[set].GetCardinality()
}

func (u *uncommittedSets) encode(set Set) []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sets[set].Clone().ToBuffer()
}

func (u *uncommittedSets) decode(set Set, data []byte) {
	bm := sroar.NewBitmap()
	if len(data) > 0 {
		bm = sroar.FromBuffer(data)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sets[set] = bm
}
