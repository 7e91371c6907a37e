package taxonomy

import (
	"slices"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/stamp"
)

// Selector picks which pairs of a block a query considers. Want bits must all
// be set and Exclude bits must all be clear.
type Selector struct {
	Want    Flags
	Exclude Flags
}

func (s Selector) matches(f Flags) bool {
	return f.Has(s.Want) && f&s.Exclude == 0
}

// Parents selects outbound edges of a premise.
func Parents(p ir.PremiseType) Selector {
	return Selector{Want: PremiseFlag(p), Exclude: FlagInbound}
}

// Children selects the inbound IS_A copies of a premise.
func Children(p ir.PremiseType) Selector {
	return Selector{Want: PremiseFlag(p) | FlagInbound}
}

// statusSelector selects concept-status markers.
var statusSelector = Selector{Want: FlagConceptStatus}

// stampsOf collects the stamps of the matching pairs of b.
func stampsOf(b block, sel Selector) []ir.StampSeq {
	var out []ir.StampSeq
	for i := 0; i < b.count(); i++ {
		s, f := b.pair(i)
		if sel.matches(f) {
			out = append(out, s)
		}
	}
	return out
}

// DestinationNidsOfType returns, in ascending order, the destinations of
// blocks whose type is in types and whose coordinate-selected stamp has an
// allowed status.
func (r Record) DestinationNidsOfType(types []ir.Nid, sel Selector, lookup stamp.Lookup, coord ir.Coordinate) []ir.Nid {
	var out []ir.Nid
	r.eachBlock(func(b block) bool {
		if !slices.Contains(types, b.typ) {
			return true
		}
		seqs := stampsOf(b, sel)
		if len(seqs) == 0 {
			return true
		}
		if _, ok := stamp.Applicable(lookup, coord, seqs); ok {
			out = append(out, b.dest)
		}
		return true
	})
	return out
}

// ContainsNidViaType reports whether dest is reached through any of types
// under coord.
func (r Record) ContainsNidViaType(dest ir.Nid, types []ir.Nid, sel Selector, lookup stamp.Lookup, coord ir.Coordinate) bool {
	found := false
	r.eachBlock(func(b block) bool {
		if b.dest < dest {
			return true
		}
		if b.dest > dest {
			return false
		}
		if !slices.Contains(types, b.typ) {
			return true
		}
		if seqs := stampsOf(b, sel); len(seqs) > 0 {
			if _, ok := stamp.Applicable(lookup, coord, seqs); ok {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// conceptStamps returns the stamps of the concept-status self edge.
func (r Record) conceptStamps(self, statusType ir.Nid) []ir.StampSeq {
	var out []ir.StampSeq
	r.eachBlock(func(b block) bool {
		if b.dest == self && b.typ == statusType {
			out = stampsOf(b, statusSelector)
			return false
		}
		return b.dest <= self
	})
	return out
}

// IsConceptActive reports whether the concept's own stamp selected by coord
// is ACTIVE. Allowed statuses are ignored.
func (r Record) IsConceptActive(self, statusType ir.Nid, lookup stamp.Lookup, coord ir.Coordinate) bool {
	return stamp.IsActive(lookup, coord, r.conceptStamps(self, statusType))
}

// ConceptStates returns the statuses of every concept stamp tied for latest
// under coord. More than one status means the coordinate sees a
// contradiction.
func (r Record) ConceptStates(self, statusType ir.Nid, lookup stamp.Lookup, coord ir.Coordinate) []ir.Status {
	var out []ir.Status
	for _, seq := range stamp.LatestSet(lookup, coord, r.conceptStamps(self, statusType)) {
		st, ok := lookup.Stamp(seq)
		if ok && !slices.Contains(out, st.Status) {
			out = append(out, st.Status)
		}
	}
	slices.Sort(out)
	return out
}
