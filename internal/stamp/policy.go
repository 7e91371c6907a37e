package stamp

import (
	"slices"

	"github.com/roach88/termgraph/internal/ir"
)

// Visible reports whether c can see st.
//
// A stamp is visible when its module is allowed and either it lies on the
// coordinate's path at or before the position time, or it lies on an origin
// path at or before that origin's time. Canceled stamps are never visible.
func Visible(c ir.Coordinate, st ir.Stamp) bool {
	_, ok := rank(c, st)
	return ok
}

// rank orders visible stamps. Higher ranks win.
type rankKey struct {
	own  bool // on the coordinate's own path; only compared under PATH precedence
	time int64
}

func rank(c ir.Coordinate, st ir.Stamp) (rankKey, bool) {
	if st.IsCanceled() || !c.AllowsModule(st.Module) {
		return rankKey{}, false
	}
	if st.Path == c.Position.Path && st.Time <= c.Position.Time {
		return rankKey{own: true, time: st.Time}, true
	}
	for _, o := range c.Origins {
		if st.Path == o.Path && st.Time <= o.Time {
			return rankKey{own: false, time: st.Time}, true
		}
	}
	return rankKey{}, false
}

func compareRank(c ir.Coordinate, a, b rankKey) int {
	if c.Precedence == ir.PrecedencePath && a.own != b.own {
		if a.own {
			return 1
		}
		return -1
	}
	switch {
	case a.time > b.time:
		return 1
	case a.time < b.time:
		return -1
	}
	return 0
}

// LatestSet returns every visible stamp that ties for the highest rank. More
// than one entry means the coordinate sees contradictory versions.
func LatestSet(lookup Lookup, c ir.Coordinate, seqs []ir.StampSeq) []ir.StampSeq {
	var best rankKey
	var out []ir.StampSeq
	for _, seq := range seqs {
		st, ok := lookup.Stamp(seq)
		if !ok {
			continue
		}
		r, ok := rank(c, st)
		if !ok {
			continue
		}
		switch cmp := compareRank(c, r, best); {
		case len(out) == 0 || cmp > 0:
			best = r
			out = append(out[:0], seq)
		case cmp == 0:
			if !slices.Contains(out, seq) {
				out = append(out, seq)
			}
		}
	}
	return out
}

// Select returns the single stamp c selects among seqs, before status
// filtering. Exact rank ties go to the highest stamp sequence.
func Select(lookup Lookup, c ir.Coordinate, seqs []ir.StampSeq) (ir.StampSeq, bool) {
	latest := LatestSet(lookup, c, seqs)
	if len(latest) == 0 {
		return ir.NoStamp, false
	}
	best := latest[0]
	for _, seq := range latest[1:] {
		if seq > best {
			best = seq
		}
	}
	return best, true
}

// Applicable returns the selected stamp when its status is allowed by c.
func Applicable(lookup Lookup, c ir.Coordinate, seqs []ir.StampSeq) (ir.Stamp, bool) {
	seq, ok := Select(lookup, c, seqs)
	if !ok {
		return ir.Stamp{}, false
	}
	st, _ := lookup.Stamp(seq)
	if !c.AllowsStatus(st.Status) {
		return ir.Stamp{}, false
	}
	return st, true
}

// IsActive reports whether the stamp c selects among seqs is ACTIVE,
// regardless of the coordinate's allowed statuses.
func IsActive(lookup Lookup, c ir.Coordinate, seqs []ir.StampSeq) bool {
	seq, ok := Select(lookup, c, seqs)
	if !ok {
		return false
	}
	st, _ := lookup.Stamp(seq)
	return st.Status.IsActive()
}
