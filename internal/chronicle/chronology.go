// Package chronicle stores versioned components: concept chronologies and
// the semantic chronologies that attach logic graphs to concepts.
//
// A Chronology value is immutable once stored. Every change builds a new
// value and swaps it into the backing spinemap, so readers never observe a
// half-applied edit.
package chronicle

import (
	"slices"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/stamp"
)

// Version is one stamped state of a component. Graph is empty for concept
// versions.
type Version struct {
	Stamp ir.StampSeq   `msgpack:"s"`
	Graph ir.LogicGraph `msgpack:"g,omitempty"`
	// Submitted orders the uncommitted versions of a component by when they
	// were registered. Committed versions keep the value they were
	// registered with.
	Submitted uint64 `msgpack:"o,omitempty"`
}

// Chronology is the full version history of one component.
type Chronology struct {
	Nid  ir.Nid            `msgpack:"n"`
	Kind ir.ChronologyKind `msgpack:"k"`
	// Assemblage is the partition the component belongs to.
	Assemblage ir.Nid `msgpack:"a"`
	// Referenced is the concept a semantic is about. NoNid for concepts.
	Referenced ir.Nid    `msgpack:"r,omitempty"`
	Versions   []Version `msgpack:"v"`
}

// Stamps returns the stamp of every version, in version order.
func (c Chronology) Stamps() []ir.StampSeq {
	out := make([]ir.StampSeq, len(c.Versions))
	for i, v := range c.Versions {
		out[i] = v.Stamp
	}
	return out
}

// Version returns the version carrying seq.
func (c Chronology) Version(seq ir.StampSeq) (Version, bool) {
	for _, v := range c.Versions {
		if v.Stamp == seq {
			return v, true
		}
	}
	return Version{}, false
}

// withVersion returns a copy with v added, replacing any version that already
// carries the same stamp unless that version was submitted after v.
func (c Chronology) withVersion(v Version) Chronology {
	out := c
	out.Versions = slices.Clone(c.Versions)
	for i := range out.Versions {
		if out.Versions[i].Stamp == v.Stamp {
			// A write registered earlier may land after a later one.
			if out.Versions[i].Submitted > v.Submitted {
				return c
			}
			out.Versions[i] = v
			return out
		}
	}
	out.Versions = append(out.Versions, v)
	return out
}

// Latest returns the version c selects, ignoring allowed statuses.
func (c Chronology) Latest(lookup stamp.Lookup, coord ir.Coordinate) (Version, bool) {
	seq, ok := stamp.Select(lookup, coord, c.Stamps())
	if !ok {
		return Version{}, false
	}
	return c.Version(seq)
}

// Predecessor returns the version v superseded: the latest version on the
// same path with an earlier time. When the path has none, versions from
// any path are considered.
func (c Chronology) Predecessor(lookup stamp.Lookup, v Version) (Version, bool) {
	current, ok := lookup.Stamp(v.Stamp)
	if !ok {
		return Version{}, false
	}

	pick := func(samePath bool) (Version, bool) {
		var best Version
		var bestStamp ir.Stamp
		found := false
		for _, candidate := range c.Versions {
			if candidate.Stamp == v.Stamp {
				continue
			}
			st, ok := lookup.Stamp(candidate.Stamp)
			if !ok || st.IsCanceled() || st.Time >= current.Time {
				continue
			}
			if samePath && st.Path != current.Path {
				continue
			}
			if !found || st.Time > bestStamp.Time || (st.Time == bestStamp.Time && candidate.Stamp > best.Stamp) {
				best, bestStamp, found = candidate, st, true
			}
		}
		return best, found
	}

	if prev, ok := pick(true); ok {
		return prev, true
	}
	return pick(false)
}
