package taxonomy

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/termgraph/internal/ir"
)

// Flags qualify one stamped edge.
type Flags int32

const (
	FlagStated Flags = 1 << iota
	FlagInferred
	FlagConceptStatus
	// FlagInbound marks the reverse copy of an IS_A edge kept in the parent's
	// record, so children can be enumerated without a scan.
	FlagInbound
)

// PremiseFlag returns the flag for a premise type.
func PremiseFlag(p ir.PremiseType) Flags {
	if p == ir.PremiseInferred {
		return FlagInferred
	}
	return FlagStated
}

// Has reports whether every bit of want is set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

func (f Flags) String() string {
	var parts []string
	for _, b := range []struct {
		flag Flags
		name string
	}{
		{FlagStated, "STATED"},
		{FlagInferred, "INFERRED"},
		{FlagConceptStatus, "CONCEPT_STATUS"},
		{FlagInbound, "INBOUND"},
	} {
		if f&b.flag != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Edge is one stamped, typed edge of a concept.
type Edge struct {
	Dest  ir.Nid
	Type  ir.Nid
	Stamp ir.StampSeq
	Flags Flags
}

func compareEdges(a, b Edge) int {
	if c := cmp.Compare(a.Dest, b.Dest); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Stamp, b.Stamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Flags, b.Flags)
}

// Record is a concept's packed edge set:
//
//	[dest][type][count][(stamp, flags) x count] ...
//
// Blocks are ordered by (dest, type) and pairs within a block by
// (stamp, flags), with no duplicate blocks or pairs. Equal edge sets
// therefore always pack to equal arrays. A Record is immutable; every
// operation returns a new array.
type Record []int32

const (
	blockHeader = 3
	pairWidth   = 2
)

// Pack builds the canonical record for a set of edges. Duplicates collapse.
func Pack(edges []Edge) Record {
	if len(edges) == 0 {
		return Record{}
	}
	sorted := slices.Clone(edges)
	slices.SortFunc(sorted, compareEdges)
	sorted = slices.Compact(sorted)

	out := make(Record, 0, len(sorted)*(pairWidth+1)+blockHeader)
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j].Dest == sorted[i].Dest && sorted[j].Type == sorted[i].Type {
			j++
		}
		out = append(out, int32(sorted[i].Dest), int32(sorted[i].Type), int32(j-i))
		for _, e := range sorted[i:j] {
			out = append(out, int32(e.Stamp), int32(e.Flags))
		}
		i = j
	}
	return out
}

// block is a view of one (dest, type) block.
type block struct {
	dest  ir.Nid
	typ   ir.Nid
	pairs []int32
}

func (b block) count() int {
	return len(b.pairs) / pairWidth
}

func (b block) pair(i int) (ir.StampSeq, Flags) {
	return ir.StampSeq(b.pairs[i*pairWidth]), Flags(b.pairs[i*pairWidth+1])
}

// blocks splits r into blocks, reporting the first structural defect.
func (r Record) blocks() ([]block, error) {
	var out []block
	for off := 0; off < len(r); {
		if off+blockHeader > len(r) {
			return nil, &CorruptRecordError{Offset: off, Reason: "truncated block header"}
		}
		count := int(r[off+2])
		if count <= 0 {
			return nil, &CorruptRecordError{Offset: off, Reason: fmt.Sprintf("block count %d", count)}
		}
		end := off + blockHeader + count*pairWidth
		if end > len(r) || end < off {
			return nil, &CorruptRecordError{Offset: off, Reason: fmt.Sprintf("block of %d pairs overruns record of length %d", count, len(r))}
		}
		out = append(out, block{dest: ir.Nid(r[off]), typ: ir.Nid(r[off+1]), pairs: r[off+blockHeader : end]})
		off = end
	}
	return out, nil
}

// eachBlock visits blocks of a record already known to be well formed. It
// stops quietly at the first defect.
func (r Record) eachBlock(fn func(b block) bool) {
	for off := 0; off+blockHeader <= len(r); {
		count := int(r[off+2])
		end := off + blockHeader + count*pairWidth
		if count <= 0 || end > len(r) {
			return
		}
		if !fn(block{dest: ir.Nid(r[off]), typ: ir.Nid(r[off+1]), pairs: r[off+blockHeader : end]}) {
			return
		}
		off = end
	}
}

// Validate checks that r is well formed and canonical.
func (r Record) Validate() error {
	blocks, err := r.blocks()
	if err != nil {
		return err
	}
	for i, b := range blocks {
		if i > 0 {
			prev := blocks[i-1]
			if c := cmp.Compare(prev.dest, b.dest); c > 0 || (c == 0 && prev.typ >= b.typ) {
				return &CorruptRecordError{Reason: fmt.Sprintf("block %d (%d,%d) out of order", i, b.dest, b.typ)}
			}
		}
		for j := 1; j < b.count(); j++ {
			ps, pf := b.pair(j - 1)
			s, f := b.pair(j)
			if ps > s || (ps == s && pf >= f) {
				return &CorruptRecordError{Reason: fmt.Sprintf("block %d pair %d out of order", i, j)}
			}
		}
	}
	return nil
}

// Unpack expands r into edges in canonical order.
func (r Record) Unpack() ([]Edge, error) {
	blocks, err := r.blocks()
	if err != nil {
		return nil, err
	}
	var edges []Edge
	for _, b := range blocks {
		for i := 0; i < b.count(); i++ {
			s, f := b.pair(i)
			edges = append(edges, Edge{Dest: b.dest, Type: b.typ, Stamp: s, Flags: f})
		}
	}
	return edges, nil
}

// Len returns the number of edges in r.
func (r Record) Len() int {
	n := 0
	r.eachBlock(func(b block) bool {
		n += b.count()
		return true
	})
	return n
}

// Merge returns the union of a and b. Merge is associative, commutative and
// idempotent, so concurrent writers may fold edges into the same record in
// any order.
func Merge(a, b Record) (Record, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if len(a) == 0 {
		return b, nil
	}
	if len(b) == 0 {
		return a, nil
	}
	ea, _ := a.Unpack()
	eb, _ := b.Unpack()
	return Pack(append(ea, eb...)), nil
}

// AddStampRecord returns r with one more edge.
func AddStampRecord(r Record, dest, typ ir.Nid, stamp ir.StampSeq, flags Flags) (Record, error) {
	return Merge(r, Pack([]Edge{{Dest: dest, Type: typ, Stamp: stamp, Flags: flags}}))
}

// String renders r for debugging.
func (r Record) String() string {
	var b strings.Builder
	r.eachBlock(func(bl block) bool {
		fmt.Fprintf(&b, "[%d %d:", bl.dest, bl.typ)
		for i := 0; i < bl.count(); i++ {
			s, f := bl.pair(i)
			fmt.Fprintf(&b, " %d/%s", s, f)
		}
		b.WriteString("]")
		return true
	})
	return b.String()
}
