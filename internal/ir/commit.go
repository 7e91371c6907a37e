package ir

// CommitRecord is the immutable result of a successful commit.
type CommitRecord struct {
	ID       string     `json:"id"`       // Content-addressed hash
	Sequence int64      `json:"sequence"` // Monotonic commit sequence
	Time     int64      `json:"time"`     // Commit time stamped onto every included version
	Author   Nid        `json:"author"`
	Comment  string     `json:"comment"`
	Stamps   []StampSeq `json:"stamps"` // Committed stamp sequences, ascending
	Nids     []Nid      `json:"nids"`   // Touched components, ascending
}

// Touches reports whether the commit included nid.
func (r CommitRecord) Touches(nid Nid) bool {
	for _, n := range r.Nids {
		if n == nid {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the commit included nothing.
func (r CommitRecord) IsEmpty() bool {
	return len(r.Nids) == 0
}
