package chronicle

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/weaviate/sroar"

	"github.com/roach88/termgraph/internal/identifier"
	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/spinemap"
	"github.com/roach88/termgraph/internal/store"
)

// keyPrefix prefixes every persisted chronology.
const keyPrefix = "chronicle/"

// semanticRef indexes one semantic that references a concept.
type semanticRef struct {
	Assemblage ir.Nid
	Semantic   ir.Nid
}

// Store holds every chronology in memory, addressed by identifier.Index.
type Store struct {
	chronologies *spinemap.Map[Chronology]
	references   *spinemap.Map[[]semanticRef]

	dirtyMu sync.Mutex
	dirty   *sroar.Bitmap
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	spineSize int
}

// WithSpineSize sets the spine size of the backing maps.
func WithSpineSize(n int) Option {
	return func(o *storeOptions) {
		o.spineSize = n
	}
}

// NewStore creates an empty chronicle store.
func NewStore(opts ...Option) *Store {
	o := storeOptions{spineSize: spinemap.DefaultSpineSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		chronologies: spinemap.New[Chronology](spinemap.WithSpineSize(o.spineSize)),
		references:   spinemap.New[[]semanticRef](spinemap.WithSpineSize(o.spineSize)),
		dirty:        sroar.NewBitmap(),
	}
}

func (s *Store) markDirty(nid ir.Nid) {
	s.dirtyMu.Lock()
	s.dirty.Set(uint64(identifier.Index(nid)))
	s.dirtyMu.Unlock()
}

// Get returns the chronology for nid.
func (s *Store) Get(nid ir.Nid) (Chronology, bool) {
	return s.chronologies.Get(identifier.Index(nid))
}

// Contains reports whether nid has a chronology.
func (s *Store) Contains(nid ir.Nid) bool {
	return s.chronologies.ContainsKey(identifier.Index(nid))
}

// Put stores c, replacing any existing chronology for the same nid.
func (s *Store) Put(c Chronology) error {
	if err := s.chronologies.Put(identifier.Index(c.Nid), c); err != nil {
		return fmt.Errorf("put chronology %d: %w", c.Nid, err)
	}
	if err := s.index(c); err != nil {
		return err
	}
	s.markDirty(c.Nid)
	return nil
}

// index records a semantic in its referenced concept's reference list.
func (s *Store) index(c Chronology) error {
	if c.Kind != ir.KindSemanticChronology || c.Referenced == ir.NoNid {
		return nil
	}
	ref := semanticRef{Assemblage: c.Assemblage, Semantic: c.Nid}
	_, err := s.references.Update(identifier.Index(c.Referenced), func(old []semanticRef, _ bool) []semanticRef {
		if slices.Contains(old, ref) {
			return old
		}
		return append(slices.Clone(old), ref)
	})
	if err != nil {
		return fmt.Errorf("index semantic %d on %d: %w", c.Nid, c.Referenced, err)
	}
	return nil
}

// unindex removes a semantic from its referenced concept's reference list.
func (s *Store) unindex(c Chronology) {
	if c.Kind != ir.KindSemanticChronology || c.Referenced == ir.NoNid {
		return
	}
	ref := semanticRef{Assemblage: c.Assemblage, Semantic: c.Nid}
	key := identifier.Index(c.Referenced)
	if !s.references.ContainsKey(key) {
		return
	}
	_, _ = s.references.Update(key, func(old []semanticRef, _ bool) []semanticRef {
		return slices.DeleteFunc(slices.Clone(old), func(r semanticRef) bool { return r == ref })
	})
}

// AddVersion appends v to the chronology for nid, or replaces the version
// already carrying v's stamp. template supplies the chronology header when
// nid has no chronology yet.
func (s *Store) AddVersion(template Chronology, v Version) (Chronology, error) {
	created := false
	next, err := s.chronologies.Update(identifier.Index(template.Nid), func(old Chronology, ok bool) Chronology {
		created = !ok
		if !ok {
			old = template
			old.Versions = nil
		}
		return old.withVersion(v)
	})
	if err != nil {
		return Chronology{}, fmt.Errorf("add version to %d: %w", template.Nid, err)
	}
	if created {
		if err := s.index(next); err != nil {
			return Chronology{}, err
		}
	}
	s.markDirty(template.Nid)
	return next, nil
}

// RewriteStamps replaces version stamps according to mapping. Versions whose
// stamp is not in mapping are unchanged.
func (s *Store) RewriteStamps(nid ir.Nid, mapping map[ir.StampSeq]ir.StampSeq) (Chronology, error) {
	key := identifier.Index(nid)
	if !s.chronologies.ContainsKey(key) {
		return Chronology{}, fmt.Errorf("rewrite stamps: no chronology for %d", nid)
	}
	next, err := s.chronologies.Update(key, func(old Chronology, _ bool) Chronology {
		out := old
		out.Versions = slices.Clone(old.Versions)
		for i, v := range out.Versions {
			if to, ok := mapping[v.Stamp]; ok {
				out.Versions[i].Stamp = to
			}
		}
		return out
	})
	if err != nil {
		return Chronology{}, fmt.Errorf("rewrite stamps of %d: %w", nid, err)
	}
	s.markDirty(nid)
	return next, nil
}

// RemoveVersions drops the versions carrying any of stamps. A chronology left
// with no versions is deleted. It returns the number of versions remaining.
func (s *Store) RemoveVersions(nid ir.Nid, stamps []ir.StampSeq) (int, error) {
	key := identifier.Index(nid)
	if !s.chronologies.ContainsKey(key) {
		return 0, nil
	}
	next, err := s.chronologies.Update(key, func(old Chronology, _ bool) Chronology {
		out := old
		out.Versions = slices.DeleteFunc(slices.Clone(old.Versions), func(v Version) bool {
			return slices.Contains(stamps, v.Stamp)
		})
		return out
	})
	if err != nil {
		return 0, fmt.Errorf("remove versions of %d: %w", nid, err)
	}
	if len(next.Versions) == 0 {
		s.chronologies.Delete(key)
		s.unindex(next)
	}
	s.markDirty(nid)
	return len(next.Versions), nil
}

// SemanticsFor returns the semantics in assemblage that reference concept.
func (s *Store) SemanticsFor(concept, assemblage ir.Nid) []ir.Nid {
	refs, _ := s.references.Get(identifier.Index(concept))
	var out []ir.Nid
	for _, r := range refs {
		if r.Assemblage == assemblage {
			out = append(out, r.Semantic)
		}
	}
	return out
}

// Reserve makes every nid with an index below n addressable. Callers that
// create chronologies out of nid order reserve up to the identifier
// high-water mark first.
func (s *Store) Reserve(n int) {
	s.chronologies.Grow(n)
	s.references.Grow(n)
}

// Len returns the number of stored chronologies.
func (s *Store) Len() int {
	return s.chronologies.Len()
}

// Concepts returns the nids of every concept chronology in index order.
func (s *Store) Concepts() []ir.Nid {
	var out []ir.Nid
	for key, c := range s.chronologies.All() {
		if c.Kind == ir.KindConceptChronology {
			out = append(out, identifier.NidAt(key))
		}
	}
	return out
}

// Range calls fn for every chronology in parallel. See spinemap.Map.ParallelRange.
func (s *Store) Range(ctx context.Context, fn func(ctx context.Context, c Chronology) error) error {
	return s.chronologies.ParallelRange(ctx, func(ctx context.Context, _ int, c Chronology) error {
		return fn(ctx, c)
	})
}

func objectKey(nid ir.Nid) string {
	return keyPrefix + strconv.Itoa(int(nid))
}

// Save persists every chronology changed since the last Save. Deleted
// chronologies are written as empty tombstones so Load skips them.
func (s *Store) Save(ctx context.Context, objects store.ObjectStore) (int, error) {
	s.dirtyMu.Lock()
	dirty := s.dirty
	s.dirty = sroar.NewBitmap()
	s.dirtyMu.Unlock()

	written := 0
	for _, key := range dirty.ToArray() {
		nid := identifier.NidAt(int(key))
		c, ok := s.chronologies.Get(int(key))
		if !ok {
			c = Chronology{Nid: nid}
		}
		data, err := msgpack.Marshal(&c)
		if err == nil {
			err = objects.Put(ctx, objectKey(nid), data)
		}
		if err != nil {
			// Put the unsaved remainder back so a retry picks it up.
			s.dirtyMu.Lock()
			s.dirty.Or(dirty)
			s.dirtyMu.Unlock()
			return written, fmt.Errorf("save chronology %d: %w", nid, err)
		}
		written++
	}
	return written, nil
}

// Load reads every persisted chronology into a new store.
func Load(ctx context.Context, objects store.ObjectStore, opts ...Option) (*Store, error) {
	s := NewStore(opts...)

	var loaded []Chronology
	err := objects.Scan(ctx, keyPrefix, func(key string, value []byte) error {
		var c Chronology
		if err := msgpack.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if want := strings.TrimPrefix(key, keyPrefix); want != strconv.Itoa(int(c.Nid)) {
			return fmt.Errorf("decode %s: holds chronology %d", key, c.Nid)
		}
		if len(c.Versions) > 0 {
			loaded = append(loaded, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load chronicles: %w", err)
	}

	// Deleted chronologies leave gaps, so size the maps up front.
	maxIndex := -1
	for _, c := range loaded {
		maxIndex = max(maxIndex, identifier.Index(c.Nid))
		if c.Referenced != ir.NoNid {
			maxIndex = max(maxIndex, identifier.Index(c.Referenced))
		}
	}
	s.chronologies.Grow(maxIndex + 1)
	s.references.Grow(maxIndex + 1)

	for _, c := range loaded {
		if err := s.Put(c); err != nil {
			return nil, fmt.Errorf("load chronicles: %w", err)
		}
	}

	s.dirtyMu.Lock()
	s.dirty = sroar.NewBitmap()
	s.dirtyMu.Unlock()
	return s, nil
}
