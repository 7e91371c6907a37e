// Package identifier maps component UUIDs to dense nids and tracks which
// assemblage each nid belongs to.
//
// Nids are assigned as negative int32 values counting up from
// math.MinInt32+1. Index remaps a nid to the non-negative dense key used to
// address every spinemap.
package identifier

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/spinemap"
)

// FirstNid is the first nid the service assigns.
const FirstNid ir.Nid = math.MinInt32 + 1

// Index returns the dense map key for nid.
func Index(nid ir.Nid) int {
	return int(nid) - int(FirstNid)
}

// NidAt is the inverse of Index.
func NidAt(index int) ir.Nid {
	return ir.Nid(index + int(FirstNid))
}

// Service assigns nids and element sequences. It is safe for concurrent use.
type Service struct {
	logger *slog.Logger

	mu     sync.RWMutex
	byUUID map[uuid.UUID]ir.Nid
	next   ir.Nid

	uuids       *spinemap.Map[uuid.UUID]
	names       *spinemap.Map[string]
	assemblages *spinemap.Int32Map
	elementSeqs *spinemap.Int32Map

	seqMu   sync.Mutex
	nextSeq map[ir.Nid]int32

	terms ir.Terms
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a service and bootstraps the well-known terms.
func New(opts ...Option) *Service {
	s := newEmpty(opts...)
	if err := s.bootstrap(); err != nil {
		// Bootstrapping an empty service only allocates the first spine.
		panic(fmt.Sprintf("identifier: bootstrap: %v", err))
	}
	return s
}

func newEmpty(opts ...Option) *Service {
	s := &Service{
		logger:      slog.Default(),
		byUUID:      make(map[uuid.UUID]ir.Nid),
		next:        FirstNid,
		uuids:       spinemap.New[uuid.UUID](),
		names:       spinemap.New[string](),
		assemblages: spinemap.NewInt32Map(),
		elementSeqs: spinemap.NewInt32Map(),
		nextSeq:     make(map[ir.Nid]int32),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NidFor returns the nid for id, assigning the next one on first use.
func (s *Service) NidFor(id uuid.UUID) (ir.Nid, error) {
	s.mu.RLock()
	nid, ok := s.byUUID[id]
	s.mu.RUnlock()
	if ok {
		return nid, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if nid, ok := s.byUUID[id]; ok {
		return nid, nil
	}
	if s.next == 0 {
		return ir.NoNid, fmt.Errorf("nid space exhausted")
	}
	nid = s.next
	if err := s.uuids.Put(Index(nid), id); err != nil {
		return ir.NoNid, fmt.Errorf("assign nid for %s: %w", id, err)
	}
	s.byUUID[id] = nid
	s.next++
	return nid, nil
}

// Lookup returns the nid already assigned to id.
func (s *Service) Lookup(id uuid.UUID) (ir.Nid, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nid, ok := s.byUUID[id]
	return nid, ok
}

// UUIDFor returns the UUID a nid was assigned for.
func (s *Service) UUIDFor(nid ir.Nid) (uuid.UUID, bool) {
	return s.uuids.Get(Index(nid))
}

// Register records that nid belongs to assemblage and assigns its element
// sequence. Registering the same nid again returns the existing sequence;
// moving a nid to a different assemblage is an error.
func (s *Service) Register(nid, assemblage ir.Nid) (int32, error) {
	key := Index(nid)
	if !s.uuids.ContainsKey(key) {
		return 0, fmt.Errorf("register %d: nid was never assigned", nid)
	}

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	if current, ok := s.assemblages.Get(key); ok {
		if ir.Nid(current) != assemblage {
			return 0, fmt.Errorf("register %d: already in assemblage %d, not %d", nid, current, assemblage)
		}
		seq, _ := s.elementSeqs.Get(key)
		return seq, nil
	}

	seq := s.nextSeq[assemblage]
	if err := s.assemblages.Put(key, int32(assemblage)); err != nil {
		return 0, fmt.Errorf("register %d: %w", nid, err)
	}
	if err := s.elementSeqs.Put(key, seq); err != nil {
		return 0, fmt.Errorf("register %d: %w", nid, err)
	}
	s.nextSeq[assemblage] = seq + 1
	return seq, nil
}

// AssemblageOf returns the assemblage nid belongs to.
func (s *Service) AssemblageOf(nid ir.Nid) (ir.Nid, bool) {
	v, ok := s.assemblages.Get(Index(nid))
	return ir.Nid(v), ok
}

// ElementSequence returns nid's zero-based position within its assemblage.
func (s *Service) ElementSequence(nid ir.Nid) (int32, bool) {
	return s.elementSeqs.Get(Index(nid))
}

// AssemblageSize returns how many elements have been registered in assemblage.
func (s *Service) AssemblageSize(assemblage ir.Nid) int {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return int(s.nextSeq[assemblage])
}

// SetName attaches a display name to nid.
func (s *Service) SetName(nid ir.Nid, name string) error {
	return s.names.Put(Index(nid), name)
}

// Name returns nid's display name, or its number when it has none.
func (s *Service) Name(nid ir.Nid) string {
	if name, ok := s.names.Get(Index(nid)); ok {
		return name
	}
	return fmt.Sprintf("%d", nid)
}

// NidByName returns the nid carrying name. Names are not indexed, so this is a
// linear scan; it exists for CLI and fixture lookups.
func (s *Service) NidByName(name string) (ir.Nid, bool) {
	for key, n := range s.names.All() {
		if n == name {
			return NidAt(key), true
		}
	}
	return ir.NoNid, false
}

// Len returns the number of assigned nids.
func (s *Service) Len() int {
	return s.uuids.Len()
}

// Terms returns the well-known terms.
func (s *Service) Terms() ir.Terms {
	return s.terms
}
