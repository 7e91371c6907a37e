package identifier

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/store"
)

// ObjectKey is where the identifier map is persisted.
const ObjectKey = "identifier/map"

type persistedEntry struct {
	Nid        ir.Nid    `msgpack:"n"`
	UUID       uuid.UUID `msgpack:"u"`
	Assemblage ir.Nid    `msgpack:"a,omitempty"`
	Sequence   int32     `msgpack:"s"`
	Name       string    `msgpack:"nm,omitempty"`
}

type persistedMap struct {
	Next    ir.Nid           `msgpack:"next"`
	Entries []persistedEntry `msgpack:"entries"`
}

// Save writes the identifier map to objects.
func (s *Service) Save(ctx context.Context, objects store.ObjectStore) error {
	s.mu.RLock()
	snapshot := persistedMap{Next: s.next}
	s.mu.RUnlock()

	for key, id := range s.uuids.All() {
		nid := NidAt(key)
		e := persistedEntry{Nid: nid, UUID: id}
		if a, ok := s.AssemblageOf(nid); ok {
			e.Assemblage = a
			e.Sequence, _ = s.ElementSequence(nid)
		}
		e.Name, _ = s.names.Get(key)
		snapshot.Entries = append(snapshot.Entries, e)
	}

	data, err := msgpack.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("save identifier map: %w", err)
	}
	if err := objects.Put(ctx, ObjectKey, data); err != nil {
		return fmt.Errorf("save identifier map: %w", err)
	}
	return nil
}

// Load restores a previously saved identifier map into a fresh service. It
// reports false when nothing was saved yet.
func Load(ctx context.Context, objects store.ObjectStore, opts ...Option) (*Service, bool, error) {
	data, ok, err := objects.Get(ctx, ObjectKey)
	if err != nil {
		return nil, false, fmt.Errorf("load identifier map: %w", err)
	}
	if !ok {
		return New(opts...), false, nil
	}

	var snapshot persistedMap
	if err := msgpack.Unmarshal(data, &snapshot); err != nil {
		return nil, false, fmt.Errorf("load identifier map: %w", err)
	}

	s := newEmpty(opts...)
	for _, e := range snapshot.Entries {
		key := Index(e.Nid)
		if err := s.uuids.Put(key, e.UUID); err != nil {
			return nil, false, fmt.Errorf("load identifier map: nid %d: %w", e.Nid, err)
		}
		s.byUUID[e.UUID] = e.Nid
		if e.Assemblage != ir.NoNid {
			if err := s.assemblages.Put(key, int32(e.Assemblage)); err != nil {
				return nil, false, err
			}
			if err := s.elementSeqs.Put(key, e.Sequence); err != nil {
				return nil, false, err
			}
			if e.Sequence >= s.nextSeq[e.Assemblage] {
				s.nextSeq[e.Assemblage] = e.Sequence + 1
			}
		}
		if e.Name != "" {
			if err := s.names.Put(key, e.Name); err != nil {
				return nil, false, err
			}
		}
	}
	s.next = snapshot.Next
	if err := s.bootstrap(); err != nil {
		return nil, false, fmt.Errorf("load identifier map: %w", err)
	}
	s.logger.Debug("identifier map loaded", "nids", len(snapshot.Entries), "next", s.next)
	return s, true, nil
}
