package spinemap

import (
	"iter"
	"math"
	"sync/atomic"
)

// Absent is the sentinel an Int32Map slot holds until it is written.
// It can never be stored as a value.
const Absent int32 = math.MinInt32

// Int32Map is a concurrent map of fixed-width int32 payloads. Slots are
// plain atomics pre-filled with Absent, so no value is boxed.
type Int32Map struct {
	dir *directory[[]atomic.Int32]
}

// NewInt32Map creates an empty map.
func NewInt32Map(opts ...Option) *Int32Map {
	o := buildOptions(opts)
	return &Int32Map{
		dir: newDirectory(o.spineSize, func(n int) *[]atomic.Int32 {
			slots := make([]atomic.Int32, n)
			for i := range slots {
				slots[i].Store(Absent)
			}
			return &slots
		}),
	}
}

func (m *Int32Map) slot(key int) *atomic.Int32 {
	if key < 0 {
		return nil
	}
	index, offset := m.dir.locate(key)
	s := m.dir.get(index)
	if s == nil {
		return nil
	}
	return &(*s)[offset]
}

// Get returns the value at key.
func (m *Int32Map) Get(key int) (int32, bool) {
	slot := m.slot(key)
	if slot == nil {
		return Absent, false
	}
	v := slot.Load()
	return v, v != Absent
}

// ContainsKey reports whether key has been written.
func (m *Int32Map) ContainsKey(key int) bool {
	_, ok := m.Get(key)
	return ok
}

// Put stores v at key. Storing Absent clears the slot.
func (m *Int32Map) Put(key int, v int32) error {
	s, offset, err := m.dir.getOrCreate(key)
	if err != nil {
		return err
	}
	(*s)[offset].Store(v)
	return nil
}

// CompareAndSwap sets key to next if it currently holds old. Pass Absent as
// old to write only an unset slot.
func (m *Int32Map) CompareAndSwap(key int, old, next int32) (bool, error) {
	s, offset, err := m.dir.getOrCreate(key)
	if err != nil {
		return false, err
	}
	return (*s)[offset].CompareAndSwap(old, next), nil
}

// Grow allocates spines so every key below capacity can be written.
func (m *Int32Map) Grow(capacity int) {
	m.dir.grow(capacity)
}

// SpineCount returns the number of allocated spines.
func (m *Int32Map) SpineCount() int {
	return m.dir.count()
}

// All iterates present entries in ascending key order.
func (m *Int32Map) All() iter.Seq2[int, int32] {
	return func(yield func(int, int32) bool) {
		spines := m.dir.count()
		for index := 0; index < spines; index++ {
			s := m.dir.get(index)
			for i := range *s {
				if v := (*s)[i].Load(); v != Absent {
					if !yield(index*m.dir.spineSize+i, v) {
						return
					}
				}
			}
		}
	}
}
