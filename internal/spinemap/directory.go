package spinemap

import (
	"sync"
	"sync/atomic"
)

// DefaultSpineSize is the number of slots in one spine.
const DefaultSpineSize = 1024

// maxSpinesAhead bounds how far past the allocated spines a write may land.
const maxSpinesAhead = 2

// directory holds the lazily grown spine array shared by Map and Int32Map.
// The spine slice is copy-on-write: readers load it atomically, writers
// replace it under mu.
type directory[S any] struct {
	spineSize int
	newSpine  func(size int) *S

	mu     sync.Mutex
	spines atomic.Pointer[[]*S]
}

func newDirectory[S any](spineSize int, newSpine func(size int) *S) *directory[S] {
	if spineSize <= 0 {
		spineSize = DefaultSpineSize
	}
	d := &directory[S]{spineSize: spineSize, newSpine: newSpine}
	empty := make([]*S, 0)
	d.spines.Store(&empty)
	return d
}

// locate splits a key into its spine index and slot offset.
func (d *directory[S]) locate(key int) (int, int) {
	return key / d.spineSize, key % d.spineSize
}

// count returns the number of allocated spines.
func (d *directory[S]) count() int {
	return len(*d.spines.Load())
}

// capacity returns the number of addressable slots in allocated spines.
func (d *directory[S]) capacity() int {
	return d.count() * d.spineSize
}

// get returns the spine for index, or nil if it is not allocated.
func (d *directory[S]) get(index int) *S {
	spines := *d.spines.Load()
	if index < 0 || index >= len(spines) {
		return nil
	}
	return spines[index]
}

// getOrCreate returns the spine holding key, allocating it and any spines
// before it when needed.
func (d *directory[S]) getOrCreate(key int) (*S, int, error) {
	if key < 0 {
		return nil, 0, &SpineRangeError{Key: key, SpineIndex: -1, Allocated: d.count()}
	}
	index, offset := d.locate(key)
	if s := d.get(index); s != nil {
		return s, offset, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	current := *d.spines.Load()
	if index < len(current) {
		return current[index], offset, nil
	}
	if index >= len(current)+maxSpinesAhead {
		return nil, 0, &SpineRangeError{Key: key, SpineIndex: index, Allocated: len(current)}
	}

	grown := make([]*S, index+1)
	copy(grown, current)
	for i := len(current); i <= index; i++ {
		grown[i] = d.newSpine(d.spineSize)
	}
	d.spines.Store(&grown)
	return grown[index], offset, nil
}

// grow allocates spines until keys below capacity are addressable.
func (d *directory[S]) grow(capacity int) {
	want := (capacity + d.spineSize - 1) / d.spineSize

	d.mu.Lock()
	defer d.mu.Unlock()

	current := *d.spines.Load()
	if want <= len(current) {
		return
	}
	grown := make([]*S, want)
	copy(grown, current)
	for i := len(current); i < want; i++ {
		grown[i] = d.newSpine(d.spineSize)
	}
	d.spines.Store(&grown)
}
