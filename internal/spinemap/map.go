package spinemap

import (
	"context"
	"iter"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Option configures a map.
type Option func(*options)

type options struct {
	spineSize int
}

// WithSpineSize sets the number of slots per spine.
func WithSpineSize(n int) Option {
	return func(o *options) {
		o.spineSize = n
	}
}

func buildOptions(opts []Option) options {
	o := options{spineSize: DefaultSpineSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Map is a concurrent map from dense non-negative int keys to values of V.
// A nil slot pointer is the absent sentinel, so any V, including its zero
// value, can be stored.
type Map[V any] struct {
	dir  *directory[[]atomic.Pointer[V]]
	size atomic.Int64
}

// New creates an empty map.
func New[V any](opts ...Option) *Map[V] {
	o := buildOptions(opts)
	return &Map[V]{
		dir: newDirectory(o.spineSize, func(n int) *[]atomic.Pointer[V] {
			slots := make([]atomic.Pointer[V], n)
			return &slots
		}),
	}
}

// slot returns the slot for key without allocating, or nil if the key's
// spine does not exist.
func (m *Map[V]) slot(key int) *atomic.Pointer[V] {
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

func (m *Map[V]) slotForWrite(key int) (*atomic.Pointer[V], error) {
	s, offset, err := m.dir.getOrCreate(key)
	if err != nil {
		return nil, err
	}
	return &(*s)[offset], nil
}

// Get returns the value stored at key.
func (m *Map[V]) Get(key int) (V, bool) {
	var zero V
	slot := m.slot(key)
	if slot == nil {
		return zero, false
	}
	p := slot.Load()
	if p == nil {
		return zero, false
	}
	return *p, true
}

// ContainsKey reports whether a value has been written at key.
func (m *Map[V]) ContainsKey(key int) bool {
	slot := m.slot(key)
	return slot != nil && slot.Load() != nil
}

// Put stores v at key, replacing any previous value.
func (m *Map[V]) Put(key int, v V) error {
	slot, err := m.slotForWrite(key)
	if err != nil {
		return err
	}
	if old := slot.Swap(&v); old == nil {
		m.size.Add(1)
	}
	return nil
}

// PutIfAbsent stores v at key only if the key is absent. It returns the value
// now held at key and whether v was stored.
func (m *Map[V]) PutIfAbsent(key int, v V) (V, bool, error) {
	slot, err := m.slotForWrite(key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	for {
		if slot.CompareAndSwap(nil, &v) {
			m.size.Add(1)
			return v, true, nil
		}
		if p := slot.Load(); p != nil {
			return *p, false, nil
		}
	}
}

// Update atomically replaces the value at key with fn(old, present) and
// returns the new value. fn may be called more than once under contention
// and must be free of side effects.
func (m *Map[V]) Update(key int, fn func(old V, ok bool) V) (V, error) {
	_, _, next, err := m.update(key, fn)
	return next, err
}

// GetAndUpdate is like Update but returns the value held before the update.
func (m *Map[V]) GetAndUpdate(key int, fn func(old V, ok bool) V) (V, bool, error) {
	prev, ok, _, err := m.update(key, fn)
	return prev, ok, err
}

func (m *Map[V]) update(key int, fn func(old V, ok bool) V) (prev V, ok bool, next V, err error) {
	slot, err := m.slotForWrite(key)
	if err != nil {
		return prev, false, next, err
	}
	for {
		old := slot.Load()
		var cur V
		if old != nil {
			cur = *old
		}
		n := fn(cur, old != nil)
		if slot.CompareAndSwap(old, &n) {
			if old == nil {
				m.size.Add(1)
			}
			return cur, old != nil, n, nil
		}
	}
}

// Accumulate folds x into the value at key with merge. An absent key takes x
// as is.
func (m *Map[V]) Accumulate(key int, x V, merge func(prev, x V) V) (V, error) {
	return m.Update(key, func(old V, ok bool) V {
		if !ok {
			return x
		}
		return merge(old, x)
	})
}

// Delete removes the value at key and reports whether one was present.
func (m *Map[V]) Delete(key int) bool {
	slot := m.slot(key)
	if slot == nil {
		return false
	}
	if old := slot.Swap(nil); old != nil {
		m.size.Add(-1)
		return true
	}
	return false
}

// Len returns the number of present keys.
func (m *Map[V]) Len() int {
	return int(m.size.Load())
}

// Grow allocates spines so every key below capacity can be written. It is the
// explicit way to address keys beyond the automatic growth window, used when
// restoring sparse persisted state.
func (m *Map[V]) Grow(capacity int) {
	m.dir.grow(capacity)
}

// SpineCount returns the number of allocated spines.
func (m *Map[V]) SpineCount() int {
	return m.dir.count()
}

// All iterates present entries in ascending key order. Each call starts a
// fresh pass over the spines allocated when iteration begins.
func (m *Map[V]) All() iter.Seq2[int, V] {
	return func(yield func(int, V) bool) {
		c := m.Cursor()
		c.All()(yield)
	}
}

// Keys iterates present keys in ascending order.
func (m *Map[V]) Keys() iter.Seq[int] {
	return func(yield func(int) bool) {
		for k := range m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Cursor is a splittable view over a half-open key range of a map.
type Cursor[V any] struct {
	m      *Map[V]
	lo, hi int
}

// Cursor returns a cursor over every allocated slot.
func (m *Map[V]) Cursor() Cursor[V] {
	return Cursor[V]{m: m, lo: 0, hi: m.dir.capacity()}
}

// Span returns the number of slots the cursor covers.
func (c Cursor[V]) Span() int {
	return c.hi - c.lo
}

// Split halves the cursor's range. It returns false when the range holds
// fewer than two slots.
func (c Cursor[V]) Split() (Cursor[V], Cursor[V], bool) {
	if c.Span() < 2 {
		return c, Cursor[V]{m: c.m, lo: c.hi, hi: c.hi}, false
	}
	mid := c.lo + c.Span()/2
	return Cursor[V]{m: c.m, lo: c.lo, hi: mid}, Cursor[V]{m: c.m, lo: mid, hi: c.hi}, true
}

// All iterates present entries within the cursor's range.
func (c Cursor[V]) All() iter.Seq2[int, V] {
	return func(yield func(int, V) bool) {
		size := c.m.dir.spineSize
		for key := c.lo; key < c.hi; {
			index, offset := c.m.dir.locate(key)
			s := c.m.dir.get(index)
			if s == nil {
				return
			}
			end := min(size, offset+(c.hi-key))
			for i := offset; i < end; i++ {
				if p := (*s)[i].Load(); p != nil {
					if !yield(key+i-offset, *p) {
						return
					}
				}
			}
			key += end - offset
		}
	}
}

// ParallelRange calls fn for every present entry, splitting the key range
// across up to GOMAXPROCS goroutines. Chunks are split until they are no
// larger than one spine. The first error returned by fn cancels the rest.
func (m *Map[V]) ParallelRange(ctx context.Context, fn func(ctx context.Context, key int, v V) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	var chunks []Cursor[V]
	var split func(c Cursor[V])
	split = func(c Cursor[V]) {
		if c.Span() <= m.dir.spineSize {
			chunks = append(chunks, c)
			return
		}
		left, right, _ := c.Split()
		split(left)
		split(right)
	}
	split(m.Cursor())

	for _, chunk := range chunks {
		g.Go(func() error {
			for k, v := range chunk.All() {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(ctx, k, v); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
