// Package notify delivers events to subscribed listeners asynchronously.
//
// Listeners are held until their Subscription is closed. Closed
// subscriptions are pruned by the registry at the start of every
// notification pass. Delivery is ordered: a single worker hands each event
// to every live listener before moving on to the next event.
package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/termgraph/internal/workpool"
)

// Subscription is one registered listener.
type Subscription[T any] struct {
	fn     func(T)
	closed atomic.Bool
}

// Close stops delivery to the listener. Events already being delivered may
// still reach it.
func (s *Subscription[T]) Close() {
	s.closed.Store(true)
}

// Closed reports whether Close was called.
func (s *Subscription[T]) Closed() bool {
	return s.closed.Load()
}

// Registry fans events of type T out to listeners.
type Registry[T any] struct {
	name   string
	logger *slog.Logger
	pool   *workpool.Pool

	mu   sync.Mutex
	subs []*Subscription[T]
}

// NewRegistry creates a registry. name labels log records.
func NewRegistry[T any](name string, logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[T]{
		name:   name,
		logger: logger,
		pool:   workpool.New(1, workpool.WithLogger(logger)),
	}
}

// Subscribe registers fn.
func (r *Registry[T]) Subscribe(fn func(T)) *Subscription[T] {
	s := &Subscription[T]{fn: fn}
	r.mu.Lock()
	r.subs = append(r.subs, s)
	r.mu.Unlock()
	return s
}

// live prunes closed subscriptions and returns the rest.
func (r *Registry[T]) live() []*Subscription[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = slices.DeleteFunc(r.subs, func(s *Subscription[T]) bool { return s.Closed() })
	return slices.Clone(r.subs)
}

// Len returns the number of live listeners.
func (r *Registry[T]) Len() int {
	return len(r.live())
}

// Notify schedules delivery of v to every live listener. A panicking
// listener is logged and does not stop delivery to the others.
func (r *Registry[T]) Notify(ctx context.Context, v T) *workpool.Future {
	subs := r.live()
	return r.pool.Submit(context.WithoutCancel(ctx), func(context.Context) error {
		for _, s := range subs {
			if s.Closed() {
				continue
			}
			r.deliver(s, v)
		}
		return nil
	})
}

// Deliver hands v to a single subscription through the same ordered worker.
// It is used to replay history to a new listener.
func (r *Registry[T]) Deliver(ctx context.Context, s *Subscription[T], events []T) *workpool.Future {
	return r.pool.Submit(context.WithoutCancel(ctx), func(context.Context) error {
		for _, v := range events {
			if s.Closed() {
				return nil
			}
			r.deliver(s, v)
		}
		return nil
	})
}

func (r *Registry[T]) deliver(s *Subscription[T], v T) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("listener panicked", "registry", r.name, "panic", p)
		}
	}()
	s.fn(v)
}

// Drain waits for every scheduled delivery.
func (r *Registry[T]) Drain(ctx context.Context) error {
	return r.pool.Drain(ctx)
}

// Close delivers what is queued and stops the registry.
func (r *Registry[T]) Close() {
	r.pool.Close()
}
