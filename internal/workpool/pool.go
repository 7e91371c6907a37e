// Package workpool runs independent units of work on a fixed set of worker
// goroutines and hands back a Future per unit.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// ErrClosed is returned by futures of tasks submitted after Close.
var ErrClosed = errors.New("workpool: closed")

// Future is the handle of one submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done is closed when the task has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task's error. It is only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type task struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	future *Future
}

// Pool is a fixed-size worker pool draining a FIFO task queue.
type Pool struct {
	queue   *taskQueue
	logger  *slog.Logger
	workers sync.WaitGroup

	// pending counts unfinished tasks; idle is closed whenever it is zero.
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used to report task panics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// New starts a pool with n workers. n <= 0 uses GOMAXPROCS.
func New(n int, opts ...Option) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pool{queue: newTaskQueue(), logger: slog.Default(), idle: make(chan struct{})}
	close(p.idle)
	for _, opt := range opts {
		opt(p)
	}
	p.workers.Add(n)
	for range n {
		go p.work()
	}
	return p
}

// Submit schedules fn. fn receives ctx; if ctx is done before a worker
// picks the task up, fn is not run and the future fails with ctx.Err().
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) *Future {
	t := &task{ctx: ctx, fn: fn, future: newFuture()}
	p.begin()
	if !p.queue.enqueue(t) {
		p.end()
		t.future.complete(ErrClosed)
	}
	return t.future
}

func (p *Pool) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
}

func (p *Pool) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
}

// Pending returns the number of submitted tasks that have not finished.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Len returns the number of tasks waiting for a worker.
func (p *Pool) Len() int {
	return p.queue.len()
}

// Drain waits until every task submitted so far, and any they submit, has
// finished.
func (p *Pool) Drain(ctx context.Context) error {
	for {
		p.mu.Lock()
		idle := p.idle
		p.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}

		p.mu.Lock()
		quiet := p.pending == 0
		p.mu.Unlock()
		if quiet {
			return nil
		}
	}
}

// Close stops accepting tasks, runs the ones already queued and waits for
// the workers to exit.
func (p *Pool) Close() {
	p.queue.close()
	p.workers.Wait()
}

func (p *Pool) work() {
	defer p.workers.Done()
	for {
		if t, ok := p.queue.tryDequeue(); ok {
			p.run(t)
			continue
		}
		if p.queue.drained() {
			return
		}
		<-p.queue.wait()
	}
}

func (p *Pool) run(t *task) {
	defer p.end()
	if err := t.ctx.Err(); err != nil {
		t.future.complete(err)
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("task panicked", "panic", r)
				err = fmt.Errorf("workpool: task panicked: %v", r)
			}
		}()
		err = t.fn(t.ctx)
	}()
	t.future.complete(err)
}
