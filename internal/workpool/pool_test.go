package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()
	tasks := []*task{{}, {}, {}}
	for _, tk := range tasks {
		require.True(t, q.enqueue(tk))
	}

	for i := range tasks {
		got, ok := q.tryDequeue()
		require.True(t, ok)
		assert.Same(t, tasks[i], got)
	}
	_, ok := q.tryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestTaskQueue_Close(t *testing.T) {
	q := newTaskQueue()
	require.True(t, q.enqueue(&task{}))
	q.close()
	q.close() // idempotent

	assert.False(t, q.enqueue(&task{}), "closed queue rejects tasks")
	assert.False(t, q.drained(), "queued task still pending")
	_, ok := q.tryDequeue()
	require.True(t, ok)
	assert.True(t, q.drained())

	select {
	case <-q.wait():
	default:
		t.Fatal("closed queue should wake waiters")
	}
}

func TestPool_FutureResult(t *testing.T) {
	p := New(2)
	defer p.Close()

	boom := errors.New("boom")
	ok := p.Submit(context.Background(), func(context.Context) error { return nil })
	bad := p.Submit(context.Background(), func(context.Context) error { return boom })

	ctx := context.Background()
	require.NoError(t, ok.Wait(ctx))
	assert.ErrorIs(t, bad.Wait(ctx), boom)
	assert.ErrorIs(t, bad.Err(), boom)
}

func TestPool_Drain(t *testing.T) {
	p := New(4)
	defer p.Close()

	var ran atomic.Int32
	for range 50 {
		p.Submit(context.Background(), func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil
		})
	}
	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, int32(50), ran.Load())
	assert.Zero(t, p.Pending())
}

func TestPool_DrainIncludesFollowUps(t *testing.T) {
	p := New(1)
	defer p.Close()

	var ran atomic.Int32
	p.Submit(context.Background(), func(ctx context.Context) error {
		p.Submit(ctx, func(context.Context) error {
			ran.Add(1)
			return nil
		})
		ran.Add(1)
		return nil
	})
	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, int32(2), ran.Load())
}

func TestPool_DrainHonorsContext(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	p.Submit(context.Background(), func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Drain(ctx), context.DeadlineExceeded)

	close(release)
	p.Close()
}

func TestPool_CanceledContextSkipsTask(t *testing.T) {
	p := New(1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	f := p.Submit(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, f.Wait(context.Background()), context.Canceled)
	assert.False(t, ran.Load())
}

func TestPool_PanicBecomesError(t *testing.T) {
	p := New(1)
	defer p.Close()

	f := p.Submit(context.Background(), func(context.Context) error { panic("bad unit") })
	err := f.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad unit")

	// The worker survives.
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error { return nil }).Wait(context.Background()))
}

func TestPool_CloseRunsQueuedThenRejects(t *testing.T) {
	p := New(2)
	var mu sync.Mutex
	var order []int
	for i := range 10 {
		p.Submit(context.Background(), func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	p.Close()
	assert.Len(t, order, 10)

	f := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, f.Wait(context.Background()), ErrClosed)
}

func TestTaskQueue_DequeueAfterClose(t *testing.T) {
	q := newTaskQueue()
	for range 3 {
		require.True(t, q.enqueue(&task{}))
	}
	q.close()

	for range 3 {
		_, ok := q.tryDequeue()
		require.True(t, ok)
	}
	assert.True(t, q.drained())
}

func TestPool_CloseWithBacklogBehindBusyWorker(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	var ran atomic.Int32
	futures := make([]*Future, 0, 3)
	for range 3 {
		futures = append(futures, p.Submit(context.Background(), func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, int32(3), ran.Load())
	for _, f := range futures {
		assert.NoError(t, f.Wait(context.Background()))
	}
}
