package task_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/leadgen-api/internal/queue"
	"github.com/phrazzld/leadgen-api/internal/task"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newPool(t *testing.T, q *queue.MemoryQueue, p task.Processor, cfg task.WorkerPoolConfig) *task.WorkerPool {
	t.Helper()
	pool := task.NewWorkerPool(q, p, cfg, discardLogger())
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return pool
}

func TestWorkerPool_ProcessesAndAcks(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(10, 10*time.Millisecond, discardLogger())
	var mu sync.Mutex
	seen := map[int64]int{}
	p := task.ProcessorFunc(func(_ context.Context, jobID int64) error {
		mu.Lock()
		defer mu.Unlock()
		seen[jobID]++
		return nil
	})
	newPool(t, q, p, task.WorkerPoolConfig{WorkerCount: 3, MaxAttempts: 3})

	for id := int64(1); id <= 5; id++ {
		require.NoError(t, q.Enqueue(context.Background(), id))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %d processed once", id)
	}
	assert.Empty(t, q.DeadLetters())
}

func TestWorkerPool_RetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(10, 10*time.Millisecond, discardLogger())
	var attempts atomic.Int32
	p := task.ProcessorFunc(func(context.Context, int64) error {
		attempts.Add(1)
		return &task.UnexpectedFailureError{JobID: 7, Err: errors.New("store down")}
	})

	var handled atomic.Int32
	pool := task.NewWorkerPool(q, p, task.WorkerPoolConfig{WorkerCount: 1, MaxAttempts: 3}, discardLogger())
	pool.SetErrorHandler(func(queue.Message, error) { handled.Add(1) })
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	require.NoError(t, q.Enqueue(context.Background(), 7))

	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, waitFor, tick)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int32(3), handled.Load())

	dead := q.DeadLetters()[0]
	assert.Equal(t, int64(7), dead.JobID)
	assert.Equal(t, 3, dead.Attempt)
	assert.Contains(t, dead.LastError, "store down")
}

func TestWorkerPool_RecoversProcessorPanic(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(10, 10*time.Millisecond, discardLogger())
	var calls atomic.Int32
	p := task.ProcessorFunc(func(context.Context, int64) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	newPool(t, q, p, task.WorkerPoolConfig{WorkerCount: 1, MaxAttempts: 3})

	require.NoError(t, q.Enqueue(context.Background(), 1))

	require.Eventually(t, func() bool { return calls.Load() == 2 }, waitFor, tick)
	assert.Empty(t, q.DeadLetters())
}

func TestWorkerPool_StopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(10, time.Minute, discardLogger())
	pool := task.NewWorkerPool(q, task.ProcessorFunc(func(context.Context, int64) error { return nil }),
		task.WorkerPoolConfig{WorkerCount: 2}, discardLogger())
	pool.Start(context.Background())

	q.Close()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("pool did not stop")
	}
}

func TestWorkerPool_RunReturnsOnCancel(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(10, 10*time.Millisecond, discardLogger())
	pool := task.NewWorkerPool(q, task.ProcessorFunc(func(context.Context, int64) error { return nil }),
		task.DefaultWorkerPoolConfig(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}

	// Stopping twice is harmless.
	pool.Stop()
}

func TestWorkerPool_DrainsInFlightJobOnStop(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(10, 10*time.Millisecond, discardLogger())
	started := make(chan struct{})
	var finished atomic.Bool
	p := task.ProcessorFunc(func(ctx context.Context, _ int64) error {
		close(started)
		select {
		case <-time.After(50 * time.Millisecond):
			finished.Store(true)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	pool := task.NewWorkerPool(q, p, task.WorkerPoolConfig{WorkerCount: 1, DrainTimeout: waitFor}, discardLogger())
	pool.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), 1))
	<-started

	pool.Stop()

	assert.True(t, finished.Load(), "in-flight job finished before Stop returned")
}

func TestWorkerPool_DrainTimeoutCancelsJob(t *testing.T) {
	t.Parallel()

	q := queue.NewMemoryQueue(10, 10*time.Millisecond, discardLogger())
	started := make(chan struct{})
	var cancelled atomic.Bool
	p := task.ProcessorFunc(func(ctx context.Context, _ int64) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})

	pool := task.NewWorkerPool(q, p, task.WorkerPoolConfig{WorkerCount: 1, DrainTimeout: 20 * time.Millisecond}, discardLogger())
	pool.Start(context.Background())
	require.NoError(t, q.Enqueue(context.Background(), 1))
	<-started

	pool.Stop()

	assert.True(t, cancelled.Load())
}
