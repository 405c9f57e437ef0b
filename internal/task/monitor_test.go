package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/platform/logger"
	"github.com/phrazzld/leadgen-api/internal/queue"
	"github.com/phrazzld/leadgen-api/internal/store"
	"github.com/phrazzld/leadgen-api/internal/store/memory"
	"github.com/phrazzld/leadgen-api/internal/task"
)

func startJob(t *testing.T, s store.JobStore, id int64, at time.Time) {
	t.Helper()
	ok, err := s.Transition(context.Background(), id, domain.JobStatusPending, domain.JobStatusProcessing,
		store.TransitionUpdate{StartedAt: &at})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStuckJobMonitor_LogsOnly(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	stuck := createJob(t, jobs, 10)
	fresh := createJob(t, jobs, 10)
	createJob(t, jobs, 10) // still pending

	startJob(t, jobs, stuck.ID, time.Now().Add(-2*time.Hour))
	startJob(t, jobs, fresh.ID, time.Now())

	log, buf := logger.GetTestLogger(t)
	m := task.NewStuckJobMonitor(jobs, 30*time.Minute, time.Minute, log)

	n, err := m.Check(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	logger.AssertLogContains(t, buf, "job stuck in processing")
	logger.AssertLogField(t, buf, "job_id", float64(stuck.ID))

	got, err := jobs.GetByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status, "monitor never changes state")
}

func TestStuckJobMonitor_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	m := task.NewStuckJobMonitor(memory.NewJobStore(), time.Minute, 5*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("monitor did not stop")
	}
}

func TestRecoverPending(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	a := createJob(t, jobs, 5)
	b := createJob(t, jobs, 5)
	running := createJob(t, jobs, 5)
	startJob(t, jobs, running.ID, time.Now())
	time.Sleep(5 * time.Millisecond)

	q := queue.NewMemoryQueue(10, 10*time.Millisecond, discardLogger())

	n, err := task.RecoverPending(context.Background(), jobs, q, 0, discardLogger())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, q.Len())

	var ids []int64
	for i := 0; i < 2; i++ {
		msgs, err := q.Read(context.Background())
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		ids = append(ids, msgs[0].JobID)
	}
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, ids)
}

func TestRecoverPending_SkipsRecentJobs(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	createJob(t, jobs, 5)
	q := queue.NewMemoryQueue(10, 10*time.Millisecond, discardLogger())

	n, err := task.RecoverPending(context.Background(), jobs, q, time.Hour, discardLogger())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, q.Len())
}

func TestRecoverPending_ContinuesPastEnqueueErrors(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	createJob(t, jobs, 5)
	createJob(t, jobs, 5)
	time.Sleep(5 * time.Millisecond)
	q := queue.NewMemoryQueue(1, 10*time.Millisecond, discardLogger())

	n, err := task.RecoverPending(context.Background(), jobs, q, 0, discardLogger())

	require.NoError(t, err)
	assert.Equal(t, 1, n, "second enqueue hits a full queue")
}
