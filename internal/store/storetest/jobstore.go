// Package storetest holds behavioral tests shared by every store.JobStore
// implementation. Backends call RunJobStoreTests from their own _test files.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/store"
)

// Factory returns a JobStore and an owner ID that already exists in it.
type Factory func(t *testing.T) (store.JobStore, uuid.UUID)

// RunJobStoreTests exercises the JobStore contract against newStore.
func RunJobStoreTests(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore) })
	t.Run("CreateValidation", func(t *testing.T) { testCreateValidation(t, newStore) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore) })
	t.Run("TransitionCAS", func(t *testing.T) { testTransitionCAS(t, newStore) })
	t.Run("TransitionConcurrent", func(t *testing.T) { testTransitionConcurrent(t, newStore) })
	t.Run("TransitionIllegalEdge", func(t *testing.T) { testTransitionIllegalEdge(t, newStore) })
	t.Run("AppendLeadRequiresProcessing", func(t *testing.T) { testAppendLeadState(t, newStore) })
	t.Run("ListLeadsPaging", func(t *testing.T) { testListLeadsPaging(t, newStore) })
	t.Run("ProgressMonotonic", func(t *testing.T) { testProgressMonotonic(t, newStore) })
	t.Run("ListByStatus", func(t *testing.T) { testListByStatus(t, newStore) })
}

// CreateProcessingJob creates a job and moves it to processing.
func CreateProcessingJob(t *testing.T, s store.JobStore, ownerID uuid.UUID, count int) *domain.Job {
	t.Helper()
	ctx := context.Background()

	job, err := s.Create(ctx, ownerID, domain.IntentSales, count)
	require.NoError(t, err)

	now := time.Now().UTC()
	ok, err := s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing,
		store.TransitionUpdate{StartedAt: &now})
	require.NoError(t, err)
	require.True(t, ok)

	job.Status = domain.JobStatusProcessing
	return job
}

func testCreateAndGet(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	job, err := s.Create(ctx, ownerID, domain.IntentCareer, 50)
	require.NoError(t, err)
	assert.NotZero(t, job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, 50, job.LeadCount)

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, ownerID, got.OwnerID)
	assert.Equal(t, domain.IntentCareer, got.Intent)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)

	other, err := s.Create(ctx, ownerID, domain.IntentGrowth, 1)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, other.ID)
}

func testCreateValidation(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, ownerID, domain.IntentCareer, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Create(ctx, ownerID, domain.IntentCareer, domain.MaxLeadCount+1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Create(ctx, ownerID, domain.Intent("bogus"), 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func testGetMissing(t *testing.T, newStore Factory) {
	s, _ := newStore(t)

	_, err := s.GetByID(context.Background(), 987654321)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func testTransitionCAS(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	job, err := s.Create(ctx, ownerID, domain.IntentSales, 10)
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Millisecond)
	zero := 0
	ok, err := s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing,
		store.TransitionUpdate{StartedAt: &started, Progress: &zero})
	require.NoError(t, err)
	assert.True(t, ok)

	// A second claim sees processing, not pending.
	ok, err = s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing,
		store.TransitionUpdate{StartedAt: &started})
	require.NoError(t, err)
	assert.False(t, ok)

	completed := started.Add(time.Second)
	hundred := 100
	ok, err = s.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusCompleted,
		store.TransitionUpdate{CompletedAt: &completed, Progress: &hundred})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, started, *got.StartedAt, time.Millisecond)
	assert.False(t, got.CompletedAt.Before(*got.StartedAt))

	// Terminal states never move again.
	ok, err = s.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusFailed, store.TransitionUpdate{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Transition(ctx, 987654321, domain.JobStatusPending, domain.JobStatusProcessing, store.TransitionUpdate{})
	require.NoError(t, err)
	assert.False(t, ok, "missing job reports false without error")
}

func testTransitionConcurrent(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	job, err := s.Create(ctx, ownerID, domain.IntentSales, 10)
	require.NoError(t, err)

	const racers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now().UTC()
			ok, err := s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing,
				store.TransitionUpdate{StartedAt: &now})
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one caller wins the claim")
}

func testTransitionIllegalEdge(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	job, err := s.Create(ctx, ownerID, domain.IntentSales, 10)
	require.NoError(t, err)

	_, err = s.Transition(ctx, job.ID, domain.JobStatusCompleted, domain.JobStatusPending, store.TransitionUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = s.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusCompleted, store.TransitionUpdate{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func testAppendLeadState(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	pending, err := s.Create(ctx, ownerID, domain.IntentSales, 10)
	require.NoError(t, err)

	err = s.AppendLead(ctx, pending.ID, &domain.Lead{Confidence: 0.5})
	assert.ErrorIs(t, err, store.ErrInvalidState)

	err = s.AppendLead(ctx, 987654321, &domain.Lead{Confidence: 0.5})
	assert.ErrorIs(t, err, store.ErrJobNotFound)

	job := CreateProcessingJob(t, s, ownerID, 10)
	lead := &domain.Lead{
		Name:       domain.OptionalString("Jane Doe"),
		Company:    domain.OptionalString("Acme"),
		Confidence: 0.95,
	}
	require.NoError(t, s.AppendLead(ctx, job.ID, lead))
	assert.NotZero(t, lead.ID)
	assert.Equal(t, job.ID, lead.JobID)

	err = s.AppendLead(ctx, job.ID, &domain.Lead{Confidence: 2})
	assert.True(t, errors.Is(err, store.ErrInvalidEntity) || errors.Is(err, domain.ErrValidation))

	now := time.Now().UTC()
	ok, err := s.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusCompleted,
		store.TransitionUpdate{CompletedAt: &now})
	require.NoError(t, err)
	require.True(t, ok)

	err = s.AppendLead(ctx, job.ID, &domain.Lead{Confidence: 0.5})
	assert.ErrorIs(t, err, store.ErrInvalidState)

	count, err := s.CountLeads(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func testListLeadsPaging(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	job := CreateProcessingJob(t, s, ownerID, 25)
	for i := 0; i < 25; i++ {
		require.NoError(t, s.AppendLead(ctx, job.ID, &domain.Lead{Confidence: float64(i) / 100}))
	}

	first, err := s.ListLeads(ctx, job.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, first, 10)

	second, err := s.ListLeads(ctx, job.ID, 10, 10)
	require.NoError(t, err)
	require.Len(t, second, 10)
	assert.Less(t, first[9].ID, second[0].ID, "pages follow insertion order")
	assert.InDelta(t, 0.10, second[0].Confidence, 1e-9)

	last, err := s.ListLeads(ctx, job.ID, 20, 10)
	require.NoError(t, err)
	assert.Len(t, last, 5)

	beyond, err := s.ListLeads(ctx, job.ID, 100, 10)
	require.NoError(t, err)
	assert.NotNil(t, beyond)
	assert.Empty(t, beyond)

	none, err := s.ListLeads(ctx, 987654321, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testProgressMonotonic(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	pending, err := s.Create(ctx, ownerID, domain.IntentSales, 10)
	require.NoError(t, err)
	ok, err := s.UpdateProgress(ctx, pending.ID, 50)
	require.NoError(t, err)
	assert.False(t, ok, "progress only moves while processing")

	job := CreateProcessingJob(t, s, ownerID, 10)

	ok, err = s.UpdateProgress(ctx, job.ID, 40)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.UpdateProgress(ctx, job.ID, 20)
	require.NoError(t, err)

	_, err = s.UpdateProgress(ctx, job.ID, 250)
	require.NoError(t, err)

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)

	low := 10
	now := time.Now().UTC()
	ok, err = s.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusFailed,
		store.TransitionUpdate{CompletedAt: &now, Progress: &low})
	require.NoError(t, err)
	require.True(t, ok)

	got, err = s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress, "a transition never lowers progress")
}

func testListByStatus(t *testing.T, newStore Factory) {
	s, ownerID := newStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, ownerID, domain.IntentSales, 10)
	require.NoError(t, err)
	b, err := s.Create(ctx, ownerID, domain.IntentSales, 10)
	require.NoError(t, err)
	processing := CreateProcessingJob(t, s, ownerID, 10)

	future := time.Now().UTC().Add(time.Hour)
	pending, err := s.ListByStatus(ctx, domain.JobStatusPending, future, 100)
	require.NoError(t, err)

	ids := make([]int64, 0, len(pending))
	for _, j := range pending {
		assert.Equal(t, domain.JobStatusPending, j.Status)
		ids = append(ids, j.ID)
	}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)
	assert.NotContains(t, ids, processing.ID)

	past := time.Now().UTC().Add(-time.Hour)
	none, err := s.ListByStatus(ctx, domain.JobStatusPending, past, 100)
	require.NoError(t, err)
	assert.Empty(t, none)

	limited, err := s.ListByStatus(ctx, domain.JobStatusPending, future, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
