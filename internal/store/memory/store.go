// Package memory provides in-process implementations of the store contracts.
// They are safe for concurrent use and intended for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/store"
)

var (
	_ store.JobStore   = (*JobStore)(nil)
	_ store.OwnerStore = (*OwnerStore)(nil)
)

// JobStore keeps jobs and their leads in maps guarded by a single mutex,
// which makes Transition and AppendLead trivially atomic.
type JobStore struct {
	mu         sync.Mutex
	nextJobID  int64
	nextLeadID int64
	jobs       map[int64]*domain.Job
	leads      map[int64][]*domain.Lead
}

// NewJobStore returns an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:  make(map[int64]*domain.Job),
		leads: make(map[int64][]*domain.Lead),
	}
}

// Create persists a new pending job.
func (s *JobStore) Create(
	_ context.Context,
	ownerID uuid.UUID,
	intent domain.Intent,
	leadCount int,
) (*domain.Job, error) {
	job, err := domain.NewJob(ownerID, intent, leadCount)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	job.ID = s.nextJobID
	s.jobs[job.ID] = job
	return copyJob(job), nil
}

// GetByID returns a copy of the job.
func (s *JobStore) GetByID(_ context.Context, id int64) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return copyJob(job), nil
}

// Transition applies a compare-and-swap status change.
func (s *JobStore) Transition(
	_ context.Context,
	id int64,
	expected, next domain.JobStatus,
	update store.TransitionUpdate,
) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, expected, next)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != expected {
		return false, nil
	}

	job.Status = next
	if update.StartedAt != nil {
		t := update.StartedAt.UTC()
		job.StartedAt = &t
	}
	if update.CompletedAt != nil {
		t := update.CompletedAt.UTC()
		job.CompletedAt = &t
	}
	if update.Progress != nil {
		job.Progress = max(job.Progress, clampProgress(*update.Progress))
	}
	if update.ErrorMessage != nil {
		msg := *update.ErrorMessage
		job.ErrorMessage = &msg
	}
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

// UpdateProgress raises progress on a processing job.
func (s *JobStore) UpdateProgress(_ context.Context, id int64, progress int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return false, nil
	}
	job.Progress = max(job.Progress, clampProgress(progress))
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

// AppendLead stores a lead for a processing job.
func (s *JobStore) AppendLead(_ context.Context, jobID int64, lead *domain.Lead) error {
	if err := lead.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return fmt.Errorf("%w: job %d is %s", store.ErrInvalidState, jobID, job.Status)
	}

	s.nextLeadID++
	lead.ID = s.nextLeadID
	lead.JobID = jobID
	lead.CreatedAt = time.Now().UTC()

	cp := *lead
	s.leads[jobID] = append(s.leads[jobID], &cp)
	return nil
}

// ListLeads returns a page of leads in insertion order.
func (s *JobStore) ListLeads(_ context.Context, jobID int64, offset, limit int) ([]*domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.leads[jobID]
	offset = max(offset, 0)
	if limit <= 0 || offset >= len(all) {
		return []*domain.Lead{}, nil
	}

	end := min(offset+limit, len(all))
	page := make([]*domain.Lead, 0, end-offset)
	for _, l := range all[offset:end] {
		cp := *l
		page = append(page, &cp)
	}
	return page, nil
}

// CountLeads returns the number of leads stored for the job.
func (s *JobStore) CountLeads(_ context.Context, jobID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads[jobID]), nil
}

// ListByStatus returns jobs in status older than olderThan, oldest first.
func (s *JobStore) ListByStatus(
	_ context.Context,
	status domain.JobStatus,
	olderThan time.Time,
	limit int,
) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.Status == status && referenceTime(job).Before(olderThan) {
			matches = append(matches, copyJob(job))
		}
	}

	sort.Slice(matches, func(i, k int) bool {
		ti, tk := referenceTime(matches[i]), referenceTime(matches[k])
		if ti.Equal(tk) {
			return matches[i].ID < matches[k].ID
		}
		return ti.Before(tk)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func referenceTime(job *domain.Job) time.Time {
	if job.StartedAt != nil {
		return *job.StartedAt
	}
	return job.CreatedAt
}

func clampProgress(p int) int {
	return min(max(p, 0), 100)
}

// copyJob returns a deep copy so callers can mutate without racing with the store.
func copyJob(j *domain.Job) *domain.Job {
	cp := *j
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		cp.ErrorMessage = &msg
	}
	if j.ResultURL != nil {
		u := *j.ResultURL
		cp.ResultURL = &u
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// OwnerStore keeps owners in a map.
type OwnerStore struct {
	mu     sync.RWMutex
	owners map[uuid.UUID]*domain.Owner
}

// NewOwnerStore returns an empty OwnerStore.
func NewOwnerStore() *OwnerStore {
	return &OwnerStore{owners: make(map[uuid.UUID]*domain.Owner)}
}

// EnsureOwner inserts the owner unless one with the same ID exists.
func (s *OwnerStore) EnsureOwner(_ context.Context, owner *domain.Owner) error {
	if err := owner.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.owners[owner.ID]; !exists {
		cp := *owner
		s.owners[owner.ID] = &cp
	}
	return nil
}

// GetByID returns the owner or store.ErrOwnerNotFound.
func (s *OwnerStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.owners[id]
	if !ok {
		return nil, store.ErrOwnerNotFound
	}
	cp := *owner
	return &cp, nil
}
