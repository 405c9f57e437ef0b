package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/leadgen-api/internal/domain"
)

// TransitionUpdate carries the optional column changes applied together with a
// status change. Nil fields are left untouched.
type TransitionUpdate struct {
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Progress     *int
	ErrorMessage *string
}

// JobStore defines persistence for jobs and the leads they produce.
// It is the single source of truth for job state; every implementation must
// make Transition and AppendLead atomic with respect to concurrent callers.
type JobStore interface {
	// Create validates and persists a new pending job with zero progress.
	// Returns a domain.ValidationError for a bad intent or lead count.
	Create(ctx context.Context, ownerID uuid.UUID, intent domain.Intent, leadCount int) (*domain.Job, error)

	// GetByID returns the job or ErrJobNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Job, error)

	// Transition atomically moves the job from expected to next and applies update,
	// only if the stored status still equals expected. It reports false without
	// an error when the status differs or the job does not exist.
	// Illegal edges are refused with domain.ErrInvalidTransition.
	Transition(ctx context.Context, id int64, expected, next domain.JobStatus, update TransitionUpdate) (bool, error)

	// UpdateProgress raises the job's progress while it is processing.
	// Progress never decreases. Reports false when the job is not processing.
	UpdateProgress(ctx context.Context, id int64, progress int) (bool, error)

	// AppendLead persists a lead for a processing job and assigns its ID.
	// Returns ErrInvalidState if the job is in any other state and
	// ErrJobNotFound if it does not exist.
	AppendLead(ctx context.Context, jobID int64, lead *domain.Lead) error

	// ListLeads returns at most limit leads in insertion order starting at offset.
	// Returns an empty slice, never an error, when the range holds no leads.
	ListLeads(ctx context.Context, jobID int64, offset, limit int) ([]*domain.Lead, error)

	// CountLeads returns the number of leads stored for the job.
	CountLeads(ctx context.Context, jobID int64) (int, error)

	// ListByStatus returns up to limit jobs in status whose reference time is
	// before olderThan, oldest first. The reference time is started_at when set
	// and created_at otherwise.
	ListByStatus(ctx context.Context, status domain.JobStatus, olderThan time.Time, limit int) ([]*domain.Job, error)
}

// OwnerStore defines persistence for job owners.
type OwnerStore interface {
	// EnsureOwner inserts the owner if no owner with the same ID exists.
	EnsureOwner(ctx context.Context, owner *domain.Owner) error

	// GetByID returns the owner or ErrOwnerNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Owner, error)
}
