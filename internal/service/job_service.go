package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/queue"
	"github.com/phrazzld/leadgen-api/internal/redact"
	"github.com/phrazzld/leadgen-api/internal/store"
)

// Paging limits for ListResults.
const (
	DefaultResultsLimit = 100
	MaxResultsLimit     = 1000
)

// dispatchFailureMessage is stored on jobs whose message never reached the queue.
const dispatchFailureMessage = "failed to dispatch job"

// Exporter streams a job's leads as CSV.
type Exporter interface {
	Stream(ctx context.Context, w io.Writer, jobID int64) error
}

// JobService provides job-related operations
type JobService interface {
	// Submit creates a pending job and dispatches it to the workers.
	Submit(ctx context.Context, ownerID uuid.UUID, intent domain.Intent, leadCount int) (*domain.Job, error)

	// GetJob returns the job or ErrJobNotFound.
	GetJob(ctx context.Context, jobID int64) (*domain.Job, error)

	// ListResults returns up to limit leads of the job starting at skip.
	// A zero limit selects DefaultResultsLimit.
	ListResults(ctx context.Context, jobID int64, skip, limit int) ([]*domain.Lead, error)

	// ExportCSV streams the job's leads as CSV to w.
	ExportCSV(ctx context.Context, w io.Writer, jobID int64) error
}

type jobServiceImpl struct {
	jobs     store.JobStore
	producer queue.Producer
	exporter Exporter
	logger   *slog.Logger
}

// NewJobService creates a new JobService.
// It returns an error if any of the required dependencies are nil.
func NewJobService(
	jobs store.JobStore,
	producer queue.Producer,
	exporter Exporter,
	logger *slog.Logger,
) (JobService, error) {
	if jobs == nil {
		return nil, errors.New("job store cannot be nil")
	}
	if producer == nil {
		return nil, errors.New("queue producer cannot be nil")
	}
	if exporter == nil {
		return nil, errors.New("exporter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &jobServiceImpl{
		jobs:     jobs,
		producer: producer,
		exporter: exporter,
		logger:   logger.With(slog.String("component", "job_service")),
	}, nil
}

// Submit creates the job and enqueues it. If the enqueue fails the job is
// moved straight to failed so it cannot sit in pending forever.
func (s *jobServiceImpl) Submit(
	ctx context.Context,
	ownerID uuid.UUID,
	intent domain.Intent,
	leadCount int,
) (*domain.Job, error) {
	job, err := s.jobs.Create(ctx, ownerID, intent, leadCount)
	if err != nil {
		return nil, NewJobServiceError("submit", "failed to create job", err)
	}

	log := s.logger.With(slog.Int64("job_id", job.ID), slog.String("owner_id", ownerID.String()))

	if err := s.producer.Enqueue(ctx, job.ID); err != nil {
		log.ErrorContext(ctx, "failed to enqueue job", slog.String("error", redact.Error(err)))
		s.markDispatchFailed(ctx, log, job.ID)
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	log.InfoContext(ctx, "job submitted",
		slog.String("intent", string(job.Intent)),
		slog.Int("lead_count", job.LeadCount))
	return job, nil
}

func (s *jobServiceImpl) markDispatchFailed(ctx context.Context, log *slog.Logger, jobID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	msg := dispatchFailureMessage
	ok, err := s.jobs.Transition(ctx, jobID, domain.JobStatusPending, domain.JobStatusFailed,
		store.TransitionUpdate{CompletedAt: &now, ErrorMessage: &msg})
	switch {
	case err != nil:
		log.ErrorContext(ctx, "failed to mark undispatched job as failed",
			slog.String("error", redact.Error(err)))
	case !ok:
		log.WarnContext(ctx, "undispatched job was no longer pending")
	}
}

// GetJob returns the job or ErrJobNotFound.
func (s *jobServiceImpl) GetJob(ctx context.Context, jobID int64) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, NewJobServiceError("get_job", "failed to retrieve job", err)
	}
	return job, nil
}

// ListResults returns a page of the job's leads. An offset past the end
// yields an empty slice.
func (s *jobServiceImpl) ListResults(ctx context.Context, jobID int64, skip, limit int) ([]*domain.Lead, error) {
	if skip < 0 {
		return nil, domain.NewValidationError("skip", "must be zero or greater")
	}
	if limit == 0 {
		limit = DefaultResultsLimit
	}
	if limit < 0 || limit > MaxResultsLimit {
		return nil, domain.NewValidationError("limit",
			fmt.Sprintf("must be between 1 and %d", MaxResultsLimit))
	}

	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, NewJobServiceError("list_results", "failed to retrieve job", err)
	}

	leads, err := s.jobs.ListLeads(ctx, jobID, skip, limit)
	if err != nil {
		return nil, NewJobServiceError("list_results", "failed to list leads", err)
	}
	return leads, nil
}

// ExportCSV checks the job exists and streams its leads to w. Once the first
// byte has been written errors can no longer change the response status, so
// callers should only log errors returned after streaming began.
func (s *jobServiceImpl) ExportCSV(ctx context.Context, w io.Writer, jobID int64) error {
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return NewJobServiceError("export_csv", "failed to retrieve job", err)
	}

	if err := s.exporter.Stream(ctx, w, jobID); err != nil {
		return NewJobServiceError("export_csv", "failed to stream export", err)
	}
	return nil
}
