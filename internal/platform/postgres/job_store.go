package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/platform/logger"
	"github.com/phrazzld/leadgen-api/internal/store"
)

const jobColumns = `id, owner_id, intent, lead_count, status, progress, error_message,
	result_url, created_at, updated_at, started_at, completed_at`

// PostgresJobStore implements store.JobStore on PostgreSQL.
// Every state-conditioned write is a single statement so that concurrent
// workers coordinate through row locks rather than application locks.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a PostgresJobStore over a connection or transaction.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

var _ store.JobStore = (*PostgresJobStore)(nil)

// Create implements store.JobStore.Create.
func (s *PostgresJobStore) Create(
	ctx context.Context,
	ownerID uuid.UUID,
	intent domain.Intent,
	leadCount int,
) (*domain.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	job, err := domain.NewJob(ownerID, intent, leadCount)
	if err != nil {
		log.Debug("job validation failed", slog.String("error", err.Error()))
		return nil, err
	}

	query := `
		INSERT INTO jobs (owner_id, intent, lead_count, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		job.OwnerID, string(job.Intent), job.LeadCount, string(job.Status), job.CreatedAt,
	).Scan(&job.ID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("job owner does not exist", slog.String("owner_id", ownerID.String()))
			return nil, fmt.Errorf("%w: owner %s not found", store.ErrInvalidEntity, ownerID)
		}
		log.Error("failed to create job",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
		return nil, MapError(err)
	}

	log.Info("job created",
		slog.Int64("job_id", job.ID),
		slog.String("intent", string(job.Intent)),
		slog.Int("lead_count", job.LeadCount))
	return job, nil
}

// GetByID implements store.JobStore.GetByID.
func (s *PostgresJobStore) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get job",
			slog.Int64("job_id", id),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return job, nil
}

// Transition implements store.JobStore.Transition as one conditional UPDATE.
func (s *PostgresJobStore) Transition(
	ctx context.Context,
	id int64,
	expected, next domain.JobStatus,
	update store.TransitionUpdate,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !expected.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, expected, next)
	}

	var progress *int
	if update.Progress != nil {
		p := min(max(*update.Progress, 0), 100)
		progress = &p
	}

	query := `
		UPDATE jobs
		SET status = $3,
			started_at = COALESCE($4, started_at),
			completed_at = COALESCE($5, completed_at),
			progress = GREATEST(progress, COALESCE($6, progress)),
			error_message = COALESCE($7, error_message),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		id, string(expected), string(next),
		nullTime(update.StartedAt), nullTime(update.CompletedAt),
		nullInt(progress), nullString(update.ErrorMessage),
	)
	if err != nil {
		log.Error("failed to transition job",
			slog.Int64("job_id", id),
			slog.String("from", string(expected)),
			slog.String("to", string(next)),
			slog.String("error", err.Error()))
		return false, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	log.Debug("job transition attempted",
		slog.Int64("job_id", id),
		slog.String("from", string(expected)),
		slog.String("to", string(next)),
		slog.Bool("applied", rows == 1))
	return rows == 1, nil
}

// UpdateProgress implements store.JobStore.UpdateProgress.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, id int64, progress int) (bool, error) {
	progress = min(max(progress, 0), 100)

	query := `
		UPDATE jobs
		SET progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	result, err := s.db.ExecContext(ctx, query, id, progress)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update job progress",
			slog.Int64("job_id", id),
			slog.Int("progress", progress),
			slog.String("error", err.Error()))
		return false, MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// AppendLead implements store.JobStore.AppendLead. The insert selects from the
// job row under FOR SHARE, so a concurrent terminal transition waits for it.
func (s *PostgresJobStore) AppendLead(ctx context.Context, jobID int64, lead *domain.Lead) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := lead.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO leads (job_id, name, email, company, title, source_url, confidence)
		SELECT j.id, $2, $3, $4, $5, $6, $7
		FROM jobs j
		WHERE j.id = $1 AND j.status = 'processing'
		FOR SHARE
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, jobID,
		nullString(lead.Name), nullString(lead.Email), nullString(lead.Company),
		nullString(lead.Title), nullString(lead.SourceURL), lead.Confidence,
	).Scan(&lead.ID, &lead.CreatedAt)
	if err == nil {
		lead.JobID = jobID
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to append lead",
			slog.Int64("job_id", jobID),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	// Nothing was inserted: tell a missing job apart from one in the wrong state.
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrJobNotFound
	}
	if err != nil {
		return MapError(err)
	}
	log.Warn("lead rejected for job not in processing state",
		slog.Int64("job_id", jobID),
		slog.String("status", status))
	return fmt.Errorf("%w: job %d is %s", store.ErrInvalidState, jobID, status)
}

// ListLeads implements store.JobStore.ListLeads.
func (s *PostgresJobStore) ListLeads(ctx context.Context, jobID int64, offset, limit int) ([]*domain.Lead, error) {
	leads := []*domain.Lead{}
	if limit <= 0 {
		return leads, nil
	}
	offset = max(offset, 0)

	query := `
		SELECT id, job_id, name, email, company, title, source_url, confidence, created_at
		FROM leads
		WHERE job_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, jobID, limit, offset)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list leads",
			slog.Int64("job_id", jobID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			l                                     domain.Lead
			name, email, company, title, sourceURL sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.JobID, &name, &email, &company, &title,
			&sourceURL, &l.Confidence, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		l.Name = stringPtr(name)
		l.Email = stringPtr(email)
		l.Company = stringPtr(company)
		l.Title = stringPtr(title)
		l.SourceURL = stringPtr(sourceURL)
		leads = append(leads, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lead rows: %w", err)
	}
	return leads, nil
}

// CountLeads implements store.JobStore.CountLeads.
func (s *PostgresJobStore) CountLeads(ctx context.Context, jobID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads WHERE job_id = $1`, jobID).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}

// ListByStatus implements store.JobStore.ListByStatus.
func (s *PostgresJobStore) ListByStatus(
	ctx context.Context,
	status domain.JobStatus,
	olderThan time.Time,
	limit int,
) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND COALESCE(started_at, created_at) < $2
		ORDER BY COALESCE(started_at, created_at) ASC, id ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, string(status), olderThan.UTC(), limit)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list jobs by status",
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	jobs := []*domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                     domain.Job
		intent, status          string
		errorMessage, resultURL sql.NullString
		startedAt, completedAt  sql.NullTime
	)
	if err := row.Scan(
		&job.ID, &job.OwnerID, &intent, &job.LeadCount, &status, &job.Progress,
		&errorMessage, &resultURL, &job.CreatedAt, &job.UpdatedAt, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	job.Intent = domain.Intent(intent)
	job.Status = domain.JobStatus(status)
	job.ErrorMessage = stringPtr(errorMessage)
	job.ResultURL = stringPtr(resultURL)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completedAt)
	return &job, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(i *int) sql.NullInt32 {
	if i == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*i), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
