package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/store"
)

// stuckJobScanLimit caps how many stuck jobs one check reports.
const stuckJobScanLimit = 100

// StuckJobMonitor periodically reports jobs that have been processing for
// longer than a threshold. It only logs: a stuck job is never reset or failed,
// because the worker that owns it may still be running.
type StuckJobMonitor struct {
	jobs     store.JobStore
	age      time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewStuckJobMonitor creates a monitor that checks every interval for jobs
// processing longer than age.
func NewStuckJobMonitor(jobs store.JobStore, age, interval time.Duration, logger *slog.Logger) *StuckJobMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StuckJobMonitor{
		jobs:     jobs,
		age:      age,
		interval: interval,
		logger:   logger.With(slog.String("component", "stuck_job_monitor")),
		now:      time.Now,
	}
}

// Run checks on every tick until ctx is cancelled.
func (m *StuckJobMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
				m.logger.ErrorContext(ctx, "failed to check for stuck jobs", "error", err)
			}
		}
	}
}

// Check logs a warning for each stuck job and returns how many it found.
func (m *StuckJobMonitor) Check(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.age)
	stuck, err := m.jobs.ListByStatus(ctx, domain.JobStatusProcessing, cutoff, stuckJobScanLimit)
	if err != nil {
		return 0, err
	}

	for _, job := range stuck {
		attrs := []any{
			"job_id", job.ID,
			"progress", job.Progress,
			"threshold", m.age.String(),
		}
		if job.StartedAt != nil {
			attrs = append(attrs, "processing_for", m.now().Sub(*job.StartedAt).Round(time.Second).String())
		}
		m.logger.WarnContext(ctx, "job stuck in processing", attrs...)
	}
	if len(stuck) > 0 {
		m.logger.InfoContext(ctx, "found stuck jobs", "count", len(stuck))
	}
	return len(stuck), nil
}
