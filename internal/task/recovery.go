package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/queue"
	"github.com/phrazzld/leadgen-api/internal/store"
)

// recoverBatchLimit caps how many pending jobs one recovery pass re-enqueues.
const recoverBatchLimit = 1000

// RecoverPending re-enqueues pending jobs created more than olderThan ago.
// Such jobs were accepted but their dispatch message was lost, for example
// when the in-memory transport was torn down by a restart. Re-enqueueing is
// safe: a job that is already running ignores the extra message.
//
// It returns the number of jobs re-enqueued. Enqueue failures are logged and
// skipped so one full queue does not abort startup.
func RecoverPending(
	ctx context.Context,
	jobs store.JobStore,
	producer queue.Producer,
	olderThan time.Duration,
	logger *slog.Logger,
) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pending, err := jobs.ListByStatus(ctx, domain.JobStatusPending, time.Now().Add(-olderThan), recoverBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	logger.InfoContext(ctx, "recovering unfinished jobs", "pending_count", len(pending))

	requeued := 0
	for _, job := range pending {
		if err := producer.Enqueue(ctx, job.ID); err != nil {
			logger.ErrorContext(ctx, "failed to requeue pending job",
				"job_id", job.ID,
				"error", err)
			continue
		}
		requeued++
	}
	return requeued, nil
}
