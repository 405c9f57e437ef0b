package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/events"
	"github.com/phrazzld/leadgen-api/internal/generation"
	"github.com/phrazzld/leadgen-api/internal/redact"
	"github.com/phrazzld/leadgen-api/internal/store"
)

// tracerName is the instrumentation scope name for job processing.
const tracerName = "github.com/phrazzld/leadgen-api/internal/task"

// finalizeTimeout bounds the terminal transition, which runs even after the
// processing context has been cancelled.
const finalizeTimeout = 10 * time.Second

// Processor handles one dispatch of a job.
type Processor interface {
	// Process runs the job identified by jobID. A nil return means the
	// message can be acknowledged.
	Process(ctx context.Context, jobID int64) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, jobID int64) error

// Process calls f(ctx, jobID).
func (f ProcessorFunc) Process(ctx context.Context, jobID int64) error {
	return f(ctx, jobID)
}

var _ Processor = (*JobProcessor)(nil)

// JobProcessor drives a job through its lifecycle and streams generated
// leads into the store.
type JobProcessor struct {
	jobs      store.JobStore
	generator generation.Generator
	emitter   events.EventEmitter
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// ProcessorOption configures a JobProcessor.
type ProcessorOption func(*JobProcessor)

// WithEventEmitter publishes lifecycle events to emitter.
func WithEventEmitter(emitter events.EventEmitter) ProcessorOption {
	return func(p *JobProcessor) { p.emitter = emitter }
}

// WithTracer replaces the globally registered tracer.
func WithTracer(tracer trace.Tracer) ProcessorOption {
	return func(p *JobProcessor) { p.tracer = tracer }
}

// WithClock overrides the time source used for started_at and completed_at.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *JobProcessor) { p.now = now }
}

// NewJobProcessor creates a JobProcessor.
func NewJobProcessor(
	jobs store.JobStore,
	generator generation.Generator,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *JobProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &JobProcessor{
		jobs:      jobs,
		generator: generator,
		tracer:    otel.Tracer(tracerName),
		logger:    logger.With(slog.String("component", "job_processor")),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one dispatch of jobID inside a tracing span.
func (p *JobProcessor) Process(ctx context.Context, jobID int64) error {
	ctx, span := p.tracer.Start(ctx, "leadgen.job.process",
		trace.WithAttributes(attribute.Int64("leadgen.job.id", jobID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	err := p.process(ctx, span, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, redact.Error(err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func (p *JobProcessor) process(ctx context.Context, span trace.Span, jobID int64) error {
	log := p.logger.With(slog.Int64("job_id", jobID))

	startedAt := p.now()
	zero := 0
	started, err := p.jobs.Transition(ctx, jobID, domain.JobStatusPending, domain.JobStatusProcessing,
		store.TransitionUpdate{StartedAt: &startedAt, Progress: &zero})
	if err != nil {
		return fmt.Errorf("start job %d: %w", jobID, err)
	}
	if !started {
		// Already claimed by another delivery, or the job no longer exists.
		log.DebugContext(ctx, "duplicate delivery ignored")
		span.SetAttributes(attribute.Bool("leadgen.job.duplicate", true))
		return nil
	}

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		genErr := fmt.Errorf("load job: %w", err)
		return p.finish(ctx, log, &domain.Job{ID: jobID, Status: domain.JobStatusProcessing}, 0, genErr)
	}

	span.SetAttributes(
		attribute.String("leadgen.job.intent", string(job.Intent)),
		attribute.Int("leadgen.job.lead_count", job.LeadCount),
	)
	log = log.With(slog.String("intent", string(job.Intent)), slog.Int("lead_count", job.LeadCount))
	log.InfoContext(ctx, "job processing started")
	p.emit(ctx, log, events.NewJobEvent(events.JobStarted, job), 0)

	stored, genErr := p.generate(ctx, job)
	span.SetAttributes(attribute.Int("leadgen.job.leads_stored", stored))

	return p.finish(ctx, log, job, stored, genErr)
}

// generate runs the generator, persisting each lead and reporting progress
// whenever the whole-percent value increases. A panic is returned as an error.
func (p *JobProcessor) generate(ctx context.Context, job *domain.Job) (stored int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrGeneratorPanic, r)
		}
	}()

	reported := 0
	discarded := 0
	req := generation.Request{JobID: job.ID, Intent: job.Intent, Count: job.LeadCount}

	err = p.generator.Generate(ctx, req, func(ctx context.Context, lead *domain.Lead) error {
		if lead == nil {
			return fmt.Errorf("%w: nil lead", generation.ErrInvalidResponse)
		}
		if stored >= job.LeadCount {
			discarded++
			return nil
		}

		if err := p.jobs.AppendLead(ctx, job.ID, lead); err != nil {
			return fmt.Errorf("append lead: %w", err)
		}
		stored++

		if pct := domain.Progress(stored, job.LeadCount); pct > reported {
			if _, err := p.jobs.UpdateProgress(ctx, job.ID, pct); err != nil {
				return fmt.Errorf("update progress: %w", err)
			}
			reported = pct
			job.Progress = pct
		}
		return nil
	})

	if discarded > 0 {
		p.logger.WarnContext(ctx, "generator emitted more leads than requested",
			slog.Int64("job_id", job.ID),
			slog.Int("discarded", discarded))
	}
	return stored, err
}

// finish applies the terminal transition for genErr and decides what the
// transport should do with the message.
func (p *JobProcessor) finish(
	ctx context.Context,
	log *slog.Logger,
	job *domain.Job,
	stored int,
	genErr error,
) error {
	// The terminal state is written even when ctx was cancelled mid-run.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	completedAt := p.now()
	next := domain.JobStatusCompleted
	update := store.TransitionUpdate{CompletedAt: &completedAt}

	if genErr == nil {
		full := 100
		update.Progress = &full
	} else {
		next = domain.JobStatusFailed
		msg := redact.Error(genErr)
		update.ErrorMessage = &msg
	}

	ok, err := p.jobs.Transition(fctx, job.ID, domain.JobStatusProcessing, next, update)
	if err != nil {
		log.ErrorContext(ctx, "failed to record terminal job state",
			slog.String("target_status", string(next)),
			slog.String("error", redact.Error(err)))
		return fmt.Errorf("finish job %d: %w", job.ID, err)
	}
	if !ok {
		log.WarnContext(ctx, "job state changed concurrently",
			slog.String("target_status", string(next)))
		return nil
	}

	job.Status = next
	job.CompletedAt = &completedAt
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	job.ErrorMessage = update.ErrorMessage

	switch {
	case genErr == nil:
		log.InfoContext(ctx, "job completed", slog.Int("leads_stored", stored))
		p.emit(fctx, log, events.NewJobEvent(events.JobCompleted, job), stored)
		return nil

	case errors.Is(genErr, generation.ErrNotImplemented):
		log.WarnContext(ctx, "job failed: capability unavailable",
			slog.String("error", *update.ErrorMessage))
		p.emit(fctx, log, events.NewJobEvent(events.JobFailed, job), stored)
		return nil

	default:
		log.ErrorContext(ctx, "job failed",
			slog.String("error", *update.ErrorMessage),
			slog.Int("leads_stored", stored))
		p.emit(fctx, log, events.NewJobEvent(events.JobFailed, job), stored)
		return &UnexpectedFailureError{JobID: job.ID, Err: genErr}
	}
}

func (p *JobProcessor) emit(ctx context.Context, log *slog.Logger, event *events.JobEvent, stored int) {
	if p.emitter == nil {
		return
	}
	event.LeadCount = stored
	if err := p.emitter.EmitEvent(ctx, event); err != nil {
		log.WarnContext(ctx, "failed to emit job event",
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()))
	}
}
