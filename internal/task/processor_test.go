package task_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/phrazzld/leadgen-api/internal/domain"
	"github.com/phrazzld/leadgen-api/internal/events"
	"github.com/phrazzld/leadgen-api/internal/generation"
	"github.com/phrazzld/leadgen-api/internal/store"
	"github.com/phrazzld/leadgen-api/internal/store/memory"
	"github.com/phrazzld/leadgen-api/internal/task"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// progressRecorder wraps a JobStore and records every progress update.
type progressRecorder struct {
	store.JobStore
	mu      sync.Mutex
	updates []int
}

func (r *progressRecorder) UpdateProgress(ctx context.Context, id int64, progress int) (bool, error) {
	r.mu.Lock()
	r.updates = append(r.updates, progress)
	r.mu.Unlock()
	return r.JobStore.UpdateProgress(ctx, id, progress)
}

// eventLog collects lifecycle event types in order.
type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) emitter() *events.InMemoryEventEmitter {
	emitter := events.NewInMemoryEventEmitter(discardLogger())
	emitter.RegisterHandler(events.EventHandlerFunc(func(_ context.Context, e *events.JobEvent) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.types = append(l.types, e.Type)
		return nil
	}))
	return emitter
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types...)
}

// emitN returns a generator that emits n valid leads and then returns err.
func emitN(n int, err error) generation.Generator {
	return generation.GeneratorFunc(func(ctx context.Context, _ generation.Request, emit generation.EmitFunc) error {
		for i := 0; i < n; i++ {
			if e := emit(ctx, &domain.Lead{Company: domain.OptionalString("Acme"), Confidence: 0.9}); e != nil {
				return e
			}
		}
		return err
	})
}

func createJob(t *testing.T, s store.JobStore, count int) *domain.Job {
	t.Helper()
	job, err := s.Create(context.Background(), uuid.New(), domain.IntentCareer, count)
	require.NoError(t, err)
	return job
}

func TestProcess_CompletesJob(t *testing.T) {
	t.Parallel()

	base := memory.NewJobStore()
	jobs := &progressRecorder{JobStore: base}
	log := &eventLog{}
	job := createJob(t, base, 50)

	p := task.NewJobProcessor(jobs, generation.Sample{}, discardLogger(), task.WithEventEmitter(log.emitter()))
	require.NoError(t, p.Process(context.Background(), job.ID))

	got, err := base.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)

	n, err := base.CountLeads(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	require.NotEmpty(t, jobs.updates)
	assert.IsNonDecreasing(t, jobs.updates)
	assert.Equal(t, 100, jobs.updates[len(jobs.updates)-1])
	assert.Len(t, jobs.updates, 50, "every lead of 50 moves the percentage")

	assert.Equal(t, []string{events.JobStarted, events.JobCompleted}, log.snapshot())
}

func TestProcess_ProgressReportedOnlyOnPercentChange(t *testing.T) {
	t.Parallel()

	base := memory.NewJobStore()
	jobs := &progressRecorder{JobStore: base}
	job := createJob(t, base, 1000)

	p := task.NewJobProcessor(jobs, generation.Sample{}, discardLogger())
	require.NoError(t, p.Process(context.Background(), job.ID))

	assert.Len(t, jobs.updates, 100)
	assert.IsIncreasing(t, jobs.updates)
}

func TestProcess_NotImplementedFailsWithoutEscalation(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	log := &eventLog{}
	job := createJob(t, jobs, 50)

	p := task.NewJobProcessor(jobs, generation.Placeholder{}, discardLogger(), task.WithEventEmitter(log.emitter()))
	err := p.Process(context.Background(), job.ID)

	require.NoError(t, err)
	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Real scraper logic is not implemented yet.", *got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, []string{events.JobStarted, events.JobFailed}, log.snapshot())
}

func TestProcess_UnexpectedFailureIsReturned(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	job := createJob(t, jobs, 10)
	boom := errors.New("upstream exploded")

	p := task.NewJobProcessor(jobs, emitN(3, boom), discardLogger())
	err := p.Process(context.Background(), job.ID)

	var unexpected *task.UnexpectedFailureError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, job.ID, unexpected.JobID)
	assert.ErrorIs(t, err, boom)

	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, 30, got.Progress, "progress keeps its last reported value")
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "upstream exploded", *got.ErrorMessage)
}

func TestProcess_GeneratorPanicIsRecovered(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	job := createJob(t, jobs, 10)
	panicky := generation.GeneratorFunc(func(context.Context, generation.Request, generation.EmitFunc) error {
		panic("nil map write")
	})

	p := task.NewJobProcessor(jobs, panicky, discardLogger())
	err := p.Process(context.Background(), job.ID)

	assert.ErrorIs(t, err, task.ErrGeneratorPanic)
	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
}

func TestProcess_InvalidLeadFailsJob(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	job := createJob(t, jobs, 10)
	bad := generation.GeneratorFunc(func(ctx context.Context, _ generation.Request, emit generation.EmitFunc) error {
		return emit(ctx, &domain.Lead{Confidence: 2})
	})

	p := task.NewJobProcessor(jobs, bad, discardLogger())
	err := p.Process(context.Background(), job.ID)

	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
}

func TestProcess_DiscardsLeadsBeyondCount(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	job := createJob(t, jobs, 5)

	p := task.NewJobProcessor(jobs, emitN(12, nil), discardLogger())
	require.NoError(t, p.Process(context.Background(), job.ID))

	n, err := jobs.CountLeads(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestProcess_DuplicateDeliveryRunsGeneratorOnce(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	job := createJob(t, jobs, 20)

	var calls atomic.Int32
	release := make(chan struct{})
	gen := generation.GeneratorFunc(func(ctx context.Context, req generation.Request, emit generation.EmitFunc) error {
		calls.Add(1)
		<-release
		return generation.Sample{}.Generate(ctx, req, emit)
	})
	p := task.NewJobProcessor(jobs, gen, discardLogger())

	const deliveries = 8
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Process(context.Background(), job.ID)
		}()
	}

	// Duplicates return without blocking on the generator.
	require.Eventually(t, func() bool { return len(errs) == deliveries-1 }, waitFor, tick)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	// A late redelivery after completion is also a no-op.
	require.NoError(t, p.Process(context.Background(), job.ID))
	assert.Equal(t, int32(1), calls.Load())

	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
}

func TestProcess_MissingJobIsAcknowledged(t *testing.T) {
	t.Parallel()

	p := task.NewJobProcessor(memory.NewJobStore(), generation.Placeholder{}, discardLogger())

	assert.NoError(t, p.Process(context.Background(), 12345))
}

func TestProcess_LostTerminalTransition(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	job := createJob(t, jobs, 3)
	log := &eventLog{}

	// Something else finalizes the job while the generator runs.
	gen := generation.GeneratorFunc(func(ctx context.Context, _ generation.Request, _ generation.EmitFunc) error {
		msg := "cancelled by operator"
		_, err := jobs.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusFailed,
			store.TransitionUpdate{ErrorMessage: &msg})
		return err
	})

	p := task.NewJobProcessor(jobs, gen, discardLogger(), task.WithEventEmitter(log.emitter()))
	require.NoError(t, p.Process(context.Background(), job.ID))

	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, []string{events.JobStarted}, log.snapshot())
}

// failingStart refuses every transition with a store error.
type failingStart struct {
	store.JobStore
}

func (failingStart) Transition(context.Context, int64, domain.JobStatus, domain.JobStatus, store.TransitionUpdate) (bool, error) {
	return false, errors.New("connection reset")
}

func TestProcess_StartErrorIsReturnedForRetry(t *testing.T) {
	t.Parallel()

	base := memory.NewJobStore()
	job := createJob(t, base, 3)
	var calls atomic.Int32
	gen := generation.GeneratorFunc(func(context.Context, generation.Request, generation.EmitFunc) error {
		calls.Add(1)
		return nil
	})

	p := task.NewJobProcessor(failingStart{base}, gen, discardLogger())
	err := p.Process(context.Background(), job.ID)

	require.Error(t, err)
	var unexpected *task.UnexpectedFailureError
	assert.False(t, errors.As(err, &unexpected))
	assert.Zero(t, calls.Load())

	got, err := base.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
}

func TestProcess_CancelledContextStillFinalizes(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	job := createJob(t, jobs, 100)
	ctx, cancel := context.WithCancel(context.Background())

	gen := generation.GeneratorFunc(func(ctx context.Context, req generation.Request, emit generation.EmitFunc) error {
		cancel()
		return generation.Sample{}.Generate(ctx, req, emit)
	})

	p := task.NewJobProcessor(jobs, gen, discardLogger())
	err := p.Process(ctx, job.ID)

	assert.ErrorIs(t, err, context.Canceled)
	got, err := jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
}

func TestProcess_RecordsSpan(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)).Tracer("test")

	jobs := memory.NewJobStore()
	ok := createJob(t, jobs, 2)
	bad := createJob(t, jobs, 2)

	p := task.NewJobProcessor(jobs, emitN(2, nil), discardLogger(), task.WithTracer(tracer))
	require.NoError(t, p.Process(context.Background(), ok.ID))

	p = task.NewJobProcessor(jobs, emitN(0, errors.New("boom")), discardLogger(), task.WithTracer(tracer))
	require.Error(t, p.Process(context.Background(), bad.ID))

	spans := sr.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "leadgen.job.process", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("leadgen.job.id", ok.ID))
	assert.Contains(t, spans[0].Attributes(), attribute.String("leadgen.job.intent", "career"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("leadgen.job.leads_stored", 2))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.NotEmpty(t, spans[1].Events(), "error recorded on span")
}
