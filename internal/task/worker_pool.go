package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/leadgen-api/internal/queue"
	"github.com/phrazzld/leadgen-api/internal/redact"
)

// readErrorBackoff is how long a worker waits after a failed queue read.
const readErrorBackoff = time.Second

// WorkerPool manages a pool of worker goroutines that consume dispatch
// messages and hand them to a Processor. It handles graceful shutdown and
// worker lifecycle.
type WorkerPool struct {
	consumer  queue.Consumer
	processor Processor
	config    WorkerPoolConfig
	logger    *slog.Logger

	// errorHandler is called when processing a message fails.
	// If nil, errors are only logged.
	errorHandler func(msg queue.Message, err error)

	mu          sync.Mutex
	wg          sync.WaitGroup
	started     bool
	stopReading context.CancelFunc
	stopWork    context.CancelFunc
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// MaxAttempts is the number of deliveries a message gets before it is
	// dead-lettered. If zero or negative, defaults to 3.
	MaxAttempts int

	// DrainTimeout is how long Stop lets in-flight jobs finish before their
	// contexts are cancelled. Zero cancels them immediately.
	DrainTimeout time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:  2,
		MaxAttempts:  3,
		DrainTimeout: 10 * time.Second,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	consumer queue.Consumer,
	processor Processor,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "worker_pool"))

	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}

	return &WorkerPool{
		consumer:  consumer,
		processor: processor,
		config:    config,
		logger:    logger,
	}
}

// SetErrorHandler allows setting a custom error handler for processing failures
func (p *WorkerPool) SetErrorHandler(handler func(msg queue.Message, err error)) {
	p.errorHandler = handler
}

// Start launches the worker goroutines. Calling Start on a running pool is a no-op.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	readCtx, stopReading := context.WithCancel(ctx)
	// In-flight jobs outlive the read loop so Stop can drain them.
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	p.stopReading = stopReading
	p.stopWork = stopWork

	p.logger.Info("starting worker pool",
		"worker_count", p.config.WorkerCount,
		"max_attempts", p.config.MaxAttempts)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(readCtx, workCtx, i)
	}
}

// Stop stops reading new messages and waits for workers to exit. In-flight
// jobs get DrainTimeout to finish before their contexts are cancelled.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stopReading, stopWork := p.stopReading, p.stopWork
	p.mu.Unlock()

	p.logger.Info("stopping worker pool")
	stopReading()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.config.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		p.logger.Warn("drain timeout reached, cancelling in-flight jobs",
			"drain_timeout", p.config.DrainTimeout.String())
		stopWork()
		<-done
	}
	stopWork()
	p.logger.Info("worker pool stopped")
}

// Run starts the pool and blocks until ctx is cancelled, then stops it.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *WorkerPool) worker(readCtx, workCtx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.With("worker_id", id)
	log.Debug("starting worker")

	for {
		if readCtx.Err() != nil {
			log.Debug("stopping worker")
			return
		}

		msgs, err := p.consumer.Read(readCtx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				log.Debug("queue closed, stopping worker")
				return
			}
			if readCtx.Err() != nil {
				log.Debug("stopping worker")
				return
			}
			log.Error("failed to read from queue", "error", redact.Error(err))
			select {
			case <-time.After(readErrorBackoff):
			case <-readCtx.Done():
			}
			continue
		}

		for _, msg := range msgs {
			p.handle(workCtx, log, msg)
		}
	}
}

// handle processes one message and settles it with the transport.
func (p *WorkerPool) handle(ctx context.Context, log *slog.Logger, msg queue.Message) {
	log = log.With("job_id", msg.JobID, "message_id", msg.ID, "attempt", msg.Attempt)

	err := p.safeProcess(ctx, msg.JobID)
	if err == nil {
		if ackErr := p.consumer.Ack(ctx, msg); ackErr != nil {
			log.Error("failed to acknowledge message", "error", redact.Error(ackErr))
		}
		return
	}

	reason := redact.Error(err)
	log.Error("message processing failed", "error", reason)
	if p.errorHandler != nil {
		p.errorHandler(msg, err)
	}

	if msg.Attempt < p.config.MaxAttempts {
		if retryErr := p.consumer.Retry(ctx, msg, reason); retryErr != nil {
			log.Error("failed to requeue message", "error", redact.Error(retryErr))
		}
		return
	}

	if dlqErr := p.consumer.DeadLetter(ctx, msg, reason); dlqErr != nil {
		log.Error("failed to dead-letter message", "error", redact.Error(dlqErr))
	}
}

// safeProcess converts a processor panic into an error so one bad job
// cannot take down a worker.
func (p *WorkerPool) safeProcess(ctx context.Context, jobID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	return p.processor.Process(ctx, jobID)
}
