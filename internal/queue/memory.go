package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

var (
	_ Producer = (*MemoryQueue)(nil)
	_ Consumer = (*MemoryQueue)(nil)
)

// MemoryQueue is a buffered in-process transport. It is not durable:
// messages in the buffer are lost when the process exits.
type MemoryQueue struct {
	messages chan Message
	logger   *slog.Logger
	block    time.Duration
	seq      atomic.Int64

	mu          sync.RWMutex
	closed      bool
	deadLetters []Message
}

// NewMemoryQueue creates a queue holding up to size undelivered messages.
// Read waits at most block for a message before returning an empty batch.
func NewMemoryQueue(size int, block time.Duration, logger *slog.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	if block <= 0 {
		block = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		messages: make(chan Message, size),
		logger:   logger.With(slog.String("component", "memory_queue")),
		block:    block,
	}
}

// Enqueue adds a dispatch message without blocking.
// Returns ErrQueueFull when the buffer is at capacity.
func (q *MemoryQueue) Enqueue(_ context.Context, jobID int64) error {
	return q.publish(Message{JobID: jobID, Attempt: 1})
}

func (q *MemoryQueue) publish(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	msg.ID = strconv.FormatInt(q.seq.Add(1), 10)
	select {
	case q.messages <- msg:
		q.logger.Debug("message enqueued",
			slog.Int64("job_id", msg.JobID),
			slog.Int("attempt", msg.Attempt),
			slog.Int("queue_len", len(q.messages)),
			slog.Int("queue_cap", cap(q.messages)))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.messages))
	}
}

// Read returns at most one message, waiting up to the configured block time.
func (q *MemoryQueue) Read(ctx context.Context) ([]Message, error) {
	timer := time.NewTimer(q.block)
	defer timer.Stop()

	select {
	case msg, ok := <-q.messages:
		if !ok {
			return nil, ErrQueueClosed
		}
		return []Message{msg}, nil
	case <-timer.C:
		return []Message{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack is a no-op: a message leaves the buffer when it is read.
func (q *MemoryQueue) Ack(context.Context, Message) error {
	return nil
}

// Retry re-publishes msg with the next attempt number.
func (q *MemoryQueue) Retry(_ context.Context, msg Message, reason string) error {
	msg.Attempt++
	msg.LastError = reason
	if err := q.publish(msg); err != nil {
		return fmt.Errorf("requeue job %d: %w", msg.JobID, err)
	}
	q.logger.Info("message requeued for retry",
		slog.Int64("job_id", msg.JobID),
		slog.Int("next_attempt", msg.Attempt),
		slog.String("reason", reason))
	return nil
}

// DeadLetter records msg so it is never delivered again.
func (q *MemoryQueue) DeadLetter(_ context.Context, msg Message, reason string) error {
	msg.LastError = reason

	q.mu.Lock()
	q.deadLetters = append(q.deadLetters, msg)
	q.mu.Unlock()

	q.logger.Error("message sent to dead letter list",
		slog.Int64("job_id", msg.JobID),
		slog.Int("attempt", msg.Attempt),
		slog.String("final_error", reason))
	return nil
}

// DeadLetters returns a snapshot of dead-lettered messages.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]Message(nil), q.deadLetters...)
}

// Len returns the number of buffered messages.
func (q *MemoryQueue) Len() int {
	return len(q.messages)
}

// Close stops accepting messages. Buffered messages can still be read;
// after that Read returns ErrQueueClosed.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.messages)
		q.logger.Info("task queue closed")
	}
}
