// Package queue carries job dispatch messages from the API to the worker pool.
// Delivery is at-least-once: a message may be seen more than once, and
// consumers rely on the job store's compare-and-swap to stay idempotent.
package queue

import (
	"context"
	"errors"
)

// Common errors returned by queue transports.
var (
	ErrQueueClosed    = errors.New("task queue is closed")
	ErrQueueFull      = errors.New("task queue is full")
	ErrInvalidMessage = errors.New("invalid queue message")
)

// Message is one delivery of a job dispatch.
type Message struct {
	// ID is the transport-assigned delivery identifier.
	ID    string
	JobID int64
	// Attempt starts at 1 and grows with every retry or reclaimed delivery.
	Attempt   int
	LastError string
}

// Producer publishes job dispatch messages.
type Producer interface {
	// Enqueue returns once the transport has accepted the message.
	Enqueue(ctx context.Context, jobID int64) error
}

// Consumer receives job dispatch messages.
type Consumer interface {
	// Read waits briefly for messages. An empty result is not an error.
	// ErrQueueClosed means no further messages will ever arrive.
	Read(ctx context.Context) ([]Message, error)

	// Ack marks the message as handled.
	Ack(ctx context.Context, msg Message) error

	// Retry acknowledges msg and publishes it again with the next attempt number.
	Retry(ctx context.Context, msg Message, reason string) error

	// DeadLetter acknowledges msg and parks it where it will not be redelivered.
	DeadLetter(ctx context.Context, msg Message, reason string) error
}
