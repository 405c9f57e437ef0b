package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/leadgen-api/internal/domain"
)

// Job lifecycle event types.
const (
	JobStarted   = "job.started"
	JobCompleted = "job.completed"
	JobFailed    = "job.failed"
)

// JobEvent describes one lifecycle change of a job.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of JobStarted, JobCompleted or JobFailed
	Type string `json:"type"`

	JobID    int64            `json:"job_id"`
	OwnerID  uuid.UUID        `json:"owner_id"`
	Status   domain.JobStatus `json:"status"`
	Progress int              `json:"progress"`

	// LeadCount is the number of leads stored when the event was emitted
	LeadCount int `json:"lead_count"`

	// Error is the redacted failure message for JobFailed events
	Error string `json:"error,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewJobEvent creates an event of eventType for job.
func NewJobEvent(eventType string, job *domain.Job) *JobEvent {
	e := &JobEvent{
		ID:         uuid.New(),
		Type:       eventType,
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Status:     job.Status,
		Progress:   job.Progress,
		OccurredAt: time.Now().UTC(),
	}
	if job.ErrorMessage != nil {
		e.Error = *job.ErrorMessage
	}
	return e
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the worker to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
