package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of a generation job.
type JobStatus string

// Possible job status values.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal forward step.
// pending may fail directly when the job could never be dispatched.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Intent is the business purpose that shapes which leads are generated.
type Intent string

// Supported intents.
const (
	IntentCareer Intent = "career"
	IntentGrowth Intent = "growth"
	IntentSales  Intent = "sales"
)

// Job request bounds and defaults.
const (
	DefaultIntent    = IntentCareer
	DefaultLeadCount = 100
	MinLeadCount     = 1
	MaxLeadCount     = 1000
)

// Valid reports whether i is a supported intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentCareer, IntentGrowth, IntentSales:
		return true
	default:
		return false
	}
}

// ParseIntent normalizes s into an Intent. An empty string yields DefaultIntent.
func ParseIntent(s string) (Intent, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultIntent, nil
	}
	intent := Intent(s)
	if !intent.Valid() {
		return "", NewValidationError("intent", fmt.Sprintf("must be one of career, growth, sales; got %q", s))
	}
	return intent, nil
}

// Job is a single request to produce a batch of leads.
// After creation it is mutated only by the worker that processes it.
type Job struct {
	ID           int64      `json:"id"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	Intent       Intent     `json:"intent"`
	LeadCount    int        `json:"lead_count"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage *string    `json:"error_message"`
	ResultURL    *string    `json:"result_url"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// NewJob creates a pending job with zero progress.
// The ID is assigned by the store.
func NewJob(ownerID uuid.UUID, intent Intent, leadCount int) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		OwnerID:   ownerID,
		Intent:    intent,
		LeadCount: leadCount,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.OwnerID == uuid.Nil {
		return NewValidationError("owner_id", "cannot be empty")
	}
	if !j.Intent.Valid() {
		return NewValidationError("intent", fmt.Sprintf("unsupported intent %q", j.Intent))
	}
	if j.LeadCount < MinLeadCount || j.LeadCount > MaxLeadCount {
		return NewValidationError("lead_count",
			fmt.Sprintf("must be between %d and %d; got %d", MinLeadCount, MaxLeadCount, j.LeadCount))
	}
	if !j.Status.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", j.Status))
	}
	if j.Progress < 0 || j.Progress > 100 {
		return NewValidationError("progress", "must be between 0 and 100")
	}
	return nil
}

// Progress returns floor(100*done/requested), clamped to [0, 100].
func Progress(done, requested int) int {
	if requested <= 0 || done <= 0 {
		return 0
	}
	if done >= requested {
		return 100
	}
	return done * 100 / requested
}
