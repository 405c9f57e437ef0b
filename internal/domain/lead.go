package domain

import (
	"math"
	"strings"
	"time"
)

// Lead is one generated contact record belonging to a job.
// Leads are immutable once written.
type Lead struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"job_id"`
	Name       *string   `json:"name"`
	Email      *string   `json:"email"`
	Company    *string   `json:"company"`
	Title      *string   `json:"title"`
	SourceURL  *string   `json:"source_url"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks if the Lead has valid data.
func (l *Lead) Validate() error {
	if math.IsNaN(l.Confidence) || l.Confidence < 0 || l.Confidence > 1 {
		return NewValidationError("confidence", "must be between 0.0 and 1.0")
	}
	if l.Email != nil && *l.Email != "" && !validateEmailFormat(*l.Email) {
		return NewValidationError("email", "invalid email format")
	}
	return nil
}

// OptionalString returns nil for blank input and a pointer to the trimmed value otherwise.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
