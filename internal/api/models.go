package api

import (
	"time"

	"github.com/phrazzld/leadgen-api/internal/domain"
)

// SubmitJobRequest defines the payload for submitting a lead generation job.
// Omitted fields take domain.DefaultIntent and domain.DefaultLeadCount.
type SubmitJobRequest struct {
	Intent    *string `json:"intent"`
	LeadCount *int    `json:"lead_count"`
}

// submitJobParams is a SubmitJobRequest with defaults applied.
type submitJobParams struct {
	Intent    string `validate:"required,oneof=career growth sales"`
	LeadCount int    `validate:"gte=1,lte=1000"`
}

// resolve applies defaults to omitted fields.
func (r SubmitJobRequest) resolve() submitJobParams {
	p := submitJobParams{Intent: string(domain.DefaultIntent), LeadCount: domain.DefaultLeadCount}
	if r.Intent != nil {
		p.Intent = *r.Intent
	}
	if r.LeadCount != nil {
		p.LeadCount = *r.LeadCount
	}
	return p
}

// JobResponse represents the response data for a job.
type JobResponse struct {
	ID           int64      `json:"id"`
	Intent       string     `json:"intent"`
	LeadCount    int        `json:"lead_count"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage *string    `json:"error_message"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ResultURL    *string    `json:"result_url"`
	CreatedAt    time.Time  `json:"created_at"`
}

// LeadResponse represents one generated lead.
type LeadResponse struct {
	ID         int64   `json:"id"`
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Company    *string `json:"company"`
	Title      *string `json:"title"`
	SourceURL  *string `json:"source_url"`
	Confidence float64 `json:"confidence"`
}

// jobToResponse converts a domain.Job to a JobResponse
func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:           job.ID,
		Intent:       string(job.Intent),
		LeadCount:    job.LeadCount,
		Status:       string(job.Status),
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ResultURL:    job.ResultURL,
		CreatedAt:    job.CreatedAt,
	}
}

// leadsToResponse converts leads to their response form; the result is
// never nil so an empty page encodes as [].
func leadsToResponse(leads []*domain.Lead) []LeadResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, LeadResponse{
			ID:         l.ID,
			Name:       l.Name,
			Email:      l.Email,
			Company:    l.Company,
			Title:      l.Title,
			SourceURL:  l.SourceURL,
			Confidence: l.Confidence,
		})
	}
	return out
}
