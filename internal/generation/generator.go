package generation

import (
	"context"
	"fmt"

	"github.com/phrazzld/leadgen-api/internal/domain"
)

// Request describes one generation run.
type Request struct {
	JobID  int64
	Intent domain.Intent
	// Count is the number of leads requested. Generators may emit fewer;
	// anything beyond Count is discarded by the caller.
	Count int
}

// Validate checks that the request can be served.
func (r Request) Validate() error {
	if r.JobID <= 0 {
		return fmt.Errorf("%w: job id must be positive", ErrInvalidRequest)
	}
	if !r.Intent.Valid() {
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidRequest, r.Intent)
	}
	if r.Count < domain.MinLeadCount || r.Count > domain.MaxLeadCount {
		return fmt.Errorf("%w: count %d out of range", ErrInvalidRequest, r.Count)
	}
	return nil
}

// EmitFunc receives each generated lead. A non-nil error aborts generation and
// is returned from Generate unchanged.
type EmitFunc func(ctx context.Context, lead *domain.Lead) error

// Generator defines the interface for producing leads.
// This interface serves as a boundary between the job worker and external
// lead sources, following the hexagonal architecture pattern.
type Generator interface {
	// Generate emits leads for req until it has produced req.Count leads, the
	// source is exhausted, or ctx is cancelled.
	//
	// Returns ErrNotImplemented when the capability is unavailable; the job is
	// then failed without escalation. Any other error is treated as unexpected.
	Generate(ctx context.Context, req Request, emit EmitFunc) error
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request, emit EmitFunc) error

// Generate calls f(ctx, req, emit).
func (f GeneratorFunc) Generate(ctx context.Context, req Request, emit EmitFunc) error {
	return f(ctx, req, emit)
}
