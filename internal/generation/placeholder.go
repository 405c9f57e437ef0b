package generation

import "context"

// Placeholder is the default Generator until a real lead source is wired in.
type Placeholder struct{}

// Generate always returns ErrNotImplemented without emitting anything.
func (Placeholder) Generate(context.Context, Request, EmitFunc) error {
	return ErrNotImplemented
}
