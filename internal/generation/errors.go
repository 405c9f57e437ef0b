package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrNotImplemented is returned when no lead source is available yet.
	// Jobs that hit it fail with this message and are not retried.
	ErrNotImplemented = errors.New("Real scraper logic is not implemented yet.")

	// ErrInvalidResponse is returned when an upstream response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from lead source")

	// ErrContentBlocked is returned when the upstream model blocks the request due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during lead generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrInvalidRequest is returned when a Request is missing required fields
	ErrInvalidRequest = errors.New("invalid generation request")
)
