package task

import (
	"errors"
	"fmt"
)

// ErrGeneratorPanic is wrapped by errors recovered from a panicking generator.
var ErrGeneratorPanic = errors.New("generator panicked")

// UnexpectedFailureError reports a job that failed for a reason other than an
// unavailable capability. The job has already been marked failed; the error is
// returned so the transport can retry or dead-letter the message.
type UnexpectedFailureError struct {
	JobID int64
	Err   error
}

func (e *UnexpectedFailureError) Error() string {
	return fmt.Sprintf("job %d failed unexpectedly: %v", e.JobID, e.Err)
}

func (e *UnexpectedFailureError) Unwrap() error {
	return e.Err
}
