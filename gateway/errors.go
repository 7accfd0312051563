package gateway

import "fmt"

// TimeoutError indicates the per-call timeout elapsed on every allowed
// attempt.
type TimeoutError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("model call timed out after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes the last underlying error.
func (e *TimeoutError) Unwrap() error { return e.Err }

// RateLimitError indicates the provider throttled every allowed attempt.
type RateLimitError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("model call rate limited after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes the last underlying error.
func (e *RateLimitError) Unwrap() error { return e.Err }

// SchemaError indicates the model kept returning output that failed schema
// validation, even after the violations were fed back into the prompt.
type SchemaError struct {
	Attempts int
	Err      error
	Raw      string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("model output failed schema validation after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes the last validation error.
func (e *SchemaError) Unwrap() error { return e.Err }
