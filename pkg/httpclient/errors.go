package httpclient

import (
	"fmt"
	"time"
)

// RetryableError reports a request that kept failing after retries.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}
