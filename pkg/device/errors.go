package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorClass buckets backend failures for retry policy decisions.
type ErrorClass string

// Error classes, from the dispatcher's point of view: auth failures are
// terminal, everything else is retryable.
const (
	ClassAuth        ErrorClass = "auth"
	ClassRateLimited ErrorClass = "rate_limited"
	ClassServer      ErrorClass = "server"
	ClassNetwork     ErrorClass = "network"
	ClassTimeout     ErrorClass = "timeout"
)

// APIError is a classified device backend failure.
type APIError struct {
	Class      ErrorClass
	Status     int
	RetryAfter time.Duration // populated from the Retry-After header when present
	Message    string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("device backend: %s (status %d): %s", e.Class, e.Status, e.Message)
	}
	return fmt.Sprintf("device backend: %s: %s", e.Class, e.Message)
}

// IsAuth reports whether the error is an authentication failure.
func IsAuth(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Class == ClassAuth
}

// IsRetryable reports whether the dispatcher should retry the command.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class != ClassAuth
	}
	return err != nil
}

// RetryAfter returns the backend-requested retry delay, or zero.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// classifyTransport maps transport-level failures to an error class.
func classifyTransport(err error) *APIError {
	class := ClassNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		class = ClassTimeout
	}
	return &APIError{Class: class, Message: err.Error()}
}
