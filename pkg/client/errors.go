package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrRequestCanceled is returned when the request context is canceled
	// or superseded. Callers must treat it as a non-failure and never
	// surface it to users.
	ErrRequestCanceled = errors.New("request canceled")

	// ErrCursorExpired signals that the server rejected the pagination
	// cursor as gone or invalid. The stored cursor must be discarded and
	// pagination restarted from the beginning.
	ErrCursorExpired = errors.New("cursor expired")
)

// ErrorClass classifies catalog request failures.
type ErrorClass string

const (
	// ErrorClassNetwork covers rejected or timed-out requests.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassProtocol covers non-success HTTP statuses, malformed
	// bodies and success:false envelopes.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassCursorExpired covers gone/invalid cursor signals.
	ErrorClassCursorExpired ErrorClass = "cursor_expired"
)

// APIError is a catalog request failure with classification context.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsCursorExpired reports whether err carries a cursor expiry signal.
func IsCursorExpired(err error) bool {
	return errors.Is(err, ErrCursorExpired)
}

// IsCanceled reports whether err stems from cancellation rather than a
// genuine failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrRequestCanceled)
}

// cursorExpiryMessage reports whether a server error message describes an
// expired or invalid cursor. The 410 status is the primary signal; some
// responses carry only the message.
func cursorExpiryMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "invalid cursor") ||
		strings.Contains(lower, "cursor expired") ||
		strings.Contains(lower, "expired cursor")
}

// shouldRetry determines if an error should be retried based on its
// classification. Cursor expiry and 4xx responses are never retried.
func shouldRetry(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Class {
	case ErrorClassNetwork:
		return true
	case ErrorClassProtocol:
		// Server-side failures may be transient; client errors are not.
		return apiErr.StatusCode >= 500
	default:
		return false
	}
}
