package githost

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a failed git hosting API call.
type APIError struct {
	// StatusCode is the HTTP status, or zero if no response arrived.
	StatusCode int

	// Message is the error message from the response body.
	Message string

	// Err is the underlying client error.
	Err error
}

// Error implements error.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("git host API error: %v", e.Err)
	}

	return fmt.Sprintf("git host API error (HTTP %d): %s", e.StatusCode,
		e.Message)
}

// Unwrap returns the underlying client error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRefNotFound reports whether err says the ref being deleted does not
// exist.
func IsRefNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.StatusCode {
	case http.StatusUnprocessableEntity, http.StatusNotFound:
		return strings.Contains(apiErr.Message, "Reference does not exist")

	default:
		return false
	}
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusNotFound
}
