package steris

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed is returned when a request cannot be authorized and no
	// usable refresh path exists.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoRefreshToken is returned by a refresh attempt when no refresh token is
	// stored. No network call is issued in that case.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrRefreshFailed is returned when the refresh call itself is rejected by the
	// server. It always escalates to a forced local logout.
	ErrRefreshFailed = errors.New("session refresh rejected")

	// ErrValidation is the classification for 400 and 422 responses carrying
	// field-level detail.
	ErrValidation = errors.New("validation failed")

	// ErrPermissionDenied is the classification for 403 responses.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is the classification for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrConflict is the classification for 409 responses.
	ErrConflict = errors.New("conflict")

	// ErrServiceUnavailable is the classification for 5xx and gateway responses.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTransport is the classification for client-side failures where no response
	// was received at all.
	ErrTransport = errors.New("transport failure")

	// ErrConnectionExhausted marks the realtime reconnect cap being reached. The
	// channel stays disconnected until Connect is called explicitly again.
	ErrConnectionExhausted = errors.New("reconnect attempts exhausted")
)

// APIError is the uniform error shape every failed request is mapped into. Status is
// zero when no response was received. Err carries the classification sentinel so
// callers can branch with errors.Is.
type APIError struct {
	Status      int               // HTTP status code, 0 for transport failures.
	Message     string            // Fixed user-facing message derived from the status class.
	FieldErrors map[string]string // Optional field-level validation detail from the response body.
	Err         error             // Classification sentinel, possibly joined with the underlying cause.
}

// Error satisfies the error interface.
func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("request failed in transit : %s", e.Message)
	}
	return fmt.Sprintf("request failed with status %d : %s", e.Status, e.Message)
}

// Unwrap exposes the classification sentinel for errors.Is / errors.As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classify maps an HTTP status code to its classification sentinel. Statuses that
// have no dedicated class fall back to ErrAuthenticationFailed for 401 and a nil
// class otherwise, which callers treat as a generic failure.
func classify(status int) error {
	switch status {
	case 400, 422:
		return ErrValidation
	case 401:
		return ErrAuthenticationFailed
	case 403:
		return ErrPermissionDenied
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	case 500, 502, 503, 504:
		return ErrServiceUnavailable
	default:
		return nil
	}
}

// statusMessage is the fixed message table keyed by status class.
func statusMessage(status int) string {
	switch status {
	case 400:
		return "The request could not be validated."
	case 401:
		return "You are not authorized. Please log in again."
	case 403:
		return "You do not have permission to perform this action."
	case 404:
		return "The requested resource was not found."
	case 409:
		return "The request conflicts with the current state."
	case 422:
		return "The submitted data could not be processed."
	case 500:
		return "An internal server error occurred."
	case 502, 503, 504:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}
