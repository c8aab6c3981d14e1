package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired is returned when a request stays unauthorized after the one allowed refresh.
	ErrSessionExpired = errors.New("session expired")
	// ErrMalformedResponse is returned when a success envelope does not match the expected schema.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrTransport wraps network failures.
	ErrTransport = errors.New("transport failure")
)

// SessionExpiredMessage is shown when re-authentication is required.
const SessionExpiredMessage = "Session expired. Please log in again."

// APIError is a non-2xx response or a failure to reach the server.
type APIError struct {
	// Status is 0 for transport failures.
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api: %s", e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// Message converts err into the user-facing text. Server-supplied messages
// win; anything else (transport failures, malformed payloads) becomes fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrSessionExpired) {
		return SessionExpiredMessage
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
