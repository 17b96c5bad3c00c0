// Package client provides a Go client for the external entity and execution API.
package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport wraps network failures where no response was received.
	ErrTransport = errors.New("transport failure")

	// ErrSessionExpired is returned when the credential could not be refreshed.
	// The stored credentials have been cleared.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoCredentials is returned before any request when no token is held.
	ErrNoCredentials = errors.New("no session credential")
)

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func statusIs(err error, status int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == status
	}

	return false
}

// isClientError reports a 4xx answer: the API understood and refused the request.
func isClientError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError
	}

	return false
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	return statusIs(err, http.StatusNotFound)
}

// IsUnauthorized returns true if the error is a 401 or the session expired.
func IsUnauthorized(err error) bool {
	return statusIs(err, http.StatusUnauthorized) || errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNoCredentials)
}

// IsConflict returns true if the error is a 409, e.g. a duplicate name or stale version.
func IsConflict(err error) bool {
	return statusIs(err, http.StatusConflict)
}

// IsValidation returns true if the API rejected the payload (400 or 422).
func IsValidation(err error) bool {
	return statusIs(err, http.StatusBadRequest) || statusIs(err, http.StatusUnprocessableEntity)
}

// IsTransport returns true for network failures and 5xx responses.
func IsTransport(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}

	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode >= http.StatusInternalServerError
	}

	return false
}
