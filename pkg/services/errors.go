// Package services orchestrates editing sessions, trace views and HITL
// checkpoints for the web handlers and the CLI.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/convert"
	"github.com/dukex/composer/pkg/editor"
	"github.com/dukex/composer/pkg/entity"
	"github.com/dukex/composer/pkg/graph"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest            = errors.New("invalid request")
	ErrInvalidEntityType         = errors.New("invalid entity type")
	ErrMissingInputs             = errors.New("missing template inputs")
	ErrInvalidCheckpointResponse = errors.New("checkpoint response must approve or reject")

	// Not Found Errors (404 Not Found).
	ErrSessionNotFound = errors.New("editing session not found")
	ErrEntityNotFound  = errors.New("entity not found")
	ErrRunNotFound     = errors.New("run not found")

	// Business Logic Conflicts (409 Conflict).
	ErrSaveInProgress = editor.ErrSaveInProgress
	ErrEntityConflict = errors.New("entity was changed or its name is taken")

	// Upstream failures (502 Bad Gateway).
	ErrUpstream = errors.New("execution API is unavailable")

	// Authentication (401 Unauthorized).
	ErrUnauthorized = errors.New("session expired")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
	// Details carries field or conversion errors for validation failures.
	Details any
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidEntityType) ||
		errors.Is(err, ErrMissingInputs) ||
		errors.Is(err, ErrInvalidCheckpointResponse) ||
		errors.Is(err, editor.ErrValidation) ||
		errors.Is(err, editor.ErrReadOnlyField) ||
		errors.Is(err, editor.ErrNotComposite) ||
		errors.Is(err, editor.ErrUnknownStep) ||
		errors.Is(err, graph.ErrSelfLoop) ||
		errors.Is(err, graph.ErrCycle) ||
		errors.Is(err, graph.ErrDuplicateEdge) ||
		errors.Is(err, graph.ErrRootNode) ||
		errors.Is(err, graph.ErrInvalidPatch) ||
		errors.Is(err, entity.ErrUnknownStatus) ||
		errors.Is(err, convert.ErrUnsupportedPlan) ||
		convert.IsConversionError(err)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, graph.ErrNodeNotFound) ||
		errors.Is(err, graph.ErrEdgeNotFound) ||
		errors.Is(err, editor.ErrBannerNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSaveInProgress) ||
		errors.Is(err, ErrEntityConflict) ||
		errors.Is(err, entity.ErrInvalidTransition)
}

func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// fromAPI maps an execution API failure onto the service sentinels.
// notFound is the sentinel reported for a 404.
func fromAPI(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}

	switch {
	case client.IsUnauthorized(err):
		return &ServiceError{Op: op, Code: "session_expired", Err: errors.Join(ErrUnauthorized, err)}
	case client.IsNotFound(err) && notFound != nil:
		return &ServiceError{Op: op, Code: "not_found", Err: errors.Join(notFound, err)}
	case client.IsConflict(err):
		return &ServiceError{Op: op, Code: "conflict", Err: errors.Join(ErrEntityConflict, err)}
	case client.IsValidation(err):
		return &ServiceError{Op: op, Code: "invalid_request", Err: errors.Join(ErrInvalidRequest, err)}
	default:
		return &ServiceError{Op: op, Code: "upstream_unavailable", Err: errors.Join(ErrUpstream, err)}
	}
}
