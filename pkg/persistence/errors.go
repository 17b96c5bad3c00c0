// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDraftNotFound indicates no draft exists for the given session.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrInvalidDraft indicates a draft is missing its session id or entity.
	ErrInvalidDraft = errors.New("invalid draft")
)

// DraftError wraps draft-related errors with additional context.
type DraftError struct {
	Op        string // Operation being performed (e.g., "DraftByID", "SaveDraft")
	SessionID string // Session ID if applicable
	Err       error  // Underlying error
	Message   string // Additional context message
}

func (e *DraftError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for draft %s: %s (%v)", e.Op, e.SessionID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for draft %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *DraftError) Unwrap() error {
	return e.Err
}

// NewDraftError creates a new draft error with context.
func NewDraftError(op, sessionID string, err error) *DraftError {
	return &DraftError{
		Op:        op,
		SessionID: sessionID,
		Err:       err,
	}
}

// IsDraftNotFound checks if an error indicates a draft was not found.
func IsDraftNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound)
}
