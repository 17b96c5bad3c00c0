// Package entity validates entities and drives their lifecycle.
package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Field error codes.
const (
	CodeRequired       = "required"
	CodeInvalid        = "invalid"
	CodeInvalidName    = "invalid_name"
	CodeInvalidVersion = "invalid_version"
	CodeMissingSection = "missing_section"
	CodeMissingPrompt  = "missing_prompt"
	CodeEmptyPlan      = "empty_plan"
	CodeInvalidTarget  = "invalid_target"
	CodeDuplicateStep  = "duplicate_step"
	CodeInvalidOrder   = "invalid_order"
	CodeSelfReference  = "self_reference"
	CodeCycle          = "cycle"
	CodeUnexpectedPlan = "unexpected_child"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown entity status")
)

// FieldError is a single validation failure bound to a field path.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors collects every failure found in one validation pass.
type FieldErrors []FieldError

func (errs FieldErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}

	return "entity validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether any error carries the given field and code.
func (errs FieldErrors) Has(field, code string) bool {
	for _, e := range errs {
		if e.Field == field && e.Code == code {
			return true
		}
	}

	return false
}

// ByField groups errors so a UI can attach them to inputs.
func (errs FieldErrors) ByField() map[string][]FieldError {
	grouped := make(map[string][]FieldError, len(errs))
	for _, e := range errs {
		grouped[e.Field] = append(grouped[e.Field], e)
	}

	return grouped
}

// Err returns nil for an empty list so callers can use the usual error check.
func (errs FieldErrors) Err() error {
	if len(errs) == 0 {
		return nil
	}

	return errs
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move entity from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
