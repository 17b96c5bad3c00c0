// Package convert maps between the editor graph and an entity's static plan.
package convert

import (
	"errors"
	"fmt"
	"strings"
)

// Conversion error codes.
const (
	CodeUnresolvedReference = "unresolved_reference"
	CodeSelfReference       = "self_reference"
	CodeCycle               = "cycle"
	CodeMultipleRoots       = "multiple_roots"
	CodeUnsupportedShape    = "unsupported_shape"
	CodeDisconnected        = "disconnected"
)

var (
	// ErrUnsupportedPlan is returned when a plan cannot be drawn as a chain.
	ErrUnsupportedPlan = errors.New("plan cannot be represented as a chain graph")

	// ErrNotComposite is returned when an ACTION is opened in the graph editor.
	ErrNotComposite = errors.New("only composite entities have a plan graph")
)

// ConversionError points at the node that blocked conversion. NodeID is
// empty for graph-wide failures.
type ConversionError struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

func (e ConversionError) Error() string {
	if e.NodeID == "" {
		return e.Message
	}

	return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
}

// ConversionErrors is the full list of failures found in one pass.
type ConversionErrors []ConversionError

func (errs ConversionErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}

	return "graph conversion failed: " + strings.Join(parts, "; ")
}

// Has reports whether any error carries the code.
func (errs ConversionErrors) Has(code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}

	return false
}

// IsConversionError reports whether err carries conversion failures.
func IsConversionError(err error) bool {
	var errs ConversionErrors

	return errors.As(err, &errs)
}
