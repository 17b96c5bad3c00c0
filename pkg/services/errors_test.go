package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/editor"
	"github.com/dukex/composer/pkg/entity"
	"github.com/dukex/composer/pkg/graph"
	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		validation bool
		notFound   bool
		conflict   bool
	}{
		{"wrapped_cycle", fmt.Errorf("connect: %w", graph.ErrCycle), true, false, false},
		{"editor_validation", editor.ErrValidation, true, false, false},
		{"unknown_node", graph.ErrNodeNotFound, false, true, false},
		{"missing_session", &ServiceError{Op: "Get", Err: ErrSessionNotFound}, false, true, false},
		{"save_in_flight", editor.ErrSaveInProgress, false, false, true},
		{"bad_transition", &entity.TransitionError{From: "ARCHIVED", To: "ACTIVE"}, false, false, true},
		{"plain", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.validation, IsValidationError(tt.err))
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.conflict, IsConflictError(tt.err))
		})
	}
}

func TestFromAPI(t *testing.T) {
	t.Parallel()

	assert.NoError(t, fromAPI("op", nil, ErrEntityNotFound))
	assert.True(t, IsNotFoundError(fromAPI("op", &client.Error{StatusCode: http.StatusNotFound}, ErrEntityNotFound)))
	assert.True(t, IsConflictError(fromAPI("op", &client.Error{StatusCode: http.StatusConflict}, nil)))
	assert.True(t, IsValidationError(fromAPI("op", &client.Error{StatusCode: http.StatusUnprocessableEntity}, nil)))
	assert.True(t, IsUnauthorizedError(fromAPI("op", client.ErrSessionExpired, nil)))
	assert.True(t, IsUpstreamError(fromAPI("op", &client.Error{StatusCode: http.StatusBadGateway}, nil)))
	assert.True(t, IsUpstreamError(fromAPI("op", &client.Error{StatusCode: http.StatusNotFound}, nil)))

	var serviceErr *ServiceError
	assert.ErrorAs(t, fromAPI("GetRun", client.ErrSessionExpired, nil), &serviceErr)
	assert.Equal(t, "session_expired", serviceErr.Code)
}
