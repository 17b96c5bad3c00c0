package web

import (
	"net/http"
	"time"

	"github.com/dukex/composer/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	sessions    *services.Sessions
	library     *services.Library
	traces      *services.Traces
	checkpoints *services.Checkpoints
	validator   *validator.Validate
}

func NewAPIHandlers(
	sessions *services.Sessions,
	library *services.Library,
	traces *services.Traces,
	checkpoints *services.Checkpoints,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		sessions:    sessions,
		library:     library,
		traces:      traces,
		checkpoints: checkpoints,
		validator:   validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	draftsCheck, ok := h.sessions.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Composer API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Composer API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"drafts": draftsCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// bind decodes and validates a JSON body, answering 400 itself on failure.
func (h *APIHandlers) bind(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().JSON(req); err != nil {
		return false, badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return false, badRequest(c, err.Error())
	}

	return true, nil
}
