package web

import (
	"errors"

	"github.com/dukex/composer/pkg/convert"
	"github.com/dukex/composer/pkg/entity"
	"github.com/dukex/composer/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// detailedProblem adds the error code and the inline errors the console
// renders next to fields and nodes.
type detailedProblem struct {
	*problems.Problem

	Code   string `json:"code,omitempty"`
	Errors any    `json:"errors,omitempty"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func respond(c fiber.Ctx, status int, problemType string, err error) error {
	problem := detailedProblem{
		Problem: problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType(problemType).
			WithDetail(err.Error()),
	}

	var serviceErr *services.ServiceError
	if errors.As(err, &serviceErr) {
		problem.Code = serviceErr.Code
		problem.Errors = serviceErr.Details
	}

	if problem.Errors == nil {
		problem.Errors = inlineErrors(err)
	}

	return c.Status(status).JSON(problem)
}

func inlineErrors(err error) any {
	var (
		fieldErrs      entity.FieldErrors
		conversionErrs convert.ConversionErrors
	)

	switch {
	case errors.As(err, &conversionErrs):
		return conversionErrs
	case errors.As(err, &fieldErrs):
		return fieldErrs
	default:
		return nil
	}
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsUnauthorizedError(err):
		return respond(c, fiber.StatusUnauthorized, "session_expired", err)
	case services.IsNotFoundError(err):
		return respond(c, fiber.StatusNotFound, "not_found", err)
	case services.IsConflictError(err):
		return respond(c, fiber.StatusConflict, "conflict", err)
	case services.IsValidationError(err):
		return respond(c, fiber.StatusBadRequest, "validation_error", err)
	case services.IsUpstreamError(err):
		return respond(c, fiber.StatusBadGateway, "upstream_unavailable", err)
	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
