package web

import (
	"github.com/dukex/composer/pkg/models"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) LibraryEntities(c fiber.Ctx) error {
	entities, err := h.library.Entities(c.Context(), c.Query("q"), c.Query("exclude"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if entities == nil {
		entities = []models.EntitySummary{}
	}

	return c.JSON(entities)
}

func (h *APIHandlers) LibraryTools(c fiber.Ctx) error {
	tools, err := h.library.Tools(c.Context(), c.Query("q"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if tools == nil {
		tools = []models.Tool{}
	}

	return c.JSON(tools)
}

// PendingCheckpoints answers from the watcher's last refresh when
// ?cached=true, otherwise asks the execution API.
func (h *APIHandlers) PendingCheckpoints(c fiber.Ctx) error {
	if c.Query("cached") == "true" {
		pending, refreshedAt := h.checkpoints.Cached()
		if pending == nil {
			pending = []models.Checkpoint{}
		}

		return c.JSON(fiber.Map{
			"checkpoints":  pending,
			"refreshed_at": refreshedAt,
		})
	}

	pending, err := h.checkpoints.Pending(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"checkpoints": pending})
}

func (h *APIHandlers) RespondCheckpoint(c fiber.Ctx) error {
	var req models.CheckpointResponse
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	checkpoint, err := h.checkpoints.Respond(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(checkpoint)
}
