package web

import (
	"github.com/dukex/composer/pkg/editor"
	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) OpenSession(c fiber.Ctx) error {
	var req OpenSessionRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	session, err := h.sessions.Open(c.Context(), services.OpenRequest{EntityID: req.EntityID, EntityType: req.EntityType})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(session.View())
}

func (h *APIHandlers) ListSessions(c fiber.Ctx) error {
	return c.JSON(h.sessions.List())
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session.View())
}

// CloseSession drops the session and its autosaved draft.
func (h *APIHandlers) CloseSession(c fiber.Ctx) error {
	if err := h.sessions.Close(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// DiscardSession reverts the draft to the last saved entity.
func (h *APIHandlers) DiscardSession(c fiber.Ctx) error {
	session, err := h.sessions.Discard(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session.View())
}

func (h *APIHandlers) RefreshLibrary(c fiber.Ctx) error {
	session, err := h.sessions.RefreshLibrary(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session.View())
}

// edit runs fn against the session and answers with the updated view.
func (h *APIHandlers) edit(c fiber.Ctx, status int, fn func(*editor.Session) error) error {
	session, err := h.sessions.Edit(c.Context(), c.Params("id"), fn)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(status).JSON(session.View())
}

func (h *APIHandlers) AddNode(c fiber.Ctx) error {
	var req AddNodeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	pos := graph.Position{X: req.X, Y: req.Y}

	return h.edit(c, fiber.StatusCreated, func(s *editor.Session) error {
		var err error

		switch {
		case req.EntityID != "":
			_, err = s.AddLibraryEntity(req.EntityID, pos)
		case req.ToolName != "":
			_, err = s.AddLibraryTool(req.ToolName, pos)
		default:
			_, err = s.AddNode(req.Type, pos)
		}

		return err
	})
}

func (h *APIHandlers) UpdateNode(c fiber.Ctx) error {
	var req UpdateNodeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	if req.Data == nil && req.Position == nil {
		return badRequest(c, "data or position is required")
	}

	nodeID := c.Params("nodeId")

	return h.edit(c, fiber.StatusOK, func(s *editor.Session) error {
		if req.Data != nil {
			if err := s.UpdateNodeData(nodeID, req.Data); err != nil {
				return err
			}
		}

		if req.Position != nil {
			return s.MoveNode(nodeID, *req.Position)
		}

		return nil
	})
}

func (h *APIHandlers) RemoveNode(c fiber.Ctx) error {
	nodeID := c.Params("nodeId")

	return h.edit(c, fiber.StatusOK, func(s *editor.Session) error {
		return s.RemoveNode(nodeID)
	})
}

func (h *APIHandlers) Connect(c fiber.Ctx) error {
	var req ConnectRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	return h.edit(c, fiber.StatusCreated, func(s *editor.Session) error {
		_, err := s.Connect(req.Source, req.Target)

		return err
	})
}

func (h *APIHandlers) RemoveEdge(c fiber.Ctx) error {
	edgeID := c.Params("edgeId")

	return h.edit(c, fiber.StatusOK, func(s *editor.Session) error {
		return s.RemoveEdge(edgeID)
	})
}

func (h *APIHandlers) Select(c fiber.Ctx) error {
	var req SelectRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := session.Select(req.ID); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session.View())
}

func (h *APIHandlers) UpdateEntity(c fiber.Ctx) error {
	var patch map[string]any
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if len(patch) == 0 {
		return badRequest(c, "at least one field is required")
	}

	return h.edit(c, fiber.StatusOK, func(s *editor.Session) error {
		return s.UpdateEntity(patch)
	})
}

func (h *APIHandlers) SetPrompt(c fiber.Ctx) error {
	var req PromptRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	return h.edit(c, fiber.StatusOK, func(s *editor.Session) error {
		return s.SetPrompt(req.PromptTemplate)
	})
}

func (h *APIHandlers) SetStatus(c fiber.Ctx) error {
	var req StatusRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	return h.edit(c, fiber.StatusOK, func(s *editor.Session) error {
		return s.SetStatus(req.Status)
	})
}

func (h *APIHandlers) MoveStep(c fiber.Ctx) error {
	var req MoveStepRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	stepID := c.Params("stepId")

	return h.edit(c, fiber.StatusOK, func(s *editor.Session) error {
		return s.ReorderSteps(stepID, req.Delta)
	})
}

func (h *APIHandlers) DismissBanner(c fiber.Ctx) error {
	bannerID := c.Params("bannerId")

	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if err := session.DismissBanner(bannerID); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session.View())
}

// Validate always answers 200; the report says whether the draft can be saved.
func (h *APIHandlers) Validate(c fiber.Ctx) error {
	report, err := h.sessions.Validate(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"valid":             report.Valid(),
		"shape":             report.Shape,
		"field_errors":      report.FieldErrors,
		"conversion_errors": report.ConversionErrors,
	})
}

func (h *APIHandlers) Save(c fiber.Ctx) error {
	saved, err := h.sessions.Save(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}
