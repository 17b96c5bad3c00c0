package web

import "github.com/gofiber/fiber/v3"

// Routes mounts every console endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	s := router.Group("/sessions")
	s.Get("/", h.ListSessions)
	s.Post("/", h.OpenSession)
	s.Get("/:id", h.GetSession)
	s.Delete("/:id", h.CloseSession)
	s.Post("/:id/discard", h.DiscardSession)
	s.Post("/:id/library/refresh", h.RefreshLibrary)

	s.Post("/:id/nodes", h.AddNode)
	s.Patch("/:id/nodes/:nodeId", h.UpdateNode)
	s.Delete("/:id/nodes/:nodeId", h.RemoveNode)
	s.Post("/:id/edges", h.Connect)
	s.Delete("/:id/edges/:edgeId", h.RemoveEdge)
	s.Put("/:id/selection", h.Select)

	s.Patch("/:id/entity", h.UpdateEntity)
	s.Put("/:id/prompt", h.SetPrompt)
	s.Post("/:id/status", h.SetStatus)
	s.Post("/:id/steps/:stepId/move", h.MoveStep)
	s.Delete("/:id/banners/:bannerId", h.DismissBanner)

	s.Post("/:id/validate", h.Validate)
	s.Post("/:id/save", h.Save)

	l := router.Group("/library")
	l.Get("/entities", h.LibraryEntities)
	l.Get("/tools", h.LibraryTools)

	r := router.Group("/runs")
	r.Get("/", h.ListRuns)
	r.Post("/", h.TriggerRun)
	r.Get("/:id", h.GetRun)
	r.Get("/:id/stream", h.StreamRun)

	c := router.Group("/checkpoints")
	c.Get("/", h.PendingCheckpoints)
	c.Post("/:id/respond", h.RespondCheckpoint)

	router.Get("/health", h.HealthCheck)
}
