package web

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukex/composer/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) TriggerRun(c fiber.Ctx) error {
	var req services.TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	runID, err := h.traces.Trigger(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerRunResponse{RunID: runID})
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		limit = parsed
	}

	runs, err := h.traces.List(c.Context(), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(runs)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	view, err := h.traces.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

// StreamRun sends every trace snapshot of the run as a server-sent event
// until the run finishes or the browser goes away.
func (h *APIHandlers) StreamRun(c fiber.Ctx) error {
	runID := c.Params("id")

	// the body is written after the handler returns, so the stream cannot
	// hang off the request context
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := h.traces.Stream(ctx, runID)
	if err != nil {
		cancel()

		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.RequestCtx().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		for event := range stream {
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("Failed to encode trace event", "run_id", runID, "error", err)

				continue
			}

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.GetType(), payload); err != nil {
				return
			}

			if err := w.Flush(); err != nil {
				return
			}
		}
	})

	return nil
}
