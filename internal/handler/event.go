package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Uttam1728/event-analytics/internal/ingest"
	"github.com/Uttam1728/event-analytics/internal/models"
)

// Submitter accepts one event into the pipeline.
type Submitter interface {
	Submit(ctx context.Context, event models.Event) (ingest.Receipt, error)
}

type EventHandler struct {
	gateway Submitter
}

func NewEventHandler(gateway Submitter) *EventHandler {
	return &EventHandler{gateway: gateway}
}

func (h *EventHandler) HandleEvent(c *fiber.Ctx) error {
	var event models.Event
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.EventResponse{
			Accepted: false,
			Message:  "Invalid Request Body",
		})
	}

	receipt, err := h.gateway.Submit(c.Context(), event)
	if err != nil {
		return respondSubmitError(c, receipt, err)
	}

	return c.Status(fiber.StatusCreated).JSON(models.EventResponse{
		Accepted: true,
		Message:  "Page view event processed successfully",
		EventID:  receipt.EventID,
	})
}

func respondSubmitError(c *fiber.Ctx, receipt ingest.Receipt, err error) error {
	var vErr *ingest.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(models.EventResponse{
			Accepted: false,
			Message:  vErr.Error(),
			EventID:  receipt.EventID,
		})
	case errors.Is(err, ingest.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(models.EventResponse{
			Accepted: false,
			Message:  "event_id was already accepted",
			EventID:  receipt.EventID,
		})
	case errors.Is(err, ingest.ErrUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.EventResponse{
			Accepted: false,
			Message:  "event store unavailable, retry later",
			EventID:  receipt.EventID,
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(models.EventResponse{
			Accepted: false,
			Message:  "failed to process event",
			EventID:  receipt.EventID,
		})
	}
}
