package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Uttam1728/event-analytics/internal/models"
)

// minuteSeriesWindow is the trailing window served by the per-minute view.
const minuteSeriesWindow = 5

// BucketReader is the read-only side of the minute-bucket store.
type BucketReader interface {
	Get(ctx context.Context, key string) (int64, error)
	ListRecent(ctx context.Context, eventType models.EventType, now time.Time, n int) ([]models.MinutePoint, error)
}

type AnalyticsHandler struct {
	buckets BucketReader
}

func NewAnalyticsHandler(buckets BucketReader) *AnalyticsHandler {
	return &AnalyticsHandler{buckets: buckets}
}

// HandlePageViewsPerMinute returns the trailing five minutes of page-view
// counts, zero-padded so the window is always gap free.
func (h *AnalyticsHandler) HandlePageViewsPerMinute(c *fiber.Ctx) error {
	points, err := h.buckets.ListRecent(c.Context(), models.EventTypePageView, time.Now(), minuteSeriesWindow)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to retrieve analytics data",
		})
	}

	return c.JSON(fiber.Map{
		"page_views_per_minute": points,
	})
}

func (h *AnalyticsHandler) HandleMinuteBucket(c *fiber.Ctx) error {
	key := c.Params("bucket_key")
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "bucket_key is required",
		})
	}

	count, err := h.buckets.Get(c.Context(), key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to retrieve bucket " + key,
		})
	}

	return c.JSON(fiber.Map{key: count})
}
