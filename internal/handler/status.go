package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Uttam1728/event-analytics/internal/models"
	"github.com/Uttam1728/event-analytics/internal/status"
	"github.com/Uttam1728/event-analytics/internal/storage"
)

// Snapshotter produces the persistence pipeline health snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context) (status.Snapshot, error)
}

type StatusHandler struct {
	reporter Snapshotter
	dataDir  string
}

func NewStatusHandler(reporter Snapshotter, dataDir string) *StatusHandler {
	return &StatusHandler{reporter: reporter, dataDir: dataDir}
}

func (h *StatusHandler) HandleStatus(c *fiber.Ctx) error {
	snap, err := h.reporter.Snapshot(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to collect persistence status",
		})
	}
	return c.JSON(snap)
}

func (h *StatusHandler) HandleFiles(c *fiber.Ctx) error {
	files, err := storage.Inventory(h.dataDir)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list persisted files",
		})
	}

	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}

	return c.JSON(models.FilesResponse{
		Files:          files,
		TotalFiles:     len(files),
		TotalSizeBytes: total,
	})
}

func (h *StatusHandler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "event-analytics",
	})
}
