package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/service"
)

// StatsHandler serves dashboard statistics.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler constructs handler.
func NewStatsHandler(statsService *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: statsService}
}

// GetStatistics GET /api/statistics.
func (h *StatsHandler) GetStatistics(c *fiber.Ctx) error {
	snapshot, err := h.stats.Snapshot(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": snapshot})
}
