package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// DepartmentsHandler exposes department reference data.
type DepartmentsHandler struct {
	departments repository.DepartmentRepository
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(departments repository.DepartmentRepository) *DepartmentsHandler {
	return &DepartmentsHandler{departments: departments}
}

// ListDepartments GET /api/departments.
func (h *DepartmentsHandler) ListDepartments(c *fiber.Ctx) error {
	departments, err := h.departments.List(c.Context())
	if err != nil {
		return err
	}

	items := make([]dto.DepartmentResponse, 0, len(departments))
	for _, dept := range departments {
		open, err := h.departments.CountOpenTickets(c.Context(), dept.ID)
		if err != nil {
			return err
		}
		items = append(items, dto.DepartmentResponse{
			ID:          dept.ID,
			Name:        dept.Name,
			Description: dept.Description,
			OpenTickets: open,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
