package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/pkg/util"
)

// Validator validates request DTOs.
type Validator interface {
	Validate(i any) error
}

// TicketsHandler exposes the ticket lifecycle over HTTP.
type TicketsHandler struct {
	service  *service.TicketService
	validate Validator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, validate Validator) *TicketsHandler {
	return &TicketsHandler{service: ticketService, validate: validate}
}

// CreateTicket POST /api/tickets. Intake is public: requesters do not
// need an account.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Validate(req); err != nil {
		return err
	}

	ticket, err := h.service.CreateTicket(c.Context(), service.TicketCreateInput{
		Subject:        req.Subject,
		Description:    req.Description,
		RequesterEmail: req.RequesterEmail,
		RequesterName:  req.RequesterName,
		DepartmentID:   req.DepartmentID,
		Category:       req.Category,
		Priority:       req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.ListTickets(c.Context(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, comments, history, err := h.service.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, comments, history)})
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	input := service.TicketUpdateInput{
		Status:       req.Status,
		Priority:     req.Priority,
		Category:     req.Category,
		DepartmentID: req.DepartmentID,
		Resolution:   req.Resolution,
	}
	if req.AssignedToID.Present {
		if req.AssignedToID.Null {
			input.ClearAssignee = true
		} else {
			value := req.AssignedToID.Value
			input.AssignedToID = &value
		}
	}

	ticket, err := h.service.UpdateTicket(c.Context(), c.Params("id"), actingUserID(c), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Validate(req); err != nil {
		return err
	}

	comment, err := h.service.AddComment(c.Context(), c.Params("id"), actingUserID(c), req.Content, req.IsInternal)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

func actingUserID(c *fiber.Ctx) *string {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil
	}
	return &principal.User.ID
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if category := c.Query("category"); category != "" {
		filter.Category = &category
	}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}
	if assignee := c.Query("assigned_to_id"); assignee != "" {
		filter.AssignedToID = &assignee
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:             ticket.ID,
		TicketNumber:   ticket.TicketNumber,
		Subject:        ticket.Subject,
		Description:    ticket.Description,
		RequesterEmail: ticket.RequesterEmail,
		RequesterName:  ticket.RequesterName,
		Category:       ticket.Category,
		Priority:       ticket.Priority,
		Status:         ticket.Status,
		DepartmentID:   ticket.DepartmentID,
		AssignedToID:   ticket.AssignedToID,
		CreatedByID:    ticket.CreatedByID,
		Resolution:     ticket.Resolution,
		ResponseTime:   ticket.ResponseTime,
		ResolutionTime: ticket.ResolutionTime,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, comments []domain.Comment, history []domain.TicketHistory) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		TicketResponse: ticketResponse(ticket),
		Comments:       make([]dto.CommentResponse, 0, len(comments)),
		History:        make([]dto.TicketHistoryResponse, 0, len(history)),
	}
	for i := range comments {
		resp.Comments = append(resp.Comments, commentResponse(&comments[i]))
	}
	for _, entry := range history {
		resp.History = append(resp.History, dto.TicketHistoryResponse{
			ID:        entry.ID,
			Field:     entry.Field,
			OldValue:  entry.OldValue,
			NewValue:  entry.NewValue,
			UserID:    entry.UserID,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:         comment.ID,
		TicketID:   comment.TicketID,
		AuthorID:   comment.AuthorID,
		Content:    comment.Content,
		IsInternal: comment.IsInternal,
		CreatedAt:  comment.CreatedAt,
	}
}
