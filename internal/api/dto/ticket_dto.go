package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload for the public intake endpoint.
type CreateTicketRequest struct {
	Subject        string                `json:"subject" validate:"required"`
	Description    string                `json:"description" validate:"required"`
	RequesterEmail string                `json:"requester_email" validate:"required,email"`
	RequesterName  *string               `json:"requester_name"`
	DepartmentID   *string               `json:"department_id"`
	Category       string                `json:"category"`
	Priority       domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest carries a partial update. Omitted fields are left
// untouched; an explicit null assigned_to_id clears the assignment.
type UpdateTicketRequest struct {
	Status       *domain.TicketStatus   `json:"status"`
	Priority     *domain.TicketPriority `json:"priority"`
	Category     *string                `json:"category"`
	DepartmentID *string                `json:"department_id"`
	AssignedToID Optional[string]       `json:"assigned_to_id"`
	Resolution   *string                `json:"resolution"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content    string `json:"content" validate:"required"`
	IsInternal bool   `json:"is_internal"`
}

// TicketResponse is the ticket wire representation.
type TicketResponse struct {
	ID             string                `json:"id"`
	TicketNumber   string                `json:"ticket_number"`
	Subject        string                `json:"subject"`
	Description    string                `json:"description"`
	RequesterEmail string                `json:"requester_email"`
	RequesterName  *string               `json:"requester_name"`
	Category       string                `json:"category"`
	Priority       domain.TicketPriority `json:"priority"`
	Status         domain.TicketStatus   `json:"status"`
	DepartmentID   *string               `json:"department_id"`
	AssignedToID   *string               `json:"assigned_to_id"`
	CreatedByID    *string               `json:"created_by_id"`
	Resolution     *string               `json:"resolution"`
	ResponseTime   *time.Time            `json:"response_time"`
	ResolutionTime *time.Time            `json:"resolution_time"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// CommentResponse wire representation.
type CommentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   *string   `json:"author_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketHistoryResponse wire representation of an audit entry.
type TicketHistoryResponse struct {
	ID        string    `json:"id"`
	Field     string    `json:"field"`
	OldValue  *string   `json:"old_value"`
	NewValue  *string   `json:"new_value"`
	UserID    *string   `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketDetailResponse combines a ticket with its thread and audit trail.
type TicketDetailResponse struct {
	TicketResponse
	Comments []CommentResponse       `json:"comments"`
	History  []TicketHistoryResponse `json:"history"`
}

// DepartmentResponse wire representation.
type DepartmentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OpenTickets int    `json:"open_tickets"`
}
