package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketReceived      EventType = "ticket_received"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventCommentAdded        EventType = "comment_added"
)

// Event represents a lifecycle event emitted by the ticket service after
// a mutation has committed. Delivery is best effort; event outcomes never
// reach the mutating caller.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketReceivedPayload payload.
type TicketReceivedPayload struct {
	TicketNumber   string                `json:"ticket_number"`
	Subject        string                `json:"subject"`
	RequesterEmail string                `json:"requester_email"`
	Priority       domain.TicketPriority `json:"priority"`
	Category       string                `json:"category"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	TicketNumber   string              `json:"ticket_number"`
	Subject        string              `json:"subject"`
	RequesterEmail string              `json:"requester_email"`
	OldStatus      domain.TicketStatus `json:"old_status"`
	NewStatus      domain.TicketStatus `json:"new_status"`
	Resolution     *string             `json:"resolution,omitempty"`
}

// CommentAddedPayload payload. Only non-internal comments are published.
type CommentAddedPayload struct {
	TicketNumber   string  `json:"ticket_number"`
	Subject        string  `json:"subject"`
	RequesterEmail string  `json:"requester_email"`
	CommentID      string  `json:"comment_id"`
	Content        string  `json:"content"`
	AuthorID       *string `json:"author_id,omitempty"`
}
