package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusResolved   TicketStatus = "Resolved"
	TicketStatusClosed     TicketStatus = "Closed"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "Low"
	TicketPriorityMedium   TicketPriority = "Medium"
	TicketPriorityHigh     TicketPriority = "High"
	TicketPriorityCritical TicketPriority = "Critical"
)

// DefaultCategory is assigned when the requester does not pick one.
const DefaultCategory = "General Issues"

// Categories lists the fixed issue categories offered at intake.
var Categories = []string{
	"Hardware Issues",
	"Network & Connectivity Issues",
	"Software Issues",
	"Email & Communication Issues",
	"Access & Security Issues",
	"System Performance Issues",
	"Peripheral Devices",
	DefaultCategory,
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
//
// ResponseTime and ResolutionTime are write-once: ResponseTime is the
// instant the ticket first left Open for In Progress, ResolutionTime the
// instant it first reached Resolved or Closed. Later status changes,
// including reopening, never overwrite them.
type Ticket struct {
	ID             string
	TicketNumber   string
	Subject        string
	Description    string
	RequesterEmail string
	RequesterName  *string
	Category       string
	Priority       TicketPriority
	Status         TicketStatus
	DepartmentID   *string
	AssignedToID   *string
	CreatedByID    *string
	Resolution     *string
	ResponseTime   *time.Time
	ResolutionTime *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Unresolved reports whether the ticket is still being worked.
func (t *Ticket) Unresolved() bool {
	return t.Status != TicketStatusResolved && t.Status != TicketStatusClosed
}
