package domain

import "time"

// Tracked field names recorded in ticket history.
const (
	HistoryFieldStatus     = "status"
	HistoryFieldPriority   = "priority"
	HistoryFieldCategory   = "category"
	HistoryFieldAssignee   = "assignedToId"
	HistoryFieldDepartment = "departmentId"
	HistoryFieldResolution = "resolution"
)

// TicketHistory is an immutable audit trail entry: one observed field
// change on one ticket. Entries are appended, never mutated or deleted.
type TicketHistory struct {
	ID        string
	TicketID  string
	Field     string
	OldValue  *string
	NewValue  *string
	UserID    *string
	CreatedAt time.Time
}
