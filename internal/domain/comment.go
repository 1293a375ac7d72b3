package domain

import "time"

// Comment captures a reply or note in a ticket thread. Internal comments
// are never exposed to the requester and never trigger notifications.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   *string
	Content    string
	IsInternal bool
	CreatedAt  time.Time
}
