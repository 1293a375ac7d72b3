package domain

import "time"

// Department represents a high-level organizational unit tickets are
// routed to. The core only reads departments; their administration lives
// outside this service.
type Department struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
