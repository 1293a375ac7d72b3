package domain

import "time"

// UserRole enumerates directory roles.
type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleTechnician UserRole = "technician"
	UserRoleUser       UserRole = "user"
)

// User is an account in the staff directory. Requesters do not need an
// account; tickets link to one only when the requester email matches.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	DepartmentID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
