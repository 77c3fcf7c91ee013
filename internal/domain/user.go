package domain

import "time"

// UserRole enumerates supported roles.
type UserRole string

const (
	UserRoleManager UserRole = "manager"
	UserRoleWorker  UserRole = "worker"
	UserRoleViewer  UserRole = "viewer"
)

// ValidRole reports whether the role is one the service knows.
func ValidRole(r UserRole) bool {
	switch r {
	case UserRoleManager, UserRoleWorker, UserRoleViewer:
		return true
	}
	return false
}

// User represents an account within the platform.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      UserRole
	CreatedAt time.Time
}

// Actor is the resolved identity of the caller of an orchestrated operation.
// Handlers resolve it once from the auth token; the workflow layer never
// looks a role up mid-operation.
type Actor struct {
	ID   string
	Role UserRole
}
