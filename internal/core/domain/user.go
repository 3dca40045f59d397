package domain

import "github.com/google/uuid"

// Role is the platform role carried in the access token.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Known reports whether r is one of the platform roles.
func (r Role) Known() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller, as asserted by the access token.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// CanManageProducts reports whether the role may create marketplace products.
func (p Principal) CanManageProducts() bool {
	return p.Role == RoleAdmin || p.Role == RoleTeacher
}
