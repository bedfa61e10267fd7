package users

import (
	"time"

	"github.com/google/uuid"
)

// Role is the caller's role as carried in the identity context. Token
// issuance lives outside this service; the engine only consumes claims.
type Role string

const (
	// RolePatient may enroll themselves and cancel their own queue entry.
	RolePatient Role = "PATIENT"
	// RoleAdmin operates queue entries within their bound department.
	RoleAdmin Role = "ADMIN"
	// RoleCore is an administrative role with the same queue powers as admin.
	RoleCore Role = "CORE"
	// RoleSuper bypasses the department-scope check entirely.
	RoleSuper Role = "SUPER"
)

// User is the minimal identity the queue engine tracks: who someone is,
// what they may do, and which department they are bound to. Profile data
// beyond this belongs to the external identity service.
type User struct {
	ID           uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	Username     string     `json:"username" gorm:"uniqueIndex;not null"`
	FullName     string     `json:"full_name"`
	Role         Role       `json:"role" gorm:"type:varchar(10);not null;default:'PATIENT'"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func IsValidRole(role string) bool {
	switch Role(role) {
	case RolePatient, RoleAdmin, RoleCore, RoleSuper:
		return true
	default:
		return false
	}
}

// IsAdministrative reports whether the role belongs to the admin class
// (admin, core or super) that may drive queue transitions.
func (r Role) IsAdministrative() bool {
	switch r {
	case RoleAdmin, RoleCore, RoleSuper:
		return true
	}
	return false
}

// IsSuper reports whether the role is exempt from department scoping
func (r Role) IsSuper() bool {
	return r == RoleSuper
}
