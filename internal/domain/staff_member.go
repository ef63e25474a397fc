package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent   StaffRole = "AGENT"
	StaffRoleManager StaffRole = "MANAGER"
	StaffRoleAdmin   StaffRole = "ADMIN"
)

// KnownStaffRole reports whether the value is a supported role.
func KnownStaffRole(role StaffRole) bool {
	switch role {
	case StaffRoleAgent, StaffRoleManager, StaffRoleAdmin:
		return true
	}
	return false
}

// StaffMember models an agent, change manager or administrator. Approvers
// named by routing rules are staff members.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
