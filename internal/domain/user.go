package domain

import "time"

// Role enumerates user roles known to the dispatch engine.
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleHelpdesk   Role = "helpdesk"
	RoleTechnician Role = "technician"
)

// User is a directory entry. Technicians carry specialty flags.
type User struct {
	ID                 string
	Name               string
	Role               Role
	Active             bool
	BackboneSpecialist bool
	VendorSpecialist   bool
	// PrioritizeHomeMaintenance makes dispatch hand out home maintenance whenever any is open.
	PrioritizeHomeMaintenance bool
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// IsActiveTechnician reports whether the user may receive field work.
func (u *User) IsActiveTechnician() bool {
	return u != nil && u.Active && u.Role == RoleTechnician
}

// Actor identifies who performs an operation.
type Actor struct {
	UserID string
	Role   Role
}
