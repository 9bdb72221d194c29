package domain

import "time"

// MaxActiveAssignees caps the number of active assignment rows per ticket.
const MaxActiveAssignees = 2

// AssignmentType records how a technician was bound to a ticket.
type AssignmentType string

const (
	AssignmentTypeManual AssignmentType = "manual"
	AssignmentTypeAuto   AssignmentType = "auto"
)

// Assignment links a technician to a ticket. Superseded rows are deactivated, never deleted.
type Assignment struct {
	ID             string
	TicketID       string
	TechnicianID   string
	Active         bool
	AssignmentType AssignmentType
	AssignedAt     time.Time
}
