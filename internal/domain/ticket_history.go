package domain

import "time"

// TicketHistory is an immutable audit trail entry written with every transition.
type TicketHistory struct {
	ID          string
	TicketID    string
	Operation   string
	ChangedByID *string
	OldStatus   TicketStatus
	NewStatus   TicketStatus
	Comment     string
	CreatedAt   time.Time
}
