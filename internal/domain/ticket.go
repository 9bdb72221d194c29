package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen              TicketStatus = "open"
	TicketStatusWaitingAssignment TicketStatus = "waiting_assignment"
	TicketStatusAssigned          TicketStatus = "assigned"
	TicketStatusInProgress        TicketStatus = "in_progress"
	TicketStatusPendingRejection  TicketStatus = "pending_rejection"
	TicketStatusRejected          TicketStatus = "rejected"
	TicketStatusClosed            TicketStatus = "closed"

	// TicketStatusOverdue only exists in rows written by older releases.
	TicketStatusOverdue TicketStatus = "overdue"
)

// IsTerminal reports whether the status ends the ticket's working life.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusRejected
}

// IsActiveJob reports whether a technician assigned to a ticket in this status is busy.
func (s TicketStatus) IsActiveJob() bool {
	return s == TicketStatusAssigned || s == TicketStatusInProgress || s == TicketStatusOverdue
}

// IsDispatchable reports whether the ticket can be picked up by auto-assignment.
func (s TicketStatus) IsDispatchable() bool {
	return s == TicketStatusOpen || s == TicketStatusWaitingAssignment
}

// ActiveJobStatuses lists the statuses counted by the one-active-job rule.
var ActiveJobStatuses = []TicketStatus{TicketStatusAssigned, TicketStatusInProgress, TicketStatusOverdue}

// TicketType identifies the kind of field work.
type TicketType string

const (
	TicketTypeHomeMaintenance     TicketType = "home_maintenance"
	TicketTypeBackboneMaintenance TicketType = "backbone_maintenance"
	TicketTypeInstallation        TicketType = "installation"
)

// TicketTypes lists every known ticket type.
var TicketTypes = []TicketType{TicketTypeHomeMaintenance, TicketTypeBackboneMaintenance, TicketTypeInstallation}

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeHomeMaintenance, TicketTypeBackboneMaintenance, TicketTypeInstallation:
		return true
	}
	return false
}

// SLAWindow returns how long after creation a ticket of this type must be closed.
func (t TicketType) SLAWindow() time.Duration {
	if t == TicketTypeInstallation {
		return 72 * time.Hour
	}
	return 24 * time.Hour
}

// SLADeadline anchors the SLA window for the type at createdAt.
func (t TicketType) SLADeadline(createdAt time.Time) time.Time {
	return createdAt.Add(t.SLAWindow())
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// Rank orders priorities, lower is more urgent. Unknown values sort last.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityCritical:
		return 0
	case TicketPriorityHigh:
		return 1
	case TicketPriorityMedium:
		return 2
	case TicketPriorityLow:
		return 3
	}
	return 99
}

// PerformStatus records whether the ticket counted as performed for bonus purposes.
type PerformStatus string

const (
	PerformStatusPerform    PerformStatus = "perform"
	PerformStatusNotPerform PerformStatus = "not_perform"
)

// Customer holds the contact fields captured at creation.
type Customer struct {
	Name    string
	Phone   string
	Address string
}

// CloseReport carries the artifacts a technician submits when closing.
type CloseReport struct {
	ActionDescription string
	SpeedtestRef      string
	ProofRefs         []string
	Note              string
}

// Ticket is the aggregate for field-service work orders.
type Ticket struct {
	ID              string
	Code            string
	Number          int64
	Type            TicketType
	Priority        TicketPriority
	Status          TicketStatus
	Customer        Customer
	LocationRef     string
	Description     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SLADeadline     time.Time
	StartedAt       *time.Time
	ClosedAt        *time.Time
	DurationMinutes *int
	TicketFee       Money
	TransportFee    Money
	Bonus           Money
	PerformStatus   *PerformStatus
	RejectionReason string
	ReopenReason    string
	Close           CloseReport
}

// IsOverdue reports whether the SLA deadline has already passed at now.
func (t *Ticket) IsOverdue(now time.Time) bool {
	return t.SLADeadline.Before(now)
}
