package events

import (
	"time"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketReopened      EventType = "ticket_reopened"
)

// AllEventTypes lists every event the engine emits.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketAssigned,
	EventTicketStatusChanged,
	EventTicketClosed,
	EventTicketReopened,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string      `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Code        string                `json:"code"`
	Type        domain.TicketType     `json:"type"`
	Priority    domain.TicketPriority `json:"priority"`
	SLADeadline time.Time             `json:"sla_deadline"`
}

// TicketAssignedPayload payload. SelectionReason is set for auto-assignments only.
type TicketAssignedPayload struct {
	TechnicianIDs   []string              `json:"technician_ids"`
	AssignmentType  domain.AssignmentType `json:"assignment_type"`
	SelectionReason string                `json:"selection_reason,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Operation string              `json:"operation"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Operation       string               `json:"operation"`
	PerformStatus   domain.PerformStatus `json:"perform_status"`
	WithinSLA       bool                 `json:"within_sla"`
	DurationMinutes int                  `json:"duration_minutes"`
	Bonus           domain.Money         `json:"bonus"`
}

// TicketReopenedPayload payload.
type TicketReopenedPayload struct {
	Mode          string              `json:"mode"`
	Reason        string              `json:"reason"`
	NewStatus     domain.TicketStatus `json:"new_status"`
	TechnicianIDs []string            `json:"technician_ids,omitempty"`
}
