package dto

import (
	"time"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// CustomerPayload carries the contact fields of a ticket.
type CustomerPayload struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Type        domain.TicketType     `json:"type"`
	Priority    domain.TicketPriority `json:"priority"`
	Customer    CustomerPayload       `json:"customer"`
	LocationRef string                `json:"location_ref"`
	Description string                `json:"description"`
}

// ChangeTypeRequest payload.
type ChangeTypeRequest struct {
	Type domain.TicketType `json:"type"`
}

// AssignRequest adds one technician to a ticket.
type AssignRequest struct {
	TechnicianID string `json:"technician_id"`
}

// TeamRequest replaces the whole team.
type TeamRequest struct {
	TechnicianIDs []string `json:"technician_ids"`
}

// ReasonRequest is used by transitions that only need a reason.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ReopenRequest payload for reopening a closed ticket.
type ReopenRequest struct {
	Reason        string   `json:"reason"`
	TechnicianIDs []string `json:"technician_ids"`
}

// ReopenRejectedRequest payload. Mode is "current" or "auto".
type ReopenRejectedRequest struct {
	Reason string `json:"reason"`
	Mode   string `json:"mode"`
}

// CloseRequest is the technician's close report.
type CloseRequest struct {
	ActionDescription string   `json:"action_description"`
	SpeedtestRef      string   `json:"speedtest_ref"`
	ProofRefs         []string `json:"proof_refs"`
	Note              string   `json:"note"`
}

// TicketResponse is the ticket as returned by every transition.
type TicketResponse struct {
	ID              string                `json:"id"`
	Code            string                `json:"code"`
	Number          int64                 `json:"number"`
	Type            domain.TicketType     `json:"type"`
	Priority        domain.TicketPriority `json:"priority"`
	Status          domain.TicketStatus   `json:"status"`
	Customer        CustomerPayload       `json:"customer"`
	LocationRef     string                `json:"location_ref"`
	Description     string                `json:"description"`
	SLADeadline     time.Time             `json:"sla_deadline"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	ClosedAt        *time.Time            `json:"closed_at,omitempty"`
	DurationMinutes *int                  `json:"duration_minutes,omitempty"`
	PerformStatus   *domain.PerformStatus `json:"perform_status,omitempty"`
	TicketFee       domain.Money          `json:"ticket_fee"`
	TransportFee    domain.Money          `json:"transport_fee"`
	Bonus           domain.Money          `json:"bonus"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	ReopenReason    string                `json:"reopen_reason,omitempty"`
	Close           *CloseRequest         `json:"close_report,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// AssignmentResponse is one active team member.
type AssignmentResponse struct {
	TechnicianID   string                `json:"technician_id"`
	AssignmentType domain.AssignmentType `json:"assignment_type"`
	AssignedAt     time.Time             `json:"assigned_at"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string              `json:"id"`
	Operation   string              `json:"operation"`
	ChangedByID *string             `json:"changed_by_id"`
	OldStatus   domain.TicketStatus `json:"old_status,omitempty"`
	NewStatus   domain.TicketStatus `json:"new_status"`
	Comment     string              `json:"comment,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// PerformanceLogResponse is one technician payout line.
type PerformanceLogResponse struct {
	UserID             string               `json:"user_id"`
	TicketID           string               `json:"ticket_id"`
	Result             domain.PerformStatus `json:"result"`
	CompletedWithinSLA bool                 `json:"completed_within_sla"`
	DurationMinutes    int                  `json:"duration_minutes"`
	TicketFee          domain.Money         `json:"ticket_fee"`
	TransportFee       domain.Money         `json:"transport_fee"`
	Bonus              domain.Money         `json:"bonus"`
	CreatedAt          time.Time            `json:"created_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Team    []AssignmentResponse     `json:"team"`
	History []TicketHistoryResponse  `json:"history"`
	Payouts []PerformanceLogResponse `json:"payouts"`
}
