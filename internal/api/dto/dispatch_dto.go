package dto

import "github.com/fieldops/dispatch-service/internal/domain"

// AutoAssignRequest names the partner riding with the requesting technician.
type AutoAssignRequest struct {
	PartnerID string `json:"partner_id"`
}

// DispatchResponse is the ticket handed out and why it was chosen.
type DispatchResponse struct {
	Ticket        TicketResponse    `json:"ticket"`
	Reason        string            `json:"reason"`
	DistanceKm    *float64          `json:"distance_km,omitempty"`
	PreferredType domain.TicketType `json:"preferred_type"`
	Team          []string          `json:"team"`
}
