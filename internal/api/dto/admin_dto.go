package dto

import (
	"time"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// FeeScheduleRequest sets fees for one ticket type.
type FeeScheduleRequest struct {
	TicketFee    domain.Money `json:"ticket_fee"`
	TransportFee domain.Money `json:"transport_fee"`
}

// DispatchRatioRequest sets the maintenance:installation cycle.
type DispatchRatioRequest struct {
	Maintenance  int `json:"maintenance"`
	Installation int `json:"installation"`
}

// TechnicianFeeRequest sets a per-technician override.
type TechnicianFeeRequest struct {
	TicketType   string       `json:"ticket_type"`
	TicketFee    domain.Money `json:"ticket_fee"`
	TransportFee domain.Money `json:"transport_fee"`
}

// RecalculateRequest bounds a bonus recalculation run by close time.
type RecalculateRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}
