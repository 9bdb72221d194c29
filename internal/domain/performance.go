package domain

import "time"

// PerformanceLog is a technician's outcome on one closed ticket. It is deleted on reopen.
type PerformanceLog struct {
	ID                 string
	UserID             string
	TicketID           string
	Result             PerformStatus
	CompletedWithinSLA bool
	DurationMinutes    int
	TicketFee          Money
	TransportFee       Money
	Bonus              Money
	CreatedAt          time.Time
}
