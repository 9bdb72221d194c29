package domain

// FeeSchedule is the amount paid for one ticket of a given type.
type FeeSchedule struct {
	TicketFee    Money
	TransportFee Money
}

// Bonus is the full payout when the SLA was met.
func (f FeeSchedule) Bonus() Money {
	return f.TicketFee + f.TransportFee
}

// TechnicianFee overrides the global schedule for one technician and ticket type.
type TechnicianFee struct {
	TechnicianID string
	TicketType   TicketType
	FeeSchedule
}

// DispatchRatio is the maintenance:installation cycle used to pick a preferred type.
type DispatchRatio struct {
	Maintenance  int
	Installation int
}

// Normalize falls back to def when the ratio cannot form a cycle.
func (r DispatchRatio) Normalize(def DispatchRatio) DispatchRatio {
	if r.Maintenance < 0 || r.Installation < 0 || r.Maintenance+r.Installation <= 0 {
		return def
	}
	return r
}

// Settlement is the fee outcome of closing a ticket for one assignee.
type Settlement struct {
	TicketFee    Money
	TransportFee Money
	Bonus        Money
	WithinSLA    bool
}

// Settle applies the SLA outcome to a schedule: the ticket fee is only paid within SLA,
// transport is always paid.
func Settle(schedule FeeSchedule, withinSLA bool) Settlement {
	s := Settlement{
		TransportFee: schedule.TransportFee,
		WithinSLA:    withinSLA,
	}
	if withinSLA {
		s.TicketFee = schedule.TicketFee
	}
	s.Bonus = s.TicketFee + s.TransportFee
	return s
}
