package dispatch

import (
	"time"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// DefaultRatio hands out four maintenance jobs for every two installations.
var DefaultRatio = domain.DispatchRatio{Maintenance: 4, Installation: 2}

// PreferredType picks the non-specialist type for the next job from the cyclical ratio,
// given how many tickets the technician has completed today.
func PreferredType(ratio domain.DispatchRatio, completedToday int) domain.TicketType {
	ratio = ratio.Normalize(DefaultRatio)
	cycle := ratio.Maintenance + ratio.Installation
	if completedToday < 0 {
		completedToday = 0
	}
	if completedToday%cycle < ratio.Maintenance {
		return domain.TicketTypeHomeMaintenance
	}
	return domain.TicketTypeInstallation
}

// EligibleTypes lists the ticket types a technician may be dispatched at all.
func EligibleTypes(tech *domain.User) []domain.TicketType {
	if tech.BackboneSpecialist {
		return []domain.TicketType{domain.TicketTypeBackboneMaintenance}
	}
	return []domain.TicketType{domain.TicketTypeHomeMaintenance, domain.TicketTypeInstallation}
}

// BuildPool narrows the open tickets down to the ones the selector should consider for tech.
// It returns the pool and the type preference for this call.
//
// Overdue tickets of any type tech may work come first and make up the whole pool when
// present. Otherwise backbone specialists only see backbone work, and everyone else gets
// home maintenance first when flagged to prioritise it, then the ratio's preferred type,
// falling back to the other type when the preferred one has nothing open.
func BuildPool(open []domain.Ticket, tech *domain.User, ratio domain.DispatchRatio, completedToday int, now time.Time) ([]domain.Ticket, domain.TicketType) {
	var eligible []domain.Ticket
	for _, t := range EligibleTypes(tech) {
		eligible = append(eligible, filterType(open, t)...)
	}
	preferred := preferredPoolType(eligible, tech, ratio, completedToday)

	var overdue []domain.Ticket
	for i := range eligible {
		if eligible[i].IsOverdue(now) {
			overdue = append(overdue, eligible[i])
		}
	}
	if len(overdue) > 0 {
		return overdue, preferred
	}
	return filterType(eligible, preferred), preferred
}

func preferredPoolType(eligible []domain.Ticket, tech *domain.User, ratio domain.DispatchRatio, completedToday int) domain.TicketType {
	if tech.BackboneSpecialist {
		return domain.TicketTypeBackboneMaintenance
	}
	if tech.PrioritizeHomeMaintenance && len(filterType(eligible, domain.TicketTypeHomeMaintenance)) > 0 {
		return domain.TicketTypeHomeMaintenance
	}
	preferred := PreferredType(ratio, completedToday)
	if len(filterType(eligible, preferred)) > 0 {
		return preferred
	}
	if preferred == domain.TicketTypeInstallation {
		return domain.TicketTypeHomeMaintenance
	}
	return domain.TicketTypeInstallation
}

func filterType(tickets []domain.Ticket, t domain.TicketType) []domain.Ticket {
	var out []domain.Ticket
	for _, ticket := range tickets {
		if ticket.Type == t && ticket.Status.IsDispatchable() {
			out = append(out, ticket)
		}
	}
	return out
}
