package service

import (
	"context"
	"time"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/repository"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// feeScheduleFor resolves a technician override, falling back to the global schedule.
func (e *engine) feeScheduleFor(ctx context.Context, technicianID string, ticketType domain.TicketType, global domain.FeeSchedule) (domain.FeeSchedule, error) {
	if e.fees == nil {
		return global, nil
	}
	override, err := e.fees.Get(ctx, technicianID, ticketType)
	if err != nil {
		return domain.FeeSchedule{}, apperrors.MapError(err)
	}
	if override == nil {
		return global, nil
	}
	return override.FeeSchedule, nil
}

// settle stamps the close outcome on the ticket and returns one performance log per
// assignee. The result depends only on the ticket type, the SLA outcome and the fee
// settings, so settling the same ticket again yields identical amounts.
func (e *engine) settle(ctx context.Context, ticket *domain.Ticket, team []domain.Assignment, closedAt time.Time) ([]domain.PerformanceLog, error) {
	global, err := e.settings.FeeSchedule(ctx, ticket.Type)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	withinSLA := ticket.SLADeadline.After(closedAt)
	duration := int(closedAt.Sub(ticket.CreatedAt).Minutes())
	result := domain.PerformStatusNotPerform
	if withinSLA {
		result = domain.PerformStatusPerform
	}

	snapshot := domain.Settle(global, withinSLA)
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closedAt
	ticket.DurationMinutes = &duration
	ticket.PerformStatus = &result
	ticket.TicketFee = snapshot.TicketFee
	ticket.TransportFee = snapshot.TransportFee
	ticket.Bonus = snapshot.Bonus

	logs := make([]domain.PerformanceLog, 0, len(team))
	for _, a := range team {
		schedule, err := e.feeScheduleFor(ctx, a.TechnicianID, ticket.Type, global)
		if err != nil {
			return nil, err
		}
		s := domain.Settle(schedule, withinSLA)
		logs = append(logs, domain.PerformanceLog{
			UserID:             a.TechnicianID,
			TicketID:           ticket.ID,
			Result:             result,
			CompletedWithinSLA: withinSLA,
			DurationMinutes:    duration,
			TicketFee:          s.TicketFee,
			TransportFee:       s.TransportFee,
			Bonus:              s.Bonus,
			CreatedAt:          closedAt,
		})
	}
	return logs, nil
}

// rejectOutcome stamps a rejection: no fees and a not_perform log per assignee.
func rejectOutcome(ticket *domain.Ticket, team []domain.Assignment, closedAt time.Time) []domain.PerformanceLog {
	duration := int(closedAt.Sub(ticket.CreatedAt).Minutes())
	result := domain.PerformStatusNotPerform
	ticket.Status = domain.TicketStatusRejected
	ticket.ClosedAt = &closedAt
	ticket.DurationMinutes = &duration
	ticket.PerformStatus = &result
	ticket.TicketFee, ticket.TransportFee, ticket.Bonus = 0, 0, 0

	logs := make([]domain.PerformanceLog, 0, len(team))
	for _, a := range team {
		logs = append(logs, domain.PerformanceLog{
			UserID:          a.TechnicianID,
			TicketID:        ticket.ID,
			Result:          result,
			DurationMinutes: duration,
			CreatedAt:       closedAt,
		})
	}
	return logs
}

func writeLogs(ctx context.Context, repos repository.Repositories, logs []domain.PerformanceLog) error {
	for i := range logs {
		if err := repos.Performance.Create(ctx, &logs[i]); err != nil {
			return apperrors.MapError(err)
		}
	}
	return nil
}

// clearOutcome undoes everything a close or reject stamped on the ticket.
func clearOutcome(ticket *domain.Ticket) {
	ticket.ClosedAt = nil
	ticket.DurationMinutes = nil
	ticket.PerformStatus = nil
	ticket.TicketFee, ticket.TransportFee, ticket.Bonus = 0, 0, 0
	ticket.Close = domain.CloseReport{}
}
