package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/repository"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// BonusService regenerates payouts for closed tickets from the current fee settings.
type BonusService struct {
	engine
	tickets repository.TicketRepository
}

// RecalculationResult summarizes one recalculation run.
type RecalculationResult struct {
	Tickets int          `json:"tickets"`
	Logs    int          `json:"logs"`
	Total   domain.Money `json:"total_bonus"`
}

// NewBonusService creates the service. tickets is used to list candidates outside transactions.
func NewBonusService(deps Dependencies, tickets repository.TicketRepository) *BonusService {
	return &BonusService{engine: newEngine(deps), tickets: tickets}
}

// Recalculate re-settles every ticket closed in [from, to), one transaction per ticket.
// Closing times and SLA outcomes are kept, so running it twice with the same settings
// produces identical amounts.
func (s *BonusService) Recalculate(ctx context.Context, actor domain.Actor, from, to time.Time) (*RecalculationResult, error) {
	if err := Authorize(actor, OpRecalculateBonuses); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, apperrors.NewValidationError("to must be after from", nil)
	}
	closed, err := s.tickets.ListClosedBetween(ctx, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	result := &RecalculationResult{}
	for _, candidate := range closed {
		var written []domain.PerformanceLog
		err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			ticket, err := s.lockTicket(ctx, repos, candidate.ID)
			if err != nil {
				return err
			}
			if ticket.Status != domain.TicketStatusClosed || ticket.ClosedAt == nil {
				return nil
			}
			team, err := repos.Assignments.ListActiveByTicket(ctx, ticket.ID)
			if err != nil {
				return apperrors.MapError(err)
			}
			if _, err := repos.Performance.DeleteByTicket(ctx, ticket.ID); err != nil {
				return apperrors.MapError(err)
			}
			logs, err := s.settle(ctx, ticket, team, *ticket.ClosedAt)
			if err != nil {
				return err
			}
			if err := writeLogs(ctx, repos, logs); err != nil {
				return err
			}
			written = logs
			return s.commit(ctx, repos, actor, ticket, string(OpRecalculateBonuses), ticket.Status, "")
		})
		if err != nil {
			return nil, err
		}
		if written == nil {
			continue
		}
		result.Tickets++
		result.Logs += len(written)
		for _, l := range written {
			result.Total += l.Bonus
		}
	}

	s.metrics.RecordTransition(string(OpRecalculateBonuses))
	s.logger.Info("bonuses recalculated",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("tickets", result.Tickets),
		zap.Int("logs", result.Logs),
		zap.Stringer("total_bonus", result.Total))
	return result, nil
}
