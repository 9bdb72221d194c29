package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	"github.com/fieldops/dispatch-service/internal/repository"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// TicketService creates tickets and answers read queries.
type TicketService struct {
	engine
	reads       repository.Repositories
	performance repository.PerformanceLogRepository
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Type        domain.TicketType
	Priority    domain.TicketPriority
	Customer    domain.Customer
	LocationRef string
	Description string
}

// TicketDetails is a ticket with its current team and audit trail.
type TicketDetails struct {
	Ticket  *domain.Ticket
	Team    []domain.Assignment
	History []domain.TicketHistory
	Payouts []domain.PerformanceLog
}

// NewTicketService constructs the service. reads is used outside transactions.
func NewTicketService(deps Dependencies, reads repository.Repositories) *TicketService {
	return &TicketService{engine: newEngine(deps), reads: reads, performance: reads.Performance}
}

// CreateTicket opens a ticket with its SLA deadline and fee snapshot.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := Authorize(actor, OpCreateTicket); err != nil {
		return nil, err
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewValidationError("invalid ticket type", map[string]any{"type": input.Type})
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	name, err := requireText("customer name", input.Customer.Name)
	if err != nil {
		return nil, err
	}

	fees, err := s.settings.FeeSchedule(ctx, input.Type)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	ticket := &domain.Ticket{
		Type:     input.Type,
		Priority: input.Priority,
		Status:   domain.TicketStatusOpen,
		Customer: domain.Customer{
			Name:    name,
			Phone:   strings.TrimSpace(input.Customer.Phone),
			Address: strings.TrimSpace(input.Customer.Address),
		},
		LocationRef:  strings.TrimSpace(input.LocationRef),
		Description:  strings.TrimSpace(input.Description),
		CreatedAt:    now,
		SLADeadline:  input.Type.SLADeadline(now),
		TicketFee:    fees.TicketFee,
		TransportFee: fees.TransportFee,
		Bonus:        fees.Bonus(),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		day := s.startOfDay(now)
		seq, err := repos.Tickets.NextDailySequence(ctx, day)
		if err != nil {
			return apperrors.MapError(err)
		}
		ticket.Code = fmt.Sprintf("T-%s-%04d", day.Format("20060102"), seq)
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return apperrors.MapError(err)
		}
		return s.record(ctx, repos, actor, ticket, string(OpCreateTicket), "", "")
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(string(OpCreateTicket), ticket, "", zap.String("code", ticket.Code))
	s.publish(ctx, actor, ticket.ID, events.EventTicketCreated, events.TicketCreatedPayload{
		Code:        ticket.Code,
		Type:        ticket.Type,
		Priority:    ticket.Priority,
		SLADeadline: ticket.SLADeadline,
	})
	return ticket, nil
}

// ChangeType switches a live ticket to another type, recomputing its fee snapshot and
// SLA deadline from the original creation time.
func (s *TicketService) ChangeType(ctx context.Context, actor domain.Actor, ticketID string, newType domain.TicketType) (*domain.Ticket, error) {
	if err := Authorize(actor, OpChangeType); err != nil {
		return nil, err
	}
	if !newType.Valid() {
		return nil, apperrors.NewValidationError("invalid ticket type", map[string]any{"type": newType})
	}
	fees, err := s.settings.FeeSchedule(ctx, newType)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var (
		ticket  *domain.Ticket
		oldType domain.TicketType
		changed bool
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ticket, err = s.lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		if ticket.Type == newType {
			return nil
		}
		if ticket.Status.IsTerminal() {
			return apperrors.NewInvalidTransition(string(OpChangeType), string(ticket.Status), nil)
		}
		oldType = ticket.Type
		ticket.Type = newType
		ticket.SLADeadline = newType.SLADeadline(ticket.CreatedAt)
		ticket.TicketFee = fees.TicketFee
		ticket.TransportFee = fees.TransportFee
		ticket.Bonus = fees.Bonus()
		changed = true
		return s.commit(ctx, repos, actor, ticket, string(OpChangeType), ticket.Status,
			fmt.Sprintf("type %s -> %s", oldType, newType))
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logTransition(string(OpChangeType), ticket, ticket.Status,
			zap.String("old_type", string(oldType)), zap.String("new_type", string(newType)))
	}
	return ticket, nil
}

// GetTicket returns a ticket with its active team, audit trail and payouts.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*TicketDetails, error) {
	if err := Authorize(actor, OpViewTicket); err != nil {
		return nil, err
	}
	ticket, err := s.reads.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	team, err := s.reads.Assignments.ListActiveByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	history, err := s.reads.History.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	payouts, err := s.reads.Performance.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetails{Ticket: ticket, Team: team, History: history, Payouts: payouts}, nil
}

// ListPerformance returns a technician's performance logs in [from, to). Technicians
// may only read their own.
func (s *TicketService) ListPerformance(ctx context.Context, actor domain.Actor, userID string, from, to time.Time) ([]domain.PerformanceLog, error) {
	if err := Authorize(actor, OpListPerformance); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleTechnician && userID != actor.UserID {
		return nil, apperrors.NewForbidden("technicians may only read their own performance")
	}
	if !to.After(from) {
		return nil, apperrors.NewValidationError("to must be after from", nil)
	}
	logs, err := s.performance.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return logs, nil
}

// NormalizeLegacyStatuses rewrites rows still carrying the retired overdue status.
func (s *TicketService) NormalizeLegacyStatuses(ctx context.Context, actor domain.Actor) (int64, error) {
	if err := Authorize(actor, OpNormalizeLegacy); err != nil {
		return 0, err
	}
	var changed int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		changed, err = repos.Tickets.NormalizeLegacyStatuses(ctx)
		return apperrors.MapError(err)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("legacy statuses normalized", zap.Int64("tickets", changed))
	return changed, nil
}
