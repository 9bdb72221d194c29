package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	"github.com/fieldops/dispatch-service/internal/repository"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// AssignmentService handles manual team changes by staff.
type AssignmentService struct {
	engine
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps Dependencies) *AssignmentService {
	return &AssignmentService{engine: newEngine(deps)}
}

// ManualAssign adds one technician to a ticket. Assigning someone already on the team is
// a no-op; a third assignee is refused.
func (s *AssignmentService) ManualAssign(ctx context.Context, actor domain.Actor, ticketID, technicianID string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpManualAssign); err != nil {
		return nil, err
	}
	technicianID = strings.TrimSpace(technicianID)
	if technicianID == "" {
		return nil, apperrors.NewValidationError("technician id is required", nil)
	}
	if _, err := s.technician(ctx, technicianID); err != nil {
		return nil, err
	}

	var (
		ticket  *domain.Ticket
		from    domain.TicketStatus
		changed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Assignments.LockTechnicians(ctx, technicianID); err != nil {
			return apperrors.MapError(err)
		}
		var err error
		ticket, err = s.lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		from = ticket.Status
		switch from {
		case domain.TicketStatusOpen, domain.TicketStatusWaitingAssignment,
			domain.TicketStatusAssigned, domain.TicketStatusInProgress:
		default:
			return apperrors.NewInvalidTransition(string(OpManualAssign), string(from), nil)
		}

		team, err := repos.Assignments.ListActiveByTicket(ctx, ticket.ID)
		if err != nil {
			return apperrors.MapError(err)
		}
		for _, a := range team {
			if a.TechnicianID == technicianID {
				return nil
			}
		}
		if len(team) >= domain.MaxActiveAssignees {
			return apperrors.NewBusinessRule("ticket already has the maximum number of assignees",
				map[string]any{"ticket_id": ticket.ID, "max": domain.MaxActiveAssignees})
		}
		if err := s.ensureFree(ctx, repos, ticket.ID, technicianID); err != nil {
			return err
		}
		if err := s.bindTeam(ctx, repos, ticket.ID, []string{technicianID}, domain.AssignmentTypeManual, s.now()); err != nil {
			return err
		}
		if from.IsDispatchable() {
			ticket.Status = domain.TicketStatusAssigned
		}
		changed = true
		return s.commit(ctx, repos, actor, ticket, string(OpManualAssign), from, "added "+technicianID)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logTransition(string(OpManualAssign), ticket, from, zap.String("technician_id", technicianID))
		s.publish(ctx, actor, ticket.ID, events.EventTicketAssigned, events.TicketAssignedPayload{
			TechnicianIDs:  []string{technicianID},
			AssignmentType: domain.AssignmentTypeManual,
		})
		if from != ticket.Status {
			s.publishStatus(ctx, actor, ticket, string(OpManualAssign), from, "")
		}
	}
	return ticket, nil
}

// Reassign replaces the whole team with 1..2 technicians and moves the ticket to assigned.
// A ticket that was in progress loses its progress.
func (s *AssignmentService) Reassign(ctx context.Context, actor domain.Actor, ticketID string, technicianIDs []string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpReassign); err != nil {
		return nil, err
	}
	team, err := s.technicians(ctx, technicianIDs)
	if err != nil {
		return nil, err
	}

	var (
		ticket *domain.Ticket
		from   domain.TicketStatus
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Assignments.LockTechnicians(ctx, team...); err != nil {
			return apperrors.MapError(err)
		}
		var err error
		ticket, err = s.lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		from = ticket.Status
		if from.IsTerminal() {
			return apperrors.NewInvalidTransition(string(OpReassign), string(from), nil)
		}
		if err := s.ensureFree(ctx, repos, ticket.ID, team...); err != nil {
			return err
		}
		if _, err := repos.Assignments.DeactivateAllForTicket(ctx, ticket.ID); err != nil {
			return apperrors.MapError(err)
		}
		if err := s.bindTeam(ctx, repos, ticket.ID, team, domain.AssignmentTypeManual, s.now()); err != nil {
			return err
		}
		ticket.Status = domain.TicketStatusAssigned
		ticket.StartedAt = nil
		ticket.RejectionReason = ""
		return s.commit(ctx, repos, actor, ticket, string(OpReassign), from, "team "+strings.Join(team, ","))
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.Strings("team", team)}
	if from == domain.TicketStatusInProgress {
		fields = append(fields, zap.Bool("progress_reset", true))
	}
	s.logTransition(string(OpReassign), ticket, from, fields...)
	s.publish(ctx, actor, ticket.ID, events.EventTicketAssigned, events.TicketAssignedPayload{
		TechnicianIDs:  team,
		AssignmentType: domain.AssignmentTypeManual,
	})
	s.publishStatus(ctx, actor, ticket, string(OpReassign), from, "")
	return ticket, nil
}

// Unassign removes the whole team and puts the ticket back in the open pool.
func (s *AssignmentService) Unassign(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpUnassign); err != nil {
		return nil, err
	}
	var (
		ticket *domain.Ticket
		from   domain.TicketStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		ticket, err = s.lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		from = ticket.Status
		if from.IsTerminal() {
			return apperrors.NewInvalidTransition(string(OpUnassign), string(from), nil)
		}
		if _, err := repos.Assignments.DeactivateAllForTicket(ctx, ticket.ID); err != nil {
			return apperrors.MapError(err)
		}
		ticket.Status = domain.TicketStatusOpen
		ticket.StartedAt = nil
		ticket.RejectionReason = ""
		return s.commit(ctx, repos, actor, ticket, string(OpUnassign), from, "")
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpUnassign), ticket, from)
	s.publishStatus(ctx, actor, ticket, string(OpUnassign), from, "")
	return ticket, nil
}
