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

// ReopenMode chooses what happens to the team when a rejected ticket is reopened.
type ReopenMode string

const (
	// ReopenModeCurrent keeps the existing team and returns the ticket to assigned.
	ReopenModeCurrent ReopenMode = "current"
	// ReopenModeAuto drops the team and returns the ticket to the dispatch pool.
	ReopenModeAuto ReopenMode = "auto"
)

// CloseInput is the technician's close report.
type CloseInput struct {
	ActionDescription string
	SpeedtestRef      string
	ProofRefs         []string
	Note              string
}

// LifecycleService applies status transitions after assignment.
type LifecycleService struct {
	engine
}

// NewLifecycleService creates the service.
func NewLifecycleService(deps Dependencies) *LifecycleService {
	return &LifecycleService{engine: newEngine(deps)}
}

// transition is one locked read-modify-write of a ticket.
type transition struct {
	op       Operation
	requires []domain.TicketStatus
	// assignee requires technician actors to be on the active team.
	assignee bool
	// team locks the current team before the ticket, for transitions that re-activate it.
	team  bool
	apply func(ctx context.Context, repos repository.Repositories, ticket *domain.Ticket, team []domain.Assignment) (string, error)
}

func (s *LifecycleService) run(ctx context.Context, actor domain.Actor, ticketID string, tr transition) (*domain.Ticket, domain.TicketStatus, error) {
	var (
		ticket *domain.Ticket
		from   domain.TicketStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var (
			team []domain.Assignment
			err  error
		)
		if tr.team {
			ticket, team, err = s.lockTeam(ctx, repos, ticketID)
		} else {
			ticket, err = s.lockTicket(ctx, repos, ticketID)
		}
		if err != nil {
			return err
		}
		if tr.assignee {
			if err := s.requireAssignee(ctx, repos, actor, ticket.ID); err != nil {
				return err
			}
		}
		from = ticket.Status
		if !statusIn(from, tr.requires) {
			return apperrors.NewInvalidTransition(string(tr.op), string(from), nil)
		}
		if team == nil {
			if team, err = repos.Assignments.ListActiveByTicket(ctx, ticket.ID); err != nil {
				return apperrors.MapError(err)
			}
		}
		comment, err := tr.apply(ctx, repos, ticket, team)
		if err != nil {
			return err
		}
		return s.commit(ctx, repos, actor, ticket, string(tr.op), from, comment)
	})
	if err != nil {
		return nil, "", err
	}
	return ticket, from, nil
}

// StartWork moves an assigned ticket to in_progress.
func (s *LifecycleService) StartWork(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpStartWork); err != nil {
		return nil, err
	}
	ticket, from, err := s.run(ctx, actor, ticketID, transition{
		op:       OpStartWork,
		requires: []domain.TicketStatus{domain.TicketStatusAssigned},
		assignee: true,
		apply: func(_ context.Context, _ repository.Repositories, t *domain.Ticket, _ []domain.Assignment) (string, error) {
			now := s.now()
			t.Status = domain.TicketStatusInProgress
			t.StartedAt = &now
			return "", nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpStartWork), ticket, from)
	s.publishStatus(ctx, actor, ticket, string(OpStartWork), from, "")
	return ticket, nil
}

// ReportNoResponse flags that the customer could not be reached; staff confirm or cancel.
func (s *LifecycleService) ReportNoResponse(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpReportNoResponse); err != nil {
		return nil, err
	}
	reason, err := requireText("reason", reason)
	if err != nil {
		return nil, err
	}
	ticket, from, err := s.run(ctx, actor, ticketID, transition{
		op:       OpReportNoResponse,
		requires: []domain.TicketStatus{domain.TicketStatusAssigned, domain.TicketStatusInProgress},
		assignee: true,
		apply: func(_ context.Context, _ repository.Repositories, t *domain.Ticket, _ []domain.Assignment) (string, error) {
			t.Status = domain.TicketStatusPendingRejection
			t.RejectionReason = reason
			return reason, nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpReportNoResponse), ticket, from)
	s.publishStatus(ctx, actor, ticket, string(OpReportNoResponse), from, reason)
	return ticket, nil
}

// ConfirmReject ends a pending rejection as rejected with no fees.
func (s *LifecycleService) ConfirmReject(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpConfirmReject); err != nil {
		return nil, err
	}
	reason, err := requireText("reason", reason)
	if err != nil {
		return nil, err
	}
	ticket, from, err := s.run(ctx, actor, ticketID, transition{
		op:       OpConfirmReject,
		requires: []domain.TicketStatus{domain.TicketStatusPendingRejection},
		apply: func(ctx context.Context, repos repository.Repositories, t *domain.Ticket, team []domain.Assignment) (string, error) {
			now := s.now()
			logs := rejectOutcome(t, team, now)
			t.RejectionReason = appendNote(t.RejectionReason, now, "rejected: "+reason)
			return reason, writeLogs(ctx, repos, logs)
		},
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpConfirmReject), ticket, from)
	s.publishClosed(ctx, actor, ticket, OpConfirmReject)
	s.publishStatus(ctx, actor, ticket, string(OpConfirmReject), from, reason)
	return ticket, nil
}

// CancelReject returns a pending rejection to its team.
func (s *LifecycleService) CancelReject(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpCancelReject); err != nil {
		return nil, err
	}
	ticket, from, err := s.run(ctx, actor, ticketID, transition{
		op:       OpCancelReject,
		requires: []domain.TicketStatus{domain.TicketStatusPendingRejection},
		team:     true,
		apply: func(ctx context.Context, repos repository.Repositories, t *domain.Ticket, team []domain.Assignment) (string, error) {
			if err := s.ensureFree(ctx, repos, t.ID, assigneeIDs(team)...); err != nil {
				return "", err
			}
			t.Status = domain.TicketStatusAssigned
			t.RejectionReason = ""
			return "", nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpCancelReject), ticket, from)
	s.publishStatus(ctx, actor, ticket, string(OpCancelReject), from, "")
	return ticket, nil
}

// CloseByHelpdesk closes a pending rejection as if the team had closed it, with normal
// SLA-based fees.
func (s *LifecycleService) CloseByHelpdesk(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpCloseByHelpdesk); err != nil {
		return nil, err
	}
	reason, err := requireText("reason", reason)
	if err != nil {
		return nil, err
	}
	ticket, from, err := s.run(ctx, actor, ticketID, transition{
		op:       OpCloseByHelpdesk,
		requires: []domain.TicketStatus{domain.TicketStatusPendingRejection},
		apply: func(ctx context.Context, repos repository.Repositories, t *domain.Ticket, team []domain.Assignment) (string, error) {
			now := s.now()
			logs, err := s.settle(ctx, t, team, now)
			if err != nil {
				return "", err
			}
			t.RejectionReason = appendNote(t.RejectionReason, now, "closed by helpdesk: "+reason)
			return reason, writeLogs(ctx, repos, logs)
		},
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpCloseByHelpdesk), ticket, from, zap.Stringer("bonus", ticket.Bonus))
	s.publishClosed(ctx, actor, ticket, OpCloseByHelpdesk)
	s.publishStatus(ctx, actor, ticket, string(OpCloseByHelpdesk), from, reason)
	return ticket, nil
}

// Close records the technician's close report and settles fees for every assignee.
func (s *LifecycleService) Close(ctx context.Context, actor domain.Actor, ticketID string, input CloseInput) (*domain.Ticket, error) {
	if err := Authorize(actor, OpClose); err != nil {
		return nil, err
	}
	action, err := requireText("action description", input.ActionDescription)
	if err != nil {
		return nil, err
	}
	proofs := make([]string, 0, len(input.ProofRefs))
	for _, ref := range input.ProofRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			proofs = append(proofs, ref)
		}
	}
	ticket, from, err := s.run(ctx, actor, ticketID, transition{
		op:       OpClose,
		requires: []domain.TicketStatus{domain.TicketStatusInProgress},
		assignee: true,
		apply: func(ctx context.Context, repos repository.Repositories, t *domain.Ticket, team []domain.Assignment) (string, error) {
			logs, err := s.settle(ctx, t, team, s.now())
			if err != nil {
				return "", err
			}
			t.Close = domain.CloseReport{
				ActionDescription: action,
				SpeedtestRef:      strings.TrimSpace(input.SpeedtestRef),
				ProofRefs:         proofs,
				Note:              strings.TrimSpace(input.Note),
			}
			return "", writeLogs(ctx, repos, logs)
		},
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpClose), ticket, from,
		zap.String("perform_status", string(*ticket.PerformStatus)),
		zap.Stringer("bonus", ticket.Bonus))
	s.publishClosed(ctx, actor, ticket, OpClose)
	s.publishStatus(ctx, actor, ticket, string(OpClose), from, "")
	return ticket, nil
}

// Reopen returns a closed ticket to a new team, removing all bonus credit. The SLA
// deadline is kept, so a late ticket stays overdue.
func (s *LifecycleService) Reopen(ctx context.Context, actor domain.Actor, ticketID, reason string, technicianIDs []string) (*domain.Ticket, error) {
	if err := Authorize(actor, OpReopen); err != nil {
		return nil, err
	}
	reason, err := requireText("reason", reason)
	if err != nil {
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
		if from != domain.TicketStatusClosed {
			return apperrors.NewInvalidTransition(string(OpReopen), string(from), nil)
		}
		if err := s.ensureFree(ctx, repos, ticket.ID, team...); err != nil {
			return err
		}
		if _, err := repos.Performance.DeleteByTicket(ctx, ticket.ID); err != nil {
			return apperrors.MapError(err)
		}
		if _, err := repos.Assignments.DeactivateAllForTicket(ctx, ticket.ID); err != nil {
			return apperrors.MapError(err)
		}
		now := s.now()
		if err := s.bindTeam(ctx, repos, ticket.ID, team, domain.AssignmentTypeManual, now); err != nil {
			return err
		}
		clearOutcome(ticket)
		ticket.StartedAt = nil
		ticket.Status = domain.TicketStatusAssigned
		ticket.ReopenReason = appendNote(ticket.ReopenReason, now, reason)
		return s.commit(ctx, repos, actor, ticket, string(OpReopen), from, reason)
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpReopen), ticket, from, zap.Strings("team", team))
	s.publish(ctx, actor, ticket.ID, events.EventTicketReopened, events.TicketReopenedPayload{
		Mode:          "closed",
		Reason:        reason,
		NewStatus:     ticket.Status,
		TechnicianIDs: team,
	})
	s.publishStatus(ctx, actor, ticket, string(OpReopen), from, reason)
	return ticket, nil
}

// ReopenRejected revives a rejected ticket either with its current team or back into the
// dispatch pool.
func (s *LifecycleService) ReopenRejected(ctx context.Context, actor domain.Actor, ticketID, reason string, mode ReopenMode) (*domain.Ticket, error) {
	if err := Authorize(actor, OpReopenRejected); err != nil {
		return nil, err
	}
	reason, err := requireText("reason", reason)
	if err != nil {
		return nil, err
	}
	if mode != ReopenModeCurrent && mode != ReopenModeAuto {
		return nil, apperrors.NewValidationError("mode must be current or auto", map[string]any{"mode": mode})
	}
	var kept []string
	ticket, from, err := s.run(ctx, actor, ticketID, transition{
		op:       OpReopenRejected,
		requires: []domain.TicketStatus{domain.TicketStatusRejected},
		team:     mode == ReopenModeCurrent,
		apply: func(ctx context.Context, repos repository.Repositories, t *domain.Ticket, team []domain.Assignment) (string, error) {
			switch mode {
			case ReopenModeCurrent:
				if len(team) == 0 {
					return "", apperrors.NewBusinessRule("ticket has no team to keep", map[string]any{"ticket_id": t.ID})
				}
				kept = assigneeIDs(team)
				if err := s.ensureFree(ctx, repos, t.ID, kept...); err != nil {
					return "", err
				}
				t.Status = domain.TicketStatusAssigned
			case ReopenModeAuto:
				if _, err := repos.Assignments.DeactivateAllForTicket(ctx, t.ID); err != nil {
					return "", apperrors.MapError(err)
				}
				t.Status = domain.TicketStatusOpen
			}
			if _, err := repos.Performance.DeleteByTicket(ctx, t.ID); err != nil {
				return "", apperrors.MapError(err)
			}
			clearOutcome(t)
			t.StartedAt = nil
			t.RejectionReason = ""
			t.ReopenReason = appendNote(t.ReopenReason, s.now(), "["+string(mode)+"] "+reason)
			return string(mode) + ": " + reason, nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(string(OpReopenRejected), ticket, from, zap.String("mode", string(mode)))
	s.publish(ctx, actor, ticket.ID, events.EventTicketReopened, events.TicketReopenedPayload{
		Mode:          string(mode),
		Reason:        reason,
		NewStatus:     ticket.Status,
		TechnicianIDs: kept,
	})
	s.publishStatus(ctx, actor, ticket, string(OpReopenRejected), from, reason)
	return ticket, nil
}

func (s *LifecycleService) publishClosed(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, op Operation) {
	payload := events.TicketClosedPayload{Operation: string(op), Bonus: ticket.Bonus}
	if ticket.PerformStatus != nil {
		payload.PerformStatus = *ticket.PerformStatus
		payload.WithinSLA = *ticket.PerformStatus == domain.PerformStatusPerform
	}
	if ticket.DurationMinutes != nil {
		payload.DurationMinutes = *ticket.DurationMinutes
	}
	s.publish(ctx, actor, ticket.ID, events.EventTicketClosed, payload)
}

func statusIn(status domain.TicketStatus, allowed []domain.TicketStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
