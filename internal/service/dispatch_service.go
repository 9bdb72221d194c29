package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/dispatch"
	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	"github.com/fieldops/dispatch-service/internal/repository"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// maxClaimAttempts bounds how often one call re-selects after losing a ticket to a
// concurrent dispatch.
const maxClaimAttempts = 8

// DispatchService hands the best open ticket to a technician pair.
type DispatchService struct {
	engine
}

// AutoAssignInput names the requesting technician and their partner. An empty
// TechnicianID means the actor.
type AutoAssignInput struct {
	TechnicianID string
	PartnerID    string
}

// DispatchResult is the ticket bound by auto-assignment and why it was chosen.
type DispatchResult struct {
	Ticket        *domain.Ticket
	Reason        dispatch.Reason
	DistanceKm    float64
	PreferredType domain.TicketType
	Team          []string
}

// NewDispatchService constructs the service.
func NewDispatchService(deps Dependencies) *DispatchService {
	return &DispatchService{engine: newEngine(deps)}
}

// AutoAssign selects a ticket for the technician and binds it to the technician and
// partner in one transaction. A ticket claimed concurrently by another pair is dropped
// and selection re-runs against the refreshed pool.
func (s *DispatchService) AutoAssign(ctx context.Context, actor domain.Actor, input AutoAssignInput) (*DispatchResult, error) {
	if err := Authorize(actor, OpAutoAssign); err != nil {
		return nil, err
	}
	techID := strings.TrimSpace(input.TechnicianID)
	if techID == "" {
		techID = actor.UserID
	}
	if techID != actor.UserID {
		return nil, apperrors.NewForbidden("technicians may only request tickets for themselves")
	}
	partnerID, err := requireText("partner id", input.PartnerID)
	if err != nil {
		return nil, err
	}
	if partnerID == techID {
		return nil, apperrors.NewValidationError("partner must be a different technician", map[string]any{"partner_id": partnerID})
	}

	tech, err := s.technician(ctx, techID)
	if err != nil {
		return nil, err
	}
	if _, err := s.technician(ctx, partnerID); err != nil {
		if apperrors.HasCode(err, apperrors.CodeBusinessRule) {
			return nil, apperrors.NewBusinessRule("partner is not an active technician", map[string]any{"partner_id": partnerID})
		}
		return nil, err
	}
	ratio, err := s.settings.DispatchRatio(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var (
		result *DispatchResult
		from   domain.TicketStatus
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Assignments.LockTechnicians(ctx, techID, partnerID); err != nil {
			return apperrors.MapError(err)
		}
		if busy, err := repos.Assignments.ActiveTicketIDs(ctx, techID); err != nil {
			return apperrors.MapError(err)
		} else if len(busy) > 0 {
			return apperrors.NewAlreadyActive(techID)
		}
		if busy, err := repos.Assignments.ActiveTicketIDs(ctx, partnerID); err != nil {
			return apperrors.MapError(err)
		} else if len(busy) > 0 {
			return apperrors.NewPartnerBusy(partnerID)
		}

		now := s.now()
		completed, err := repos.Tickets.ListClosedByTechnician(ctx, techID, s.startOfDay(now))
		if err != nil {
			return apperrors.MapError(err)
		}
		sc := dispatch.Context{
			Now:        now,
			HasHistory: len(completed) > 0,
			RadiusKm:   s.radiusKm,
			Intn:       s.intn,
		}
		if sc.HasHistory {
			if p, ok := s.locations.Resolve(ctx, completed[0].LocationRef); ok {
				sc.Anchor = &p
			}
		}

		lost := map[string]struct{}{}
		for attempt := 0; attempt < maxClaimAttempts; attempt++ {
			open, err := repos.Tickets.ListDispatchable(ctx, dispatch.EligibleTypes(tech))
			if err != nil {
				return apperrors.MapError(err)
			}
			open = without(open, lost)
			pool, preferred := dispatch.BuildPool(open, tech, ratio, len(completed), now)
			selection, ok := dispatch.Select(s.candidates(ctx, pool), sc)
			if !ok {
				return apperrors.NewNoTicketsAvailable(map[string]any{
					"technician_id":  techID,
					"preferred_type": preferred,
				})
			}

			ticket, err := repos.Tickets.ClaimDispatchable(ctx, selection.Ticket.ID)
			if repository.IsNotFound(err) {
				lost[selection.Ticket.ID] = struct{}{}
				s.logger.Debug("dispatch candidate taken concurrently, reselecting",
					zap.String("ticket_id", selection.Ticket.ID))
				continue
			}
			if err != nil {
				return apperrors.MapError(err)
			}

			if _, err := repos.Assignments.DeactivateAllForTicket(ctx, ticket.ID); err != nil {
				return apperrors.MapError(err)
			}
			team := []string{techID, partnerID}
			if err := s.bindTeam(ctx, repos, ticket.ID, team, domain.AssignmentTypeAuto, now); err != nil {
				return err
			}
			from = ticket.Status
			ticket.Status = domain.TicketStatusAssigned
			if err := s.commit(ctx, repos, actor, ticket, string(OpAutoAssign), from, "selected by "+string(selection.Reason)); err != nil {
				return err
			}
			result = &DispatchResult{
				Ticket:        ticket,
				Reason:        selection.Reason,
				DistanceKm:    selection.DistanceKm,
				PreferredType: preferred,
				Team:          team,
			}
			return nil
		}
		return apperrors.NewConflict("dispatch contention, retry", map[string]any{"technician_id": techID})
	})
	if err != nil {
		if de := apperrors.ToDomainError(err); de.HTTPStatus < 500 {
			s.metrics.RecordDispatch(de.Code)
		}
		return nil, err
	}

	s.metrics.RecordDispatch(string(result.Reason))
	s.logTransition(string(OpAutoAssign), result.Ticket, from,
		zap.String("reason", string(result.Reason)),
		zap.Float64("distance_km", result.DistanceKm),
		zap.String("preferred_type", string(result.PreferredType)),
		zap.Strings("team", result.Team))
	s.publish(ctx, actor, result.Ticket.ID, events.EventTicketAssigned, events.TicketAssignedPayload{
		TechnicianIDs:   result.Team,
		AssignmentType:  domain.AssignmentTypeAuto,
		SelectionReason: string(result.Reason),
	})
	s.publishStatus(ctx, actor, result.Ticket, string(OpAutoAssign), from, "")
	return result, nil
}

func (s *DispatchService) candidates(ctx context.Context, pool []domain.Ticket) []dispatch.Candidate {
	out := make([]dispatch.Candidate, 0, len(pool))
	for _, t := range pool {
		c := dispatch.Candidate{Ticket: t}
		if p, ok := s.locations.Resolve(ctx, t.LocationRef); ok {
			c.Location = &p
		}
		out = append(out, c)
	}
	return out
}

func without(tickets []domain.Ticket, drop map[string]struct{}) []domain.Ticket {
	if len(drop) == 0 {
		return tickets
	}
	out := tickets[:0:0]
	for _, t := range tickets {
		if _, skip := drop[t.ID]; !skip {
			out = append(out, t)
		}
	}
	return out
}
