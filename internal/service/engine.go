// Package service implements the dispatch and lifecycle engine on top of the repositories.
// Every transition runs in one transaction, writes its audit row there, and publishes
// events only after commit.
package service

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	"github.com/fieldops/dispatch-service/internal/geo"
	"github.com/fieldops/dispatch-service/internal/observability"
	"github.com/fieldops/dispatch-service/internal/repository"
	"github.com/fieldops/dispatch-service/internal/settings"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// Dependencies bundles collaborators shared by the engine services.
type Dependencies struct {
	Tx         repository.Transactor
	Users      repository.UserRepository
	Fees       repository.TechnicianFeeRepository
	Settings   settings.Provider
	Locations  geo.Resolver
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
	// Location sets the day boundary for "today" counters. Defaults to UTC.
	Location *time.Location
	// RadiusKm is the proximity threshold. Defaults to dispatch.DefaultRadiusKm.
	RadiusKm float64
	// Intn picks the random tie-break. Defaults to math/rand.
	Intn func(n int) int
}

type engine struct {
	tx         repository.Transactor
	users      repository.UserRepository
	fees       repository.TechnicianFeeRepository
	settings   settings.Provider
	locations  geo.Resolver
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      func() time.Time
	loc        *time.Location
	radiusKm   float64
	intn       func(n int) int
}

func newEngine(deps Dependencies) engine {
	e := engine{
		tx:         deps.Tx,
		users:      deps.Users,
		fees:       deps.Fees,
		settings:   deps.Settings,
		locations:  deps.Locations,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		clock:      deps.Clock,
		loc:        deps.Location,
		radiusKm:   deps.RadiusKm,
		intn:       deps.Intn,
	}
	if e.locations == nil {
		e.locations = geo.TextResolver{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.intn == nil {
		e.intn = rand.Intn
	}
	return e
}

func (e *engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// startOfDay returns midnight of t's calendar day in the business timezone.
func (e *engine) startOfDay(t time.Time) time.Time {
	local := t.In(e.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}

// lockTicket loads the ticket and holds it until the transaction ends.
func (e *engine) lockTicket(ctx context.Context, repos repository.Repositories, ticketID string) (*domain.Ticket, error) {
	ticket, err := repos.Tickets.GetForUpdate(ctx, ticketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// technician looks up an active technician in the directory.
func (e *engine) technician(ctx context.Context, id string) (*domain.User, error) {
	user, err := e.users.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if !user.IsActiveTechnician() {
		return nil, apperrors.NewBusinessRule("user is not an active technician", map[string]any{"technician_id": id})
	}
	return user, nil
}

// technicians validates a 1..2 element team and resolves every member.
func (e *engine) technicians(ctx context.Context, ids []string) ([]string, error) {
	team, err := normalizeTeam(ids)
	if err != nil {
		return nil, err
	}
	for _, id := range team {
		if _, err := e.technician(ctx, id); err != nil {
			return nil, err
		}
	}
	return team, nil
}

func normalizeTeam(ids []string) ([]string, error) {
	team := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, apperrors.NewValidationError("technician id must not be empty", nil)
		}
		if _, dup := seen[id]; dup {
			return nil, apperrors.NewValidationError("technician ids must be distinct", map[string]any{"technician_id": id})
		}
		seen[id] = struct{}{}
		team = append(team, id)
	}
	if len(team) < 1 || len(team) > domain.MaxActiveAssignees {
		return nil, apperrors.NewValidationError("between 1 and 2 technicians are required", map[string]any{"count": len(team)})
	}
	return team, nil
}

// ensureFree enforces the one-active-job rule for technicians about to be bound to ticketID.
func (e *engine) ensureFree(ctx context.Context, repos repository.Repositories, ticketID string, technicianIDs ...string) error {
	for _, id := range technicianIDs {
		active, err := repos.Assignments.ActiveTicketIDs(ctx, id)
		if err != nil {
			return apperrors.MapError(err)
		}
		for _, other := range active {
			if other != ticketID {
				return apperrors.NewAlreadyActive(id)
			}
		}
	}
	return nil
}

// lockTeam serializes on the ticket's current team, then the ticket itself, keeping the
// technician-before-ticket lock order used by dispatch.
func (e *engine) lockTeam(ctx context.Context, repos repository.Repositories, ticketID string) (*domain.Ticket, []domain.Assignment, error) {
	before, err := repos.Assignments.ListActiveByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if err := repos.Assignments.LockTechnicians(ctx, assigneeIDs(before)...); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	ticket, err := e.lockTicket(ctx, repos, ticketID)
	if err != nil {
		return nil, nil, err
	}
	team, err := repos.Assignments.ListActiveByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if !sameMembers(assigneeIDs(before), assigneeIDs(team)) {
		return nil, nil, apperrors.NewConflict("ticket team changed concurrently, retry", map[string]any{"ticket_id": ticketID})
	}
	return ticket, team, nil
}

func (e *engine) bindTeam(ctx context.Context, repos repository.Repositories, ticketID string, technicianIDs []string, kind domain.AssignmentType, at time.Time) error {
	for _, id := range technicianIDs {
		err := repos.Assignments.Insert(ctx, &domain.Assignment{
			TicketID:       ticketID,
			TechnicianID:   id,
			Active:         true,
			AssignmentType: kind,
			AssignedAt:     at,
		})
		if err != nil {
			return apperrors.MapError(err)
		}
	}
	return nil
}

// requireAssignee checks that a technician actor works on the ticket. Staff pass through.
func (e *engine) requireAssignee(ctx context.Context, repos repository.Repositories, actor domain.Actor, ticketID string) error {
	if actor.Role != domain.RoleTechnician {
		return nil
	}
	team, err := repos.Assignments.ListActiveByTicket(ctx, ticketID)
	if err != nil {
		return apperrors.MapError(err)
	}
	for _, a := range team {
		if a.TechnicianID == actor.UserID {
			return nil
		}
	}
	return apperrors.NewForbidden("technician is not assigned to this ticket")
}

func (e *engine) record(ctx context.Context, repos repository.Repositories, actor domain.Actor, ticket *domain.Ticket, operation string, from domain.TicketStatus, comment string) error {
	entry := &domain.TicketHistory{
		TicketID:  ticket.ID,
		Operation: operation,
		OldStatus: from,
		NewStatus: ticket.Status,
		Comment:   comment,
		CreatedAt: e.now(),
	}
	if actor.UserID != "" {
		id := actor.UserID
		entry.ChangedByID = &id
	}
	return apperrors.MapError(repos.History.Create(ctx, entry))
}

// commit saves the ticket and its audit row.
func (e *engine) commit(ctx context.Context, repos repository.Repositories, actor domain.Actor, ticket *domain.Ticket, operation string, from domain.TicketStatus, comment string) error {
	if err := repos.Tickets.Update(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}
	return e.record(ctx, repos, actor, ticket, operation, from, comment)
}

func (e *engine) logTransition(operation string, ticket *domain.Ticket, from domain.TicketStatus, fields ...zap.Field) {
	e.metrics.RecordTransition(operation)
	base := []zap.Field{
		zap.String("ticket_id", ticket.ID),
		zap.String("operation", operation),
		zap.String("from_status", string(from)),
		zap.String("to_status", string(ticket.Status)),
	}
	e.logger.Info("ticket transition", append(base, fields...)...)
}

func (e *engine) publish(ctx context.Context, actor domain.Actor, ticketID string, eventType events.EventType, payload interface{}) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.Actor{UserID: actor.UserID, Role: actor.Role},
		Timestamp: e.now(),
		Payload:   payload,
	})
}

func (e *engine) publishStatus(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, operation string, from domain.TicketStatus, comment string) {
	e.publish(ctx, actor, ticket.ID, events.EventTicketStatusChanged, events.TicketStatusChangedPayload{
		Operation: operation,
		OldStatus: from,
		NewStatus: ticket.Status,
		Comment:   comment,
	})
}

// appendNote adds a timestamped line to a free-text history field.
func appendNote(existing string, at time.Time, note string) string {
	line := "[" + at.Format(time.RFC3339) + "] " + note
	if strings.TrimSpace(existing) == "" {
		return line
	}
	return existing + "\n" + line
}

func requireText(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.NewValidationError(field+" is required", map[string]any{"field": field})
	}
	return value, nil
}

func assigneeIDs(team []domain.Assignment) []string {
	ids := make([]string, 0, len(team))
	for _, a := range team {
		ids = append(ids, a.TechnicianID)
	}
	return ids
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = append([]string(nil), a...)
	b = append([]string(nil), b...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
