package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityHigh, "-6.2, 106.8")
	second := f.create(t, domain.TicketTypeInstallation, "", "")

	assert.Equal(t, "T-20240501-0001", first.Code)
	assert.Equal(t, "T-20240501-0002", second.Code)
	assert.Less(t, first.Number, second.Number)

	assert.Equal(t, domain.TicketStatusOpen, first.Status)
	assert.Equal(t, t0.Add(24*time.Hour), first.SLADeadline)
	assert.Equal(t, units(50000), first.TicketFee)
	assert.Equal(t, units(15000), first.TransportFee)
	assert.Equal(t, units(65000), first.Bonus)
	assert.Nil(t, first.PerformStatus)

	assert.Equal(t, domain.TicketPriorityMedium, second.Priority)
	assert.Equal(t, t0.Add(72*time.Hour), second.SLADeadline)
	assert.Empty(t, f.team(t, first.ID))

	details, err := f.tickets.GetTicket(f.ctx, techA, first.ID)
	require.NoError(t, err)
	require.Len(t, details.History, 1)
	assert.Equal(t, "create", details.History[0].Operation)
	assert.Equal(t, domain.TicketStatusOpen, details.History[0].NewStatus)

	created := f.eventsOf(events.EventTicketCreated)
	require.Len(t, created, 2)
	assert.Equal(t, first.ID, created[0].TicketID)
}

func TestCreateTicket_DailyCodeRollsOver(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityLow, "")
	f.clock.Advance(24 * time.Hour)
	next := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityLow, "")
	assert.Equal(t, "T-20240502-0001", next.Code)
}

func TestCreateTicket_Rejects(t *testing.T) {
	f := newFixture(t)

	_, err := f.tickets.CreateTicket(f.ctx, techA, TicketCreateInput{Type: domain.TicketTypeInstallation, Customer: domain.Customer{Name: "x"}})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.tickets.CreateTicket(f.ctx, helpdesk, TicketCreateInput{Type: "fiber_cut", Customer: domain.Customer{Name: "x"}})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.CreateTicket(f.ctx, helpdesk, TicketCreateInput{Type: domain.TicketTypeInstallation, Priority: "urgent", Customer: domain.Customer{Name: "x"}})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.CreateTicket(f.ctx, helpdesk, TicketCreateInput{Type: domain.TicketTypeInstallation, Customer: domain.Customer{Name: "  "}})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.CreateTicket(f.ctx, domain.Actor{Role: domain.RoleAdmin}, TicketCreateInput{Type: domain.TicketTypeInstallation})
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestChangeType(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	f.clock.Advance(5 * time.Hour)

	changed, err := f.tickets.ChangeType(f.ctx, helpdesk, ticket.ID, domain.TicketTypeInstallation)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketTypeInstallation, changed.Type)
	assert.Equal(t, t0.Add(72*time.Hour), changed.SLADeadline, "anchored to creation, not now")
	assert.Equal(t, units(100000), changed.TicketFee)
	assert.Equal(t, units(125000), changed.Bonus)

	same, err := f.tickets.ChangeType(f.ctx, helpdesk, ticket.ID, domain.TicketTypeInstallation)
	require.NoError(t, err)
	assert.Equal(t, changed.SLADeadline, same.SLADeadline)

	f.closeWith(t, ticket.ID, "tech-a")
	_, err = f.tickets.ChangeType(f.ctx, helpdesk, ticket.ID, domain.TicketTypeHomeMaintenance)
	requireCode(t, err, apperrors.CodeInvalidTransition)
	assert.Equal(t, t0.Add(72*time.Hour), f.ticket(t, ticket.ID).SLADeadline)

	_, err = f.tickets.ChangeType(f.ctx, helpdesk, "missing", domain.TicketTypeHomeMaintenance)
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestListPerformance(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	f.clock.Advance(time.Hour)
	f.closeWith(t, ticket.ID, "tech-a", "tech-b")

	logs, err := f.tickets.ListPerformance(f.ctx, techA, "tech-a", t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, units(65000), logs[0].Bonus)

	_, err = f.tickets.ListPerformance(f.ctx, techA, "tech-b", t0, t0.Add(48*time.Hour))
	requireCode(t, err, apperrors.CodeForbidden)

	logs, err = f.tickets.ListPerformance(f.ctx, helpdesk, "tech-b", t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = f.tickets.ListPerformance(f.ctx, helpdesk, "tech-b", t0, t0)
	requireCode(t, err, apperrors.CodeValidation)
}

func TestNormalizeLegacyStatuses(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	legacy := f.ticket(t, ticket.ID)
	legacy.Status = domain.TicketStatusOverdue
	require.NoError(t, f.store.Repositories().Tickets.Update(f.ctx, legacy))

	_, err := f.tickets.NormalizeLegacyStatuses(f.ctx, helpdesk)
	requireCode(t, err, apperrors.CodeForbidden)

	changed, err := f.tickets.NormalizeLegacyStatuses(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)
	assert.Equal(t, domain.TicketStatusOpen, f.ticket(t, ticket.ID).Status)
}
