package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch-service/internal/dispatch"
	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

func TestAutoAssign_FirstJobTakesOldest(t *testing.T) {
	f := newFixture(t)
	oldest := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityLow, "")
	f.clock.Advance(time.Minute)
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityCritical, "")

	res, err := f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-b"})
	require.NoError(t, err)
	assert.Equal(t, oldest.ID, res.Ticket.ID)
	assert.Equal(t, dispatch.ReasonFirstJob, res.Reason)
	assert.Equal(t, domain.TicketStatusAssigned, res.Ticket.Status)
	assert.ElementsMatch(t, []string{"tech-a", "tech-b"}, f.team(t, oldest.ID))

	team, err := f.store.Repositories().Assignments.ListActiveByTicket(f.ctx, oldest.ID)
	require.NoError(t, err)
	for _, a := range team {
		assert.Equal(t, domain.AssignmentTypeAuto, a.AssignmentType)
	}
	assigned := f.eventsOf(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, "first_job", assigned[0].Payload.(events.TicketAssignedPayload).SelectionReason)
	assert.Empty(t, f.logs(t, oldest.ID), "dispatch never writes performance logs")
}

func TestAutoAssign_OverdueBeatsPriority(t *testing.T) {
	f := newFixture(t)
	overdue := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityLow, "")
	f.clock.Advance(23 * time.Hour)
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityCritical, "")
	f.clock.Advance(2 * time.Hour)

	res, err := f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-b"})
	require.NoError(t, err)
	assert.Equal(t, overdue.ID, res.Ticket.ID)
	assert.Equal(t, dispatch.ReasonOverdue, res.Reason)
}

func TestAutoAssign_OverdueOfOtherTypeBeatsRatio(t *testing.T) {
	f := newFixture(t)
	late := f.create(t, domain.TicketTypeInstallation, domain.TicketPriorityCritical, "")
	f.clock.Advance(73 * time.Hour)
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityLow, "")

	res, err := f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-b"})
	require.NoError(t, err)
	assert.Equal(t, late.ID, res.Ticket.ID)
	assert.Equal(t, dispatch.ReasonOverdue, res.Reason)
	assert.Equal(t, domain.TicketTypeHomeMaintenance, res.PreferredType)
}

func TestAutoAssign_ProximityAfterFirstJob(t *testing.T) {
	f := newFixture(t)
	done := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "https://maps.google.com/?q=-6.200000,106.816666")
	f.clock.Advance(time.Minute)
	far := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityCritical, "-6.914744, 107.609810")
	f.clock.Advance(time.Minute)
	near := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityLow, "-6.205, 106.82")
	f.clock.Advance(time.Minute)
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityHigh, "somewhere without coordinates")

	f.closeWith(t, done.ID, "tech-a", "tech-b")
	f.clock.Advance(30 * time.Minute)

	res, err := f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-b"})
	require.NoError(t, err)
	assert.Equal(t, near.ID, res.Ticket.ID)
	assert.Equal(t, dispatch.ReasonProximity, res.Reason)
	assert.InDelta(t, 0.7, res.DistanceKm, 0.3)
	assert.NotEqual(t, far.ID, res.Ticket.ID)
}

func TestAutoAssign_PriorityWhenNothingNear(t *testing.T) {
	f := newFixture(t)
	done := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "-6.2, 106.8")
	f.clock.Advance(time.Minute)
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityLow, "-7.2, 112.7")
	f.clock.Advance(time.Minute)
	high := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityHigh, "")

	f.closeWith(t, done.ID, "tech-a")

	res, err := f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-b"})
	require.NoError(t, err)
	assert.Equal(t, high.ID, res.Ticket.ID)
	assert.Equal(t, dispatch.ReasonPriority, res.Reason)
}

func TestAutoAssign_BackboneSpecialistOnlyGetsBackbone(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityCritical, "")
	f.create(t, domain.TicketTypeInstallation, domain.TicketPriorityCritical, "")

	_, err := f.dispatch.AutoAssign(f.ctx, backboneBy, AutoAssignInput{PartnerID: "backbone-2"})
	requireCode(t, err, apperrors.CodeNoTickets)

	backbone := f.create(t, domain.TicketTypeBackboneMaintenance, domain.TicketPriorityLow, "")
	res, err := f.dispatch.AutoAssign(f.ctx, backboneBy, AutoAssignInput{PartnerID: "backbone-2"})
	require.NoError(t, err)
	assert.Equal(t, backbone.ID, res.Ticket.ID)
}

func TestAutoAssign_RatioPrefersInstallation(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
		f.clock.Advance(time.Minute)
		f.closeWith(t, ticket.ID, "tech-a")
	}
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityCritical, "")
	f.clock.Advance(time.Minute)
	install := f.create(t, domain.TicketTypeInstallation, domain.TicketPriorityLow, "")

	res, err := f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-b"})
	require.NoError(t, err)
	assert.Equal(t, install.ID, res.Ticket.ID)
	assert.Equal(t, domain.TicketTypeInstallation, res.PreferredType)
}

func TestAutoAssign_Preconditions(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")

	_, err := f.dispatch.AutoAssign(f.ctx, helpdesk, AutoAssignInput{PartnerID: "tech-b"})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-a"})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{TechnicianID: "tech-c", PartnerID: "tech-b"})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "retired"})
	requireCode(t, err, apperrors.CodeBusinessRule)

	_, err = f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "nobody"})
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-b"})
	require.NoError(t, err)

	_, err = f.dispatch.AutoAssign(f.ctx, techA, AutoAssignInput{PartnerID: "tech-c"})
	requireCode(t, err, apperrors.CodeAlreadyActive)
	assert.True(t, apperrors.IsBusinessRule(err))

	_, err = f.dispatch.AutoAssign(f.ctx, techC, AutoAssignInput{PartnerID: "tech-b"})
	requireCode(t, err, apperrors.CodePartnerBusy)
}

func TestAutoAssign_ConcurrentCallersNeverShareATicket(t *testing.T) {
	f := newFixture(t)
	only := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")

	type outcome struct {
		res *DispatchResult
		err error
	}
	results := make([]outcome, 2)
	pairs := []struct {
		actor   domain.Actor
		partner string
	}{{techA, "tech-b"}, {techC, "tech-d"}}

	var wg sync.WaitGroup
	for i, p := range pairs {
		wg.Add(1)
		go func(i int, actor domain.Actor, partner string) {
			defer wg.Done()
			res, err := f.dispatch.AutoAssign(f.ctx, actor, AutoAssignInput{PartnerID: partner})
			results[i] = outcome{res: res, err: err}
		}(i, p.actor, p.partner)
	}
	wg.Wait()

	wins := 0
	for _, o := range results {
		if o.err == nil {
			wins++
			assert.Equal(t, only.ID, o.res.Ticket.ID)
			continue
		}
		requireCode(t, o.err, apperrors.CodeNoTickets)
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, f.team(t, only.ID), domain.MaxActiveAssignees)
}
