package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

func TestClose_WithinSLAPaysFullFees(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	_, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a", "tech-b"})
	require.NoError(t, err)
	_, err = f.lifecycle.StartWork(f.ctx, techB, ticket.ID)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Hour)

	closed, err := f.lifecycle.Close(f.ctx, techA, ticket.ID, CloseInput{
		ActionDescription: " replaced ONT ",
		SpeedtestRef:      "speedtest/42",
		ProofRefs:         []string{"proof/1.jpg", " ", "proof/2.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.PerformStatus)
	assert.Equal(t, domain.PerformStatusPerform, *closed.PerformStatus)
	assert.Equal(t, units(50000), closed.TicketFee)
	assert.Equal(t, units(15000), closed.TransportFee)
	assert.Equal(t, units(65000), closed.Bonus)
	require.NotNil(t, closed.DurationMinutes)
	assert.Equal(t, 300, *closed.DurationMinutes)
	assert.Equal(t, "replaced ONT", closed.Close.ActionDescription)
	assert.Equal(t, []string{"proof/1.jpg", "proof/2.jpg"}, closed.Close.ProofRefs)

	logs := f.logs(t, ticket.ID)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.True(t, l.CompletedWithinSLA)
		assert.Equal(t, units(65000), l.Bonus)
		assert.Equal(t, t0.Add(5*time.Hour), l.CreatedAt)
	}

	closedEvents := f.eventsOf(events.EventTicketClosed)
	require.Len(t, closedEvents, 1)
	payload := closedEvents[0].Payload.(events.TicketClosedPayload)
	assert.True(t, payload.WithinSLA)
	assert.Equal(t, units(65000), payload.Bonus)
}

func TestClose_InstallationPastSLAPaysTransportOnly(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeInstallation, domain.TicketPriorityHigh, "")
	assert.Equal(t, t0.Add(72*time.Hour), ticket.SLADeadline)

	_, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a", "tech-b"})
	require.NoError(t, err)
	_, err = f.lifecycle.StartWork(f.ctx, techA, ticket.ID)
	require.NoError(t, err)
	f.clock.Advance(80 * time.Hour)

	closed, err := f.lifecycle.Close(f.ctx, techA, ticket.ID, CloseInput{ActionDescription: "installed"})
	require.NoError(t, err)
	assert.Equal(t, domain.PerformStatusNotPerform, *closed.PerformStatus)
	assert.Equal(t, units(0), closed.TicketFee)
	assert.Equal(t, units(25000), closed.TransportFee)
	assert.Equal(t, units(25000), closed.Bonus)
	assert.Equal(t, 80*60, *closed.DurationMinutes)

	logs := f.logs(t, ticket.ID)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.False(t, l.CompletedWithinSLA)
		assert.Equal(t, domain.PerformStatusNotPerform, l.Result)
		assert.Equal(t, units(0), l.TicketFee)
		assert.Equal(t, units(25000), l.Bonus)
	}
}

func TestClose_TechnicianOverrideAppliesToTheirLogOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.admin.SetTechnicianFee(f.ctx, admin, domain.TechnicianFee{
		TechnicianID: "tech-b",
		TicketType:   domain.TicketTypeHomeMaintenance,
		FeeSchedule:  domain.FeeSchedule{TicketFee: units(60000), TransportFee: units(10000)},
	}))

	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	closed := f.closeWith(t, ticket.ID, "tech-a", "tech-b")
	assert.Equal(t, units(65000), closed.Bonus)

	bonus := map[string]domain.Money{}
	for _, l := range f.logs(t, ticket.ID) {
		bonus[l.UserID] = l.Bonus
	}
	assert.Equal(t, map[string]domain.Money{"tech-a": units(65000), "tech-b": units(70000)}, bonus)
}

func TestReopen_RemovesCreditAndKeepsDeadline(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	f.closeWith(t, ticket.ID, "tech-a", "tech-b")
	require.Len(t, f.logs(t, ticket.ID), 2)
	f.clock.Advance(30 * time.Hour)

	_, err := f.lifecycle.Reopen(f.ctx, helpdesk, ticket.ID, "   ", []string{"tech-c"})
	requireCode(t, err, apperrors.CodeValidation)

	reopened, err := f.lifecycle.Reopen(f.ctx, helpdesk, ticket.ID, "customer still offline", []string{"tech-c"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, reopened.Status)
	assert.Nil(t, reopened.PerformStatus)
	assert.Nil(t, reopened.ClosedAt)
	assert.Zero(t, reopened.Bonus)
	assert.Equal(t, ticket.SLADeadline, reopened.SLADeadline)
	assert.Contains(t, reopened.ReopenReason, "customer still offline")
	assert.Empty(t, f.logs(t, ticket.ID))
	assert.Equal(t, []string{"tech-c"}, f.team(t, ticket.ID))

	_, err = f.lifecycle.StartWork(f.ctx, techC, ticket.ID)
	require.NoError(t, err)
	closed, err := f.lifecycle.Close(f.ctx, techC, ticket.ID, CloseInput{ActionDescription: "spliced drop cable"})
	require.NoError(t, err)
	assert.Equal(t, domain.PerformStatusNotPerform, *closed.PerformStatus)
	assert.Equal(t, units(15000), closed.Bonus)
	logs := f.logs(t, ticket.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, "tech-c", logs[0].UserID)

	reopenedEvents := f.eventsOf(events.EventTicketReopened)
	require.Len(t, reopenedEvents, 1)
	assert.Equal(t, "closed", reopenedEvents[0].Payload.(events.TicketReopenedPayload).Mode)
}

func TestReopen_RequiresClosedTicketAndFreeTeam(t *testing.T) {
	f := newFixture(t)
	open := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	_, err := f.lifecycle.Reopen(f.ctx, helpdesk, open.ID, "again", []string{"tech-a"})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	done := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	f.closeWith(t, done.ID, "tech-a")
	_, err = f.assign.Reassign(f.ctx, helpdesk, open.ID, []string{"tech-b"})
	require.NoError(t, err)

	_, err = f.lifecycle.Reopen(f.ctx, helpdesk, done.ID, "again", []string{"tech-b"})
	requireCode(t, err, apperrors.CodeAlreadyActive)
	assert.Equal(t, domain.TicketStatusClosed, f.ticket(t, done.ID).Status)
	assert.Len(t, f.logs(t, done.ID), 1)

	_, err = f.lifecycle.Reopen(f.ctx, techA, done.ID, "again", []string{"tech-a"})
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestRejectionFlow(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	_, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a", "tech-b"})
	require.NoError(t, err)

	_, err = f.lifecycle.ReportNoResponse(f.ctx, techA, ticket.ID, "")
	requireCode(t, err, apperrors.CodeValidation)
	assert.Equal(t, domain.TicketStatusAssigned, f.ticket(t, ticket.ID).Status)

	pending, err := f.lifecycle.ReportNoResponse(f.ctx, techA, ticket.ID, "customer not home")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingRejection, pending.Status)
	assert.Equal(t, "customer not home", pending.RejectionReason)

	cancelled, err := f.lifecycle.CancelReject(f.ctx, helpdesk, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, cancelled.Status)
	assert.Empty(t, cancelled.RejectionReason)

	_, err = f.lifecycle.ReportNoResponse(f.ctx, techB, ticket.ID, "phone unreachable")
	require.NoError(t, err)
	_, err = f.lifecycle.ConfirmReject(f.ctx, techA, ticket.ID, "confirmed")
	requireCode(t, err, apperrors.CodeForbidden)

	rejected, err := f.lifecycle.ConfirmReject(f.ctx, helpdesk, ticket.ID, "customer cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusRejected, rejected.Status)
	assert.Zero(t, rejected.Bonus)
	assert.Contains(t, rejected.RejectionReason, "phone unreachable")
	assert.Contains(t, rejected.RejectionReason, "rejected: customer cancelled")

	logs := f.logs(t, ticket.ID)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, domain.PerformStatusNotPerform, l.Result)
		assert.Zero(t, l.Bonus)
	}

	kept, err := f.lifecycle.ReopenRejected(f.ctx, helpdesk, ticket.ID, "customer called back", ReopenModeCurrent)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, kept.Status)
	assert.Nil(t, kept.PerformStatus)
	assert.Empty(t, kept.RejectionReason)
	assert.Contains(t, kept.ReopenReason, "[current] customer called back")
	assert.ElementsMatch(t, []string{"tech-a", "tech-b"}, f.team(t, ticket.ID))
	assert.Empty(t, f.logs(t, ticket.ID))

	_, err = f.lifecycle.ReportNoResponse(f.ctx, techA, ticket.ID, "no answer")
	require.NoError(t, err)
	_, err = f.lifecycle.ConfirmReject(f.ctx, helpdesk, ticket.ID, "gave up")
	require.NoError(t, err)

	_, err = f.lifecycle.ReopenRejected(f.ctx, helpdesk, ticket.ID, "retry", ReopenMode("later"))
	requireCode(t, err, apperrors.CodeValidation)

	pooled, err := f.lifecycle.ReopenRejected(f.ctx, helpdesk, ticket.ID, "new schedule", ReopenModeAuto)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, pooled.Status)
	assert.Empty(t, f.team(t, ticket.ID))
	assert.Empty(t, f.logs(t, ticket.ID))

	_, err = f.lifecycle.ReopenRejected(f.ctx, helpdesk, ticket.ID, "again", ReopenModeAuto)
	requireCode(t, err, apperrors.CodeInvalidTransition)
}

func TestCancelReject_TeamBusyElsewhere(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	second := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	_, err := f.assign.Reassign(f.ctx, helpdesk, first.ID, []string{"tech-a"})
	require.NoError(t, err)
	_, err = f.lifecycle.ReportNoResponse(f.ctx, techA, first.ID, "not home")
	require.NoError(t, err)

	// pending rejection frees the technician for other work
	_, err = f.assign.Reassign(f.ctx, helpdesk, second.ID, []string{"tech-a"})
	require.NoError(t, err)

	_, err = f.lifecycle.CancelReject(f.ctx, helpdesk, first.ID)
	requireCode(t, err, apperrors.CodeAlreadyActive)
	assert.Equal(t, domain.TicketStatusPendingRejection, f.ticket(t, first.ID).Status)
}

func TestCloseByHelpdesk(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeBackboneMaintenance, domain.TicketPriorityCritical, "")
	_, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"backbone-1", "backbone-2"})
	require.NoError(t, err)
	_, err = f.lifecycle.CloseByHelpdesk(f.ctx, helpdesk, ticket.ID, "fixed remotely")
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.lifecycle.ReportNoResponse(f.ctx, backboneBy, ticket.ID, "site locked")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	closed, err := f.lifecycle.CloseByHelpdesk(f.ctx, helpdesk, ticket.ID, "fixed remotely")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	assert.Equal(t, domain.PerformStatusPerform, *closed.PerformStatus)
	assert.Equal(t, units(100000), closed.Bonus)
	assert.Contains(t, closed.RejectionReason, "closed by helpdesk: fixed remotely")
	assert.Len(t, f.logs(t, ticket.ID), 2)
}

func TestTransitions_GuardStatusAndTeam(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")

	_, err := f.lifecycle.StartWork(f.ctx, techA, ticket.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a"})
	require.NoError(t, err)

	_, err = f.lifecycle.Close(f.ctx, techA, ticket.ID, CloseInput{ActionDescription: "done"})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.lifecycle.ConfirmReject(f.ctx, helpdesk, ticket.ID, "nope")
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.lifecycle.StartWork(f.ctx, techC, ticket.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	started, err := f.lifecycle.StartWork(f.ctx, techA, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, started.StartedAt)

	_, err = f.lifecycle.StartWork(f.ctx, techA, ticket.ID)
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.lifecycle.Close(f.ctx, techA, ticket.ID, CloseInput{ActionDescription: "  "})
	requireCode(t, err, apperrors.CodeValidation)
	assert.Equal(t, domain.TicketStatusInProgress, f.ticket(t, ticket.ID).Status)

	_, err = f.lifecycle.Close(f.ctx, helpdesk, ticket.ID, CloseInput{ActionDescription: "done"})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.lifecycle.StartWork(f.ctx, techA, "missing")
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.lifecycle.Close(f.ctx, techA, ticket.ID, CloseInput{ActionDescription: "done"})
	require.NoError(t, err)
	_, err = f.assign.Unassign(f.ctx, helpdesk, ticket.ID)
	requireCode(t, err, apperrors.CodeInvalidTransition)
}

func TestManualAssign(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")

	assigned, err := f.assign.ManualAssign(f.ctx, helpdesk, ticket.ID, "tech-a")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, assigned.Status)

	_, err = f.assign.ManualAssign(f.ctx, helpdesk, ticket.ID, "tech-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"tech-a"}, f.team(t, ticket.ID))

	_, err = f.assign.ManualAssign(f.ctx, helpdesk, ticket.ID, "tech-b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tech-a", "tech-b"}, f.team(t, ticket.ID))

	_, err = f.assign.ManualAssign(f.ctx, helpdesk, ticket.ID, "tech-c")
	requireCode(t, err, apperrors.CodeBusinessRule)
	assert.Len(t, f.team(t, ticket.ID), 2)

	other := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	_, err = f.assign.ManualAssign(f.ctx, helpdesk, other.ID, "tech-a")
	requireCode(t, err, apperrors.CodeAlreadyActive)

	_, err = f.assign.ManualAssign(f.ctx, helpdesk, other.ID, "retired")
	requireCode(t, err, apperrors.CodeBusinessRule)

	_, err = f.assign.ManualAssign(f.ctx, helpdesk, other.ID, "helpdesk-1")
	requireCode(t, err, apperrors.CodeBusinessRule)

	_, err = f.assign.ManualAssign(f.ctx, techA, other.ID, "tech-c")
	requireCode(t, err, apperrors.CodeForbidden)

	assert.Len(t, f.eventsOf(events.EventTicketAssigned), 2)
}

func TestReassignAndUnassign(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")

	for name, team := range map[string][]string{
		"empty":     {},
		"three":     {"tech-a", "tech-b", "tech-c"},
		"duplicate": {"tech-a", "tech-a"},
		"blank":     {"tech-a", " "},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, team)
			requireCode(t, err, apperrors.CodeValidation)
		})
	}

	_, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a", "tech-b"})
	require.NoError(t, err)
	_, err = f.lifecycle.StartWork(f.ctx, techA, ticket.ID)
	require.NoError(t, err)

	moved, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-c", "tech-d"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, moved.Status)
	assert.Nil(t, moved.StartedAt)
	assert.ElementsMatch(t, []string{"tech-c", "tech-d"}, f.team(t, ticket.ID))

	// the old team is free again
	other := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	_, err = f.assign.Reassign(f.ctx, helpdesk, other.ID, []string{"tech-a"})
	require.NoError(t, err)

	_, err = f.assign.Reassign(f.ctx, helpdesk, other.ID, []string{"tech-c"})
	requireCode(t, err, apperrors.CodeAlreadyActive)

	unassigned, err := f.assign.Unassign(f.ctx, helpdesk, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, unassigned.Status)
	assert.Empty(t, f.team(t, ticket.ID))

	details, err := f.tickets.GetTicket(f.ctx, helpdesk, ticket.ID)
	require.NoError(t, err)
	var ops []string
	for _, h := range details.History {
		ops = append(ops, h.Operation)
	}
	assert.Equal(t, []string{"create", "reassign", "start_work", "reassign", "unassign"}, ops)
}

func TestClose_AfterCommittedReassignFailsPrecondition(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
	_, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a", "tech-b"})
	require.NoError(t, err)
	_, err = f.lifecycle.StartWork(f.ctx, techA, ticket.ID)
	require.NoError(t, err)

	_, err = f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a", "tech-c"})
	require.NoError(t, err)

	_, err = f.lifecycle.Close(f.ctx, techA, ticket.ID, CloseInput{ActionDescription: "replaced ONT"})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	current := f.ticket(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusAssigned, current.Status)
	assert.Nil(t, current.ClosedAt)
	assert.Zero(t, current.Bonus)
	assert.Empty(t, f.logs(t, ticket.ID))
	assert.ElementsMatch(t, []string{"tech-a", "tech-c"}, f.team(t, ticket.ID))
}

func TestReassignAndCloseRace_OneWins(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ticket := f.create(t, domain.TicketTypeHomeMaintenance, domain.TicketPriorityMedium, "")
		_, err := f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a", "tech-b"})
		require.NoError(t, err)
		_, err = f.lifecycle.StartWork(f.ctx, techA, ticket.ID)
		require.NoError(t, err)

		var (
			wg                    sync.WaitGroup
			reassignErr, closeErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, reassignErr = f.assign.Reassign(f.ctx, helpdesk, ticket.ID, []string{"tech-a", "tech-c"})
		}()
		go func() {
			defer wg.Done()
			_, closeErr = f.lifecycle.Close(f.ctx, techA, ticket.ID, CloseInput{ActionDescription: "replaced ONT"})
		}()
		wg.Wait()

		current := f.ticket(t, ticket.ID)
		if closeErr == nil {
			requireCode(t, reassignErr, apperrors.CodeInvalidTransition)
			assert.Equal(t, domain.TicketStatusClosed, current.Status)
			assert.ElementsMatch(t, []string{"tech-a", "tech-b"}, f.team(t, ticket.ID))
			assert.Len(t, f.logs(t, ticket.ID), 2)
		} else {
			require.NoError(t, reassignErr)
			requireCode(t, closeErr, apperrors.CodeInvalidTransition)
			assert.Equal(t, domain.TicketStatusAssigned, current.Status)
			assert.ElementsMatch(t, []string{"tech-a", "tech-c"}, f.team(t, ticket.ID))
			assert.Empty(t, f.logs(t, ticket.ID))
		}
	}
}
