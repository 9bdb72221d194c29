package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/geo"
)

var now = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

func ticketAt(id string, created time.Time, priority domain.TicketPriority) domain.Ticket {
	return domain.Ticket{
		ID:          id,
		Type:        domain.TicketTypeHomeMaintenance,
		Priority:    priority,
		Status:      domain.TicketStatusOpen,
		CreatedAt:   created,
		SLADeadline: created.Add(24 * time.Hour),
	}
}

func candidate(t domain.Ticket, p *geo.Point) Candidate {
	return Candidate{Ticket: t, Location: p}
}

func TestSelect_EmptyPool(t *testing.T) {
	_, ok := Select(nil, Context{Now: now})
	assert.False(t, ok)
}

func TestSelect_OverdueBeatsEverything(t *testing.T) {
	overdue := ticketAt("overdue", now.Add(-30*time.Hour), domain.TicketPriorityLow)
	critical := ticketAt("critical", now.Add(-time.Hour), domain.TicketPriorityCritical)
	near := &geo.Point{Lat: -6.2, Lng: 106.8}

	sel, ok := Select([]Candidate{
		candidate(critical, near),
		candidate(overdue, nil),
	}, Context{Now: now, HasHistory: true, Anchor: near})

	require.True(t, ok)
	assert.Equal(t, "overdue", sel.Ticket.ID)
	assert.Equal(t, ReasonOverdue, sel.Reason)
}

func TestSelect_MostOverdueFirst(t *testing.T) {
	a := ticketAt("a", now.Add(-30*time.Hour), domain.TicketPriorityCritical)
	b := ticketAt("b", now.Add(-50*time.Hour), domain.TicketPriorityLow)

	sel, ok := Select([]Candidate{candidate(a, nil), candidate(b, nil)}, Context{Now: now})

	require.True(t, ok)
	assert.Equal(t, "b", sel.Ticket.ID)
}

func TestSelect_FirstJobTakesOldest(t *testing.T) {
	newer := ticketAt("newer", now.Add(-time.Hour), domain.TicketPriorityCritical)
	older := ticketAt("older", now.Add(-5*time.Hour), domain.TicketPriorityLow)

	sel, ok := Select([]Candidate{candidate(newer, nil), candidate(older, nil)}, Context{Now: now})

	require.True(t, ok)
	assert.Equal(t, "older", sel.Ticket.ID)
	assert.Equal(t, ReasonFirstJob, sel.Reason)
}

func TestSelect_ProximityWithinRadius(t *testing.T) {
	anchor := geo.Point{Lat: -6.2000, Lng: 106.8000}
	close1 := geo.Point{Lat: -6.2050, Lng: 106.8000} // ~0.56 km
	close2 := geo.Point{Lat: -6.2100, Lng: 106.8000} // ~1.1 km
	far := geo.Point{Lat: -6.3000, Lng: 106.8000}    // ~11 km

	farOld := ticketAt("far-old", now.Add(-10*time.Hour), domain.TicketPriorityCritical)
	nearNew := ticketAt("near-new", now.Add(-time.Hour), domain.TicketPriorityLow)
	nearOld := ticketAt("near-old", now.Add(-2*time.Hour), domain.TicketPriorityLow)

	sel, ok := Select([]Candidate{
		candidate(farOld, &far),
		candidate(nearNew, &close1),
		candidate(nearOld, &close2),
	}, Context{Now: now, HasHistory: true, Anchor: &anchor, RadiusKm: 2})

	require.True(t, ok)
	assert.Equal(t, "near-old", sel.Ticket.ID)
	assert.Equal(t, ReasonProximity, sel.Reason)
	assert.InDelta(t, 1.11, sel.DistanceKm, 0.05)
}

func TestSelect_UnresolvableLocationNeverNear(t *testing.T) {
	anchor := geo.Point{Lat: -6.2, Lng: 106.8}
	high := ticketAt("high", now.Add(-time.Hour), domain.TicketPriorityHigh)
	low := ticketAt("low", now.Add(-8*time.Hour), domain.TicketPriorityLow)

	sel, ok := Select([]Candidate{candidate(low, nil), candidate(high, nil)},
		Context{Now: now, HasHistory: true, Anchor: &anchor})

	require.True(t, ok)
	assert.Equal(t, "high", sel.Ticket.ID)
	assert.Equal(t, ReasonPriority, sel.Reason)
}

func TestSelect_PriorityThenOldest(t *testing.T) {
	highNew := ticketAt("high-new", now.Add(-time.Hour), domain.TicketPriorityHigh)
	highOld := ticketAt("high-old", now.Add(-3*time.Hour), domain.TicketPriorityHigh)
	medium := ticketAt("medium", now.Add(-9*time.Hour), domain.TicketPriorityMedium)
	unknown := ticketAt("unknown", now.Add(-20*time.Hour), domain.TicketPriority("whatever"))

	sel, ok := Select([]Candidate{
		candidate(unknown, nil),
		candidate(medium, nil),
		candidate(highNew, nil),
		candidate(highOld, nil),
	}, Context{Now: now, HasHistory: true})

	require.True(t, ok)
	assert.Equal(t, "high-old", sel.Ticket.ID)
	assert.Equal(t, ReasonPriority, sel.Reason)
}

func TestSelect_RandomTieBreakOnIdenticalAge(t *testing.T) {
	created := now.Add(-2 * time.Hour)
	a := ticketAt("a", created, domain.TicketPriorityHigh)
	b := ticketAt("b", created, domain.TicketPriorityHigh)
	c := ticketAt("c", created, domain.TicketPriorityHigh)

	var asked int
	sel, ok := Select([]Candidate{candidate(a, nil), candidate(b, nil), candidate(c, nil)}, Context{
		Now:        now,
		HasHistory: true,
		Intn: func(n int) int {
			asked = n
			return 2
		},
	})

	require.True(t, ok)
	assert.Equal(t, 3, asked)
	assert.Equal(t, "c", sel.Ticket.ID)
	assert.Equal(t, ReasonRandomTieBreak, sel.Reason)
}

func TestSelect_DefaultRandomSourceStaysInGroup(t *testing.T) {
	created := now.Add(-2 * time.Hour)
	pool := []Candidate{
		candidate(ticketAt("a", created, domain.TicketPriorityHigh), nil),
		candidate(ticketAt("b", created, domain.TicketPriorityHigh), nil),
		candidate(ticketAt("low", created, domain.TicketPriorityLow), nil),
	}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		sel, ok := Select(pool, Context{Now: now, HasHistory: true})
		require.True(t, ok)
		assert.Equal(t, ReasonRandomTieBreak, sel.Reason)
		seen[sel.Ticket.ID] = true
	}
	assert.NotContains(t, seen, "low")
}

func TestSelect_DoesNotMutatePool(t *testing.T) {
	pool := []Candidate{
		candidate(ticketAt("b", now.Add(-time.Hour), domain.TicketPriorityLow), nil),
		candidate(ticketAt("a", now.Add(-30*time.Hour), domain.TicketPriorityLow), nil),
		candidate(ticketAt("c", now.Add(-40*time.Hour), domain.TicketPriorityLow), nil),
	}
	before := append([]Candidate(nil), pool...)

	_, ok := Select(pool, Context{Now: now})

	require.True(t, ok)
	assert.Equal(t, before, pool)
}
