package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/events"
	"github.com/fieldops/dispatch-service/internal/repository/memstore"
	"github.com/fieldops/dispatch-service/internal/settings"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx       context.Context
	store     *memstore.Store
	clock     *fakeClock
	settings  *settings.Store
	mu        sync.Mutex
	published []events.Event

	tickets   *TicketService
	dispatch  *DispatchService
	assign    *AssignmentService
	lifecycle *LifecycleService
	bonus     *BonusService
	admin     *AdminService
}

var (
	helpdesk   = domain.Actor{UserID: "helpdesk-1", Role: domain.RoleHelpdesk}
	admin      = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	techA      = domain.Actor{UserID: "tech-a", Role: domain.RoleTechnician}
	techB      = domain.Actor{UserID: "tech-b", Role: domain.RoleTechnician}
	techC      = domain.Actor{UserID: "tech-c", Role: domain.RoleTechnician}
	techD      = domain.Actor{UserID: "tech-d", Role: domain.RoleTechnician}
	backboneBy = domain.Actor{UserID: "backbone-1", Role: domain.RoleTechnician}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	f := &fixture{ctx: ctx, store: store, clock: &fakeClock{now: t0}}

	users := []domain.User{
		{ID: "helpdesk-1", Name: "Hana", Role: domain.RoleHelpdesk, Active: true},
		{ID: "admin-1", Name: "Adi", Role: domain.RoleAdmin, Active: true},
		{ID: "tech-a", Name: "Agus", Role: domain.RoleTechnician, Active: true},
		{ID: "tech-b", Name: "Budi", Role: domain.RoleTechnician, Active: true},
		{ID: "tech-c", Name: "Citra", Role: domain.RoleTechnician, Active: true},
		{ID: "tech-d", Name: "Dewi", Role: domain.RoleTechnician, Active: true},
		{ID: "backbone-1", Name: "Eko", Role: domain.RoleTechnician, Active: true, BackboneSpecialist: true},
		{ID: "backbone-2", Name: "Fajar", Role: domain.RoleTechnician, Active: true, BackboneSpecialist: true},
		{ID: "retired", Name: "Gita", Role: domain.RoleTechnician, Active: false},
	}
	for i := range users {
		require.NoError(t, store.Users().Create(ctx, &users[i]))
	}

	f.settings = settings.NewStore(store.Settings(), settings.Options{DefaultRatio: domain.DispatchRatio{Maintenance: 4, Installation: 2}})
	require.NoError(t, f.settings.SetFeeSchedule(ctx, domain.TicketTypeHomeMaintenance, domain.FeeSchedule{TicketFee: units(50000), TransportFee: units(15000)}))
	require.NoError(t, f.settings.SetFeeSchedule(ctx, domain.TicketTypeBackboneMaintenance, domain.FeeSchedule{TicketFee: units(80000), TransportFee: units(20000)}))
	require.NoError(t, f.settings.SetFeeSchedule(ctx, domain.TicketTypeInstallation, domain.FeeSchedule{TicketFee: units(100000), TransportFee: units(25000)}))

	dispatcher := events.NewInMemoryDispatcher(nil)
	for _, et := range events.AllEventTypes {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.published = append(f.published, e)
			return nil
		})
	}

	deps := Dependencies{
		Tx:         store,
		Users:      store.Users(),
		Fees:       store.TechnicianFees(),
		Settings:   f.settings,
		Dispatcher: dispatcher,
		Clock:      f.clock.Now,
		RadiusKm:   2,
		Intn:       func(int) int { return 0 },
	}
	reads := store.Repositories()
	f.tickets = NewTicketService(deps, reads)
	f.dispatch = NewDispatchService(deps)
	f.assign = NewAssignmentService(deps)
	f.lifecycle = NewLifecycleService(deps)
	f.bonus = NewBonusService(deps, reads.Tickets)
	f.admin = NewAdminService(deps, f.settings)
	return f
}

func (f *fixture) create(t *testing.T, typ domain.TicketType, priority domain.TicketPriority, location string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(f.ctx, helpdesk, TicketCreateInput{
		Type:        typ,
		Priority:    priority,
		Customer:    domain.Customer{Name: "Customer", Phone: "0812", Address: "Jl. Merdeka 1"},
		LocationRef: location,
	})
	require.NoError(t, err)
	return ticket
}

// closeWith assigns team, starts and closes the ticket.
func (f *fixture) closeWith(t *testing.T, ticketID string, team ...string) *domain.Ticket {
	t.Helper()
	_, err := f.assign.Reassign(f.ctx, helpdesk, ticketID, team)
	require.NoError(t, err)
	worker := domain.Actor{UserID: team[0], Role: domain.RoleTechnician}
	_, err = f.lifecycle.StartWork(f.ctx, worker, ticketID)
	require.NoError(t, err)
	closed, err := f.lifecycle.Close(f.ctx, worker, ticketID, CloseInput{ActionDescription: "replaced ONT", ProofRefs: []string{"proof/1.jpg"}})
	require.NoError(t, err)
	return closed
}

func (f *fixture) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Repositories().Tickets.GetByID(f.ctx, id)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) team(t *testing.T, id string) []string {
	t.Helper()
	team, err := f.store.Repositories().Assignments.ListActiveByTicket(f.ctx, id)
	require.NoError(t, err)
	return assigneeIDs(team)
}

func (f *fixture) logs(t *testing.T, id string) []domain.PerformanceLog {
	t.Helper()
	logs, err := f.store.Repositories().Performance.ListByTicket(f.ctx, id)
	require.NoError(t, err)
	return logs
}

func (f *fixture) eventsOf(et events.EventType) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.published {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, apperrors.HasCode(err, code), "want %s, got %v", code, err)
}

// units converts whole currency units to Money.
func units(v int64) domain.Money { return domain.Money(v * domain.CentsPerUnit) }
