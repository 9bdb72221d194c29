package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/repository"
)

type ticketRepo struct {
	s    *Store
	inTx bool
}

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.s.do(ctx, r.inTx, func(st *state) error {
		st.nextNumber++
		ticket.ID = uuid.NewString()
		ticket.Number = st.nextNumber
		ticket.UpdatedAt = time.Now()
		st.tickets[ticket.ID] = cloneTicket(*ticket)
		return nil
	})
}

func (r *ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.s.do(ctx, r.inTx, func(st *state) error {
		if _, ok := st.tickets[ticket.ID]; !ok {
			return repository.ErrNotFound
		}
		ticket.UpdatedAt = time.Now()
		st.tickets[ticket.ID] = cloneTicket(*ticket)
		return nil
	})
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		c := cloneTicket(t)
		out = &c
		return nil
	})
	return out, err
}

func (r *ticketRepo) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepo) ClaimDispatchable(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Status.IsDispatchable() {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (r *ticketRepo) ListDispatchable(ctx context.Context, types []domain.TicketType) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, t := range st.tickets {
			if !t.Status.IsDispatchable() {
				continue
			}
			if len(types) > 0 && !containsType(types, t.Type) {
				continue
			}
			out = append(out, cloneTicket(t))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *ticketRepo) ListClosedByTechnician(ctx context.Context, technicianID string, since time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, a := range st.assignments {
			if !a.Active || a.TechnicianID != technicianID {
				continue
			}
			t, ok := st.tickets[a.TicketID]
			if !ok || t.Status != domain.TicketStatusClosed || t.ClosedAt == nil || t.ClosedAt.Before(since) {
				continue
			}
			out = append(out, cloneTicket(t))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(*out[j].ClosedAt) })
	return out, err
}

func (r *ticketRepo) ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, t := range st.tickets {
			if t.Status != domain.TicketStatusClosed || t.ClosedAt == nil {
				continue
			}
			if t.ClosedAt.Before(from) || !t.ClosedAt.Before(to) {
				continue
			}
			out = append(out, cloneTicket(t))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(*out[j].ClosedAt) })
	return out, err
}

func (r *ticketRepo) NextDailySequence(ctx context.Context, day time.Time) (int, error) {
	prefix := "T-" + day.Format("20060102") + "-"
	count := 0
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, t := range st.tickets {
			if strings.HasPrefix(t.Code, prefix) {
				count++
			}
		}
		return nil
	})
	return count + 1, err
}

func (r *ticketRepo) NormalizeLegacyStatuses(ctx context.Context) (int64, error) {
	var changed int64
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for id, t := range st.tickets {
			if t.Status != domain.TicketStatusOverdue {
				continue
			}
			switch {
			case t.StartedAt != nil:
				t.Status = domain.TicketStatusInProgress
			case hasActiveAssignment(st, id):
				t.Status = domain.TicketStatusAssigned
			default:
				t.Status = domain.TicketStatusOpen
			}
			t.UpdatedAt = time.Now()
			st.tickets[id] = t
			changed++
		}
		return nil
	})
	return changed, err
}

type assignmentRepo struct {
	s    *Store
	inTx bool
}

func (r *assignmentRepo) Insert(ctx context.Context, assignment *domain.Assignment) error {
	return r.s.do(ctx, r.inTx, func(st *state) error {
		assignment.ID = uuid.NewString()
		st.assignments = append(st.assignments, *assignment)
		return nil
	})
}

func (r *assignmentRepo) ListActiveByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error) {
	var out []domain.Assignment
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, a := range st.assignments {
			if a.Active && a.TicketID == ticketID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (r *assignmentRepo) DeactivateAllForTicket(ctx context.Context, ticketID string) (int64, error) {
	var changed int64
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for i := range st.assignments {
			if st.assignments[i].Active && st.assignments[i].TicketID == ticketID {
				st.assignments[i].Active = false
				changed++
			}
		}
		return nil
	})
	return changed, err
}

func (r *assignmentRepo) ActiveTicketIDs(ctx context.Context, technicianID string) ([]string, error) {
	var ids []string
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, a := range st.assignments {
			if !a.Active || a.TechnicianID != technicianID {
				continue
			}
			if t, ok := st.tickets[a.TicketID]; ok && t.Status.IsActiveJob() {
				ids = append(ids, t.ID)
			}
		}
		return nil
	})
	return ids, err
}

// LockTechnicians is a no-op: a transaction already holds the store-wide lock.
func (r *assignmentRepo) LockTechnicians(context.Context, ...string) error {
	return nil
}

type performanceRepo struct {
	s    *Store
	inTx bool
}

func (r *performanceRepo) Create(ctx context.Context, log *domain.PerformanceLog) error {
	return r.s.do(ctx, r.inTx, func(st *state) error {
		log.ID = uuid.NewString()
		st.performance = append(st.performance, *log)
		return nil
	})
}

func (r *performanceRepo) DeleteByTicket(ctx context.Context, ticketID string) (int64, error) {
	var removed int64
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		kept := st.performance[:0]
		for _, l := range st.performance {
			if l.TicketID == ticketID {
				removed++
				continue
			}
			kept = append(kept, l)
		}
		st.performance = kept
		return nil
	})
	return removed, err
}

func (r *performanceRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.PerformanceLog, error) {
	var out []domain.PerformanceLog
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, l := range st.performance {
			if l.TicketID == ticketID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

func (r *performanceRepo) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]domain.PerformanceLog, error) {
	var out []domain.PerformanceLog
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, l := range st.performance {
			if l.UserID == userID && !l.CreatedAt.Before(from) && l.CreatedAt.Before(to) {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}

type historyRepo struct {
	s    *Store
	inTx bool
}

func (r *historyRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	return r.s.do(ctx, r.inTx, func(st *state) error {
		history.ID = uuid.NewString()
		history.CreatedAt = time.Now()
		st.history = append(st.history, *history)
		return nil
	})
}

func (r *historyRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	err := r.s.do(ctx, r.inTx, func(st *state) error {
		for _, h := range st.history {
			if h.TicketID == ticketID {
				out = append(out, h)
			}
		}
		return nil
	})
	return out, err
}

type userRepo struct {
	s *Store
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.s.do(ctx, false, func(st *state) error {
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		now := time.Now()
		user.CreatedAt, user.UpdatedAt = now, now
		st.users[user.ID] = *user
		return nil
	})
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.s.do(ctx, false, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepo) ListByRole(ctx context.Context, role domain.Role, activeOnly bool) ([]domain.User, error) {
	var out []domain.User
	err := r.s.do(ctx, false, func(st *state) error {
		for _, u := range st.users {
			if u.Role == role && (!activeOnly || u.Active) {
				out = append(out, u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

type settingsRepo struct {
	s *Store
}

func (r *settingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.s.do(ctx, false, func(st *state) error {
		v, ok := st.settings[key]
		if !ok {
			return repository.ErrNotFound
		}
		value = v
		return nil
	})
	return value, err
}

func (r *settingsRepo) All(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := r.s.do(ctx, false, func(st *state) error {
		for k, v := range st.settings {
			out[k] = v
		}
		return nil
	})
	return out, err
}

func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	return r.s.do(ctx, false, func(st *state) error {
		st.settings[key] = value
		return nil
	})
}

type feeRepo struct {
	s *Store
}

func (r *feeRepo) Get(ctx context.Context, technicianID string, ticketType domain.TicketType) (*domain.TechnicianFee, error) {
	var out *domain.TechnicianFee
	err := r.s.do(ctx, false, func(st *state) error {
		if fee, ok := st.fees[feeKey(technicianID, ticketType)]; ok {
			out = &fee
		}
		return nil
	})
	return out, err
}

func (r *feeRepo) Upsert(ctx context.Context, fee domain.TechnicianFee) error {
	return r.s.do(ctx, false, func(st *state) error {
		st.fees[feeKey(fee.TechnicianID, fee.TicketType)] = fee
		return nil
	})
}

func feeKey(technicianID string, ticketType domain.TicketType) string {
	return technicianID + "|" + string(ticketType)
}

func containsType(types []domain.TicketType, t domain.TicketType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func hasActiveAssignment(st *state, ticketID string) bool {
	for _, a := range st.assignments {
		if a.Active && a.TicketID == ticketID {
			return true
		}
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
