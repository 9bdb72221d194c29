// Package memstore is an in-memory twin of the Postgres repositories. Every transaction
// holds a single store-wide lock, which makes it strictly serializable; it backs local
// development when no database is configured and the service tests.
package memstore

import (
	"context"
	"sync"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/repository"
)

type state struct {
	tickets     map[string]domain.Ticket
	assignments []domain.Assignment
	performance []domain.PerformanceLog
	history     []domain.TicketHistory
	users       map[string]domain.User
	settings    map[string]string
	fees        map[string]domain.TechnicianFee
	nextNumber  int64
}

func (s *state) clone() *state {
	out := &state{
		tickets:     make(map[string]domain.Ticket, len(s.tickets)),
		assignments: append([]domain.Assignment(nil), s.assignments...),
		performance: append([]domain.PerformanceLog(nil), s.performance...),
		history:     append([]domain.TicketHistory(nil), s.history...),
		users:       make(map[string]domain.User, len(s.users)),
		settings:    make(map[string]string, len(s.settings)),
		fees:        make(map[string]domain.TechnicianFee, len(s.fees)),
		nextNumber:  s.nextNumber,
	}
	for k, v := range s.tickets {
		out.tickets[k] = cloneTicket(v)
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.settings {
		out.settings[k] = v
	}
	for k, v := range s.fees {
		out.fees[k] = v
	}
	return out
}

// Store holds all engine state in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store.
func New() *Store {
	return &Store{st: &state{
		tickets:  map[string]domain.Ticket{},
		users:    map[string]domain.User{},
		settings: map[string]string{},
		fees:     map[string]domain.TechnicianFee{},
	}}
}

// WithinTx runs fn under the store lock and restores the previous state if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	ctx = context.WithValue(ctx, txKey{}, s)
	if err := fn(ctx, s.repositories(true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Repositories returns repositories that lock per call, for use outside WithinTx.
func (s *Store) Repositories() repository.Repositories {
	return s.repositories(false)
}

// Users returns the technician directory.
func (s *Store) Users() repository.UserRepository {
	return &userRepo{s: s}
}

// Settings returns the settings key-value store.
func (s *Store) Settings() repository.SettingsRepository {
	return &settingsRepo{s: s}
}

// TechnicianFees returns the per-technician fee overrides.
func (s *Store) TechnicianFees() repository.TechnicianFeeRepository {
	return &feeRepo{s: s}
}

func (s *Store) repositories(inTx bool) repository.Repositories {
	return repository.Repositories{
		Tickets:     &ticketRepo{s: s, inTx: inTx},
		Assignments: &assignmentRepo{s: s, inTx: inTx},
		Performance: &performanceRepo{s: s, inTx: inTx},
		History:     &historyRepo{s: s, inTx: inTx},
	}
}

type txKey struct{}

// do runs fn against the live state, taking the lock unless the caller already holds it.
func (s *Store) do(ctx context.Context, inTx bool, fn func(st *state) error) error {
	if held, _ := ctx.Value(txKey{}).(*Store); !inTx && held != s {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	out := t
	out.StartedAt = cloneTime(t.StartedAt)
	out.ClosedAt = cloneTime(t.ClosedAt)
	if t.DurationMinutes != nil {
		d := *t.DurationMinutes
		out.DurationMinutes = &d
	}
	if t.PerformStatus != nil {
		ps := *t.PerformStatus
		out.PerformStatus = &ps
	}
	out.Close.ProofRefs = append([]string(nil), t.Close.ProofRefs...)
	return out
}
