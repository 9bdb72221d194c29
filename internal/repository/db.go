package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = pgx.ErrNoRows

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so repositories work inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles the mutable stores a transition touches.
type Repositories struct {
	Tickets     TicketRepository
	Assignments AssignmentRepository
	Performance PerformanceLogRepository
	History     TicketHistoryRepository
}

// NewRepositories binds all mutable repositories to db.
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Tickets:     NewTicketRepository(db),
		Assignments: NewAssignmentRepository(db),
		Performance: NewPerformanceLogRepository(db),
		History:     NewTicketHistoryRepository(db),
	}
}

// Transactor runs fn as one atomic unit. If fn returns an error nothing it wrote is kept.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type pgTransactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor backed by a pgx pool.
func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return pgx.BeginTxFunc(ctx, t.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, NewRepositories(tx))
	})
}

// lockKeys takes transaction-scoped advisory locks in a stable order so concurrent
// callers locking overlapping sets cannot deadlock.
func lockKeys(ctx context.Context, db DBTX, namespace string, keys ...string) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	seen := make(map[string]struct{}, len(sorted))
	for _, key := range sorted {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, namespace+":"+key); err != nil {
			return err
		}
	}
	return nil
}

// IsNotFound reports whether err means "no such row".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
