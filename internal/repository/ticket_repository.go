package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate loads the ticket and holds its row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	// ClaimDispatchable locks the ticket only if it is still open for dispatch.
	// It returns ErrNotFound when another caller got there first.
	ClaimDispatchable(ctx context.Context, id string) (*domain.Ticket, error)
	ListDispatchable(ctx context.Context, types []domain.TicketType) ([]domain.Ticket, error)
	// ListClosedByTechnician returns tickets closed since the given time where the technician
	// is an active assignee, most recently closed first.
	ListClosedByTechnician(ctx context.Context, technicianID string, since time.Time) ([]domain.Ticket, error)
	ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error)
	// NextDailySequence returns the next per-day counter for ticket codes.
	NextDailySequence(ctx context.Context, day time.Time) (int, error)
	NormalizeLegacyStatuses(ctx context.Context) (int64, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, code, number, type, priority, status, customer_name, customer_phone, customer_address,
               location_ref, description, created_at, updated_at, sla_deadline, started_at, closed_at,
               duration_minutes, ticket_fee, transport_fee, bonus, perform_status, rejection_reason,
               reopen_reason, action_description, speedtest_ref, proof_refs, close_note`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (code, type, priority, status, customer_name, customer_phone, customer_address,
            location_ref, description, created_at, sla_deadline, ticket_fee, transport_fee, bonus)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING id, number, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.Code,
		ticket.Type,
		ticket.Priority,
		ticket.Status,
		ticket.Customer.Name,
		ticket.Customer.Phone,
		ticket.Customer.Address,
		ticket.LocationRef,
		ticket.Description,
		ticket.CreatedAt,
		ticket.SLADeadline,
		numeric(ticket.TicketFee),
		numeric(ticket.TransportFee),
		numeric(ticket.Bonus),
	).Scan(&ticket.ID, &ticket.Number, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET type=$1, priority=$2, status=$3, sla_deadline=$4, started_at=$5, closed_at=$6,
            duration_minutes=$7, ticket_fee=$8, transport_fee=$9, bonus=$10, perform_status=$11,
            rejection_reason=$12, reopen_reason=$13, action_description=$14, speedtest_ref=$15,
            proof_refs=$16, close_note=$17, updated_at=NOW()
        WHERE id=$18
        RETURNING updated_at`
	proofRefs := ticket.Close.ProofRefs
	if proofRefs == nil {
		proofRefs = []string{}
	}
	err := r.db.QueryRow(ctx, query,
		ticket.Type,
		ticket.Priority,
		ticket.Status,
		ticket.SLADeadline,
		ticket.StartedAt,
		ticket.ClosedAt,
		ticket.DurationMinutes,
		numeric(ticket.TicketFee),
		numeric(ticket.TransportFee),
		numeric(ticket.Bonus),
		ticket.PerformStatus,
		ticket.RejectionReason,
		ticket.ReopenReason,
		ticket.Close.ActionDescription,
		ticket.Close.SpeedtestRef,
		proofRefs,
		ticket.Close.Note,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) ClaimDispatchable(ctx context.Context, id string) (*domain.Ticket, error) {
	// READ COMMITTED re-evaluates the status predicate after waiting on a competing lock,
	// so a ticket bound by a concurrent transaction comes back as no row.
	query := `SELECT ` + ticketColumns + ` FROM tickets
             WHERE id=$1 AND status IN ($2,$3) FOR UPDATE`
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, id,
		domain.TicketStatusOpen, domain.TicketStatusWaitingAssignment), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListDispatchable(ctx context.Context, types []domain.TicketType) ([]domain.Ticket, error) {
	args := []any{domain.TicketStatusOpen, domain.TicketStatusWaitingAssignment}
	clauses := []string{"status IN ($1,$2)"}
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at ASC`,
		ticketColumns, strings.Join(clauses, " AND "))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListClosedByTechnician(ctx context.Context, technicianID string, since time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + prefixed("t", ticketColumns) + `
             FROM tickets t
             JOIN ticket_assignments a ON a.ticket_id = t.id AND a.active_flag
             WHERE a.technician_id=$1 AND t.status=$2 AND t.closed_at >= $3
             ORDER BY t.closed_at DESC`
	rows, err := r.db.Query(ctx, query, technicianID, domain.TicketStatusClosed, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
             WHERE status=$1 AND closed_at >= $2 AND closed_at < $3
             ORDER BY closed_at ASC`
	rows, err := r.db.Query(ctx, query, domain.TicketStatusClosed, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) NextDailySequence(ctx context.Context, day time.Time) (int, error) {
	prefix := day.Format("20060102")
	if err := lockKeys(ctx, r.db, "ticket_code", prefix); err != nil {
		return 0, err
	}
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE code LIKE $1`, "T-"+prefix+"-%").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (r *ticketRepository) NormalizeLegacyStatuses(ctx context.Context) (int64, error) {
	const query = `
        UPDATE tickets t SET status = CASE
                WHEN t.started_at IS NOT NULL THEN 'in_progress'
                WHEN EXISTS (SELECT 1 FROM ticket_assignments a WHERE a.ticket_id = t.id AND a.active_flag) THEN 'assigned'
                ELSE 'open'
            END,
            updated_at = NOW()
        WHERE t.status = $1`
	cmd, err := r.db.Exec(ctx, query, domain.TicketStatusOverdue)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	var performStatus *string
	if err := row.Scan(
		&ticket.ID,
		&ticket.Code,
		&ticket.Number,
		&ticket.Type,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Customer.Name,
		&ticket.Customer.Phone,
		&ticket.Customer.Address,
		&ticket.LocationRef,
		&ticket.Description,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.SLADeadline,
		&ticket.StartedAt,
		&ticket.ClosedAt,
		&ticket.DurationMinutes,
		scanMoney(&ticket.TicketFee),
		scanMoney(&ticket.TransportFee),
		scanMoney(&ticket.Bonus),
		&performStatus,
		&ticket.RejectionReason,
		&ticket.ReopenReason,
		&ticket.Close.ActionDescription,
		&ticket.Close.SpeedtestRef,
		&ticket.Close.ProofRefs,
		&ticket.Close.Note,
	); err != nil {
		return err
	}
	if performStatus != nil {
		ps := domain.PerformStatus(*performStatus)
		ticket.PerformStatus = &ps
	}
	return nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
