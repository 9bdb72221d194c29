package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// AssignmentRepository persists the ticket/technician relation.
type AssignmentRepository interface {
	Insert(ctx context.Context, assignment *domain.Assignment) error
	ListActiveByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error)
	// DeactivateAllForTicket supersedes every active row of the ticket and reports how many changed.
	DeactivateAllForTicket(ctx context.Context, ticketID string) (int64, error)
	// ActiveTicketIDs lists tickets in an active-job status where the technician is an active assignee.
	ActiveTicketIDs(ctx context.Context, technicianID string) ([]string, error)
	// LockTechnicians serializes concurrent operations binding any of the given technicians.
	LockTechnicians(ctx context.Context, technicianIDs ...string) error
}

type assignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository instantiates repository.
func NewAssignmentRepository(db DBTX) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) Insert(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        INSERT INTO ticket_assignments (ticket_id, technician_id, active_flag, assignment_type, assigned_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		assignment.TicketID,
		assignment.TechnicianID,
		assignment.Active,
		assignment.AssignmentType,
		assignment.AssignedAt,
	).Scan(&assignment.ID)
}

func (r *assignmentRepository) ListActiveByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error) {
	const query = `
        SELECT id, ticket_id, technician_id, active_flag, assignment_type, assigned_at
        FROM ticket_assignments WHERE ticket_id=$1 AND active_flag ORDER BY assigned_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (r *assignmentRepository) DeactivateAllForTicket(ctx context.Context, ticketID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE ticket_assignments SET active_flag=FALSE WHERE ticket_id=$1 AND active_flag`, ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *assignmentRepository) ActiveTicketIDs(ctx context.Context, technicianID string) ([]string, error) {
	const query = `
        SELECT t.id FROM tickets t
        JOIN ticket_assignments a ON a.ticket_id = t.id AND a.active_flag
        WHERE a.technician_id=$1 AND t.status = ANY($2)`
	statuses := make([]string, 0, len(domain.ActiveJobStatuses))
	for _, s := range domain.ActiveJobStatuses {
		statuses = append(statuses, string(s))
	}
	rows, err := r.db.Query(ctx, query, technicianID, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *assignmentRepository) LockTechnicians(ctx context.Context, technicianIDs ...string) error {
	return lockKeys(ctx, r.db, "technician", technicianIDs...)
}

func scanAssignments(rows pgx.Rows) ([]domain.Assignment, error) {
	var result []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.TicketID, &a.TechnicianID, &a.Active, &a.AssignmentType, &a.AssignedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
