package repository

import (
	"context"
	"time"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// PerformanceLogRepository stores per-technician bonus records.
type PerformanceLogRepository interface {
	Create(ctx context.Context, log *domain.PerformanceLog) error
	DeleteByTicket(ctx context.Context, ticketID string) (int64, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.PerformanceLog, error)
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]domain.PerformanceLog, error)
}

type performanceLogRepository struct {
	db DBTX
}

// NewPerformanceLogRepository builds repository.
func NewPerformanceLogRepository(db DBTX) PerformanceLogRepository {
	return &performanceLogRepository{db: db}
}

func (r *performanceLogRepository) Create(ctx context.Context, log *domain.PerformanceLog) error {
	const query = `
        INSERT INTO performance_logs (user_id, ticket_id, result, completed_within_sla, duration_minutes,
            ticket_fee, transport_fee, bonus, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		log.UserID,
		log.TicketID,
		log.Result,
		log.CompletedWithinSLA,
		log.DurationMinutes,
		numeric(log.TicketFee),
		numeric(log.TransportFee),
		numeric(log.Bonus),
		log.CreatedAt,
	).Scan(&log.ID)
}

func (r *performanceLogRepository) DeleteByTicket(ctx context.Context, ticketID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM performance_logs WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *performanceLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.PerformanceLog, error) {
	return r.list(ctx, `
        SELECT id, user_id, ticket_id, result, completed_within_sla, duration_minutes,
               ticket_fee, transport_fee, bonus, created_at
        FROM performance_logs WHERE ticket_id=$1 ORDER BY created_at ASC`, ticketID)
}

func (r *performanceLogRepository) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]domain.PerformanceLog, error) {
	return r.list(ctx, `
        SELECT id, user_id, ticket_id, result, completed_within_sla, duration_minutes,
               ticket_fee, transport_fee, bonus, created_at
        FROM performance_logs WHERE user_id=$1 AND created_at >= $2 AND created_at < $3
        ORDER BY created_at ASC`, userID, from, to)
}

func (r *performanceLogRepository) list(ctx context.Context, query string, args ...any) ([]domain.PerformanceLog, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PerformanceLog
	for rows.Next() {
		var log domain.PerformanceLog
		if err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.TicketID,
			&log.Result,
			&log.CompletedWithinSLA,
			&log.DurationMinutes,
			scanMoney(&log.TicketFee),
			scanMoney(&log.TransportFee),
			scanMoney(&log.Bonus),
			&log.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, log)
	}
	return result, rows.Err()
}
