package repository

import (
	"context"

	"github.com/fieldops/dispatch-service/internal/domain"
)

// SettingsRepository is the key-value store for tunables.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

type settingsRepository struct {
	db DBTX
}

// NewSettingsRepository builds repository.
func NewSettingsRepository(db DBTX) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&value)
	return value, err
}

func (r *settingsRepository) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, rows.Err()
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	const query = `
        INSERT INTO settings (key, value) VALUES ($1,$2)
        ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`
	_, err := r.db.Exec(ctx, query, key, value)
	return err
}

// TechnicianFeeRepository reads per-technician fee overrides.
type TechnicianFeeRepository interface {
	// Get returns nil, nil when the technician has no override for the type.
	Get(ctx context.Context, technicianID string, ticketType domain.TicketType) (*domain.TechnicianFee, error)
	Upsert(ctx context.Context, fee domain.TechnicianFee) error
}

type technicianFeeRepository struct {
	db DBTX
}

// NewTechnicianFeeRepository builds repository.
func NewTechnicianFeeRepository(db DBTX) TechnicianFeeRepository {
	return &technicianFeeRepository{db: db}
}

func (r *technicianFeeRepository) Get(ctx context.Context, technicianID string, ticketType domain.TicketType) (*domain.TechnicianFee, error) {
	fee := domain.TechnicianFee{TechnicianID: technicianID, TicketType: ticketType}
	err := r.db.QueryRow(ctx,
		`SELECT ticket_fee, transport_fee FROM technician_fees WHERE technician_id=$1 AND ticket_type=$2`,
		technicianID, ticketType,
	).Scan(scanMoney(&fee.TicketFee), scanMoney(&fee.TransportFee))
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fee, nil
}

func (r *technicianFeeRepository) Upsert(ctx context.Context, fee domain.TechnicianFee) error {
	const query = `
        INSERT INTO technician_fees (technician_id, ticket_type, ticket_fee, transport_fee) VALUES ($1,$2,$3,$4)
        ON CONFLICT (technician_id, ticket_type) DO UPDATE
            SET ticket_fee=EXCLUDED.ticket_fee, transport_fee=EXCLUDED.transport_fee`
	_, err := r.db.Exec(ctx, query, fee.TechnicianID, fee.TicketType, numeric(fee.TicketFee), numeric(fee.TransportFee))
	return err
}
