package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/domain"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// SettingsWriter updates the tunables read by dispatch and close.
type SettingsWriter interface {
	SetFeeSchedule(ctx context.Context, t domain.TicketType, fees domain.FeeSchedule) error
	SetDispatchRatio(ctx context.Context, ratio domain.DispatchRatio) error
}

// AdminService maintains fee settings, technician overrides and the user directory.
type AdminService struct {
	engine
	writer SettingsWriter
}

// UserInput describes a directory entry.
type UserInput struct {
	ID                        string
	Name                      string
	Role                      domain.Role
	BackboneSpecialist        bool
	VendorSpecialist          bool
	PrioritizeHomeMaintenance bool
}

// NewAdminService creates the service.
func NewAdminService(deps Dependencies, writer SettingsWriter) *AdminService {
	return &AdminService{engine: newEngine(deps), writer: writer}
}

// UpdateFeeSchedule sets the global fees for a ticket type.
func (s *AdminService) UpdateFeeSchedule(ctx context.Context, actor domain.Actor, t domain.TicketType, fees domain.FeeSchedule) error {
	if err := Authorize(actor, OpManageSettings); err != nil {
		return err
	}
	if !t.Valid() {
		return apperrors.NewValidationError("invalid ticket type", map[string]any{"type": t})
	}
	if fees.TicketFee < 0 || fees.TransportFee < 0 {
		return apperrors.NewValidationError("fees must not be negative", nil)
	}
	if err := s.writer.SetFeeSchedule(ctx, t, fees); err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Info("fee schedule updated", zap.String("type", string(t)),
		zap.Stringer("ticket_fee", fees.TicketFee), zap.Stringer("transport_fee", fees.TransportFee))
	return nil
}

// UpdateDispatchRatio sets the maintenance:installation cycle.
func (s *AdminService) UpdateDispatchRatio(ctx context.Context, actor domain.Actor, ratio domain.DispatchRatio) error {
	if err := Authorize(actor, OpManageSettings); err != nil {
		return err
	}
	if ratio.Maintenance < 0 || ratio.Installation < 0 || ratio.Maintenance+ratio.Installation == 0 {
		return apperrors.NewValidationError("ratio values must be non-negative with a positive sum", nil)
	}
	if err := s.writer.SetDispatchRatio(ctx, ratio); err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Info("dispatch ratio updated", zap.Int("maintenance", ratio.Maintenance), zap.Int("installation", ratio.Installation))
	return nil
}

// SetTechnicianFee stores a per-technician fee override.
func (s *AdminService) SetTechnicianFee(ctx context.Context, actor domain.Actor, fee domain.TechnicianFee) error {
	if err := Authorize(actor, OpManageSettings); err != nil {
		return err
	}
	if !fee.TicketType.Valid() {
		return apperrors.NewValidationError("invalid ticket type", map[string]any{"type": fee.TicketType})
	}
	if fee.TicketFee < 0 || fee.TransportFee < 0 {
		return apperrors.NewValidationError("fees must not be negative", nil)
	}
	if _, err := s.technician(ctx, fee.TechnicianID); err != nil {
		return err
	}
	return apperrors.MapError(s.fees.Upsert(ctx, fee))
}

// CreateUser adds a directory entry.
func (s *AdminService) CreateUser(ctx context.Context, actor domain.Actor, input UserInput) (*domain.User, error) {
	if err := Authorize(actor, OpManageDirectory); err != nil {
		return nil, err
	}
	name, err := requireText("name", input.Name)
	if err != nil {
		return nil, err
	}
	switch input.Role {
	case domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleHelpdesk, domain.RoleTechnician:
	default:
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}
	if input.Role != domain.RoleTechnician && (input.BackboneSpecialist || input.VendorSpecialist || input.PrioritizeHomeMaintenance) {
		return nil, apperrors.NewValidationError("specialty flags apply to technicians only", nil)
	}
	user := &domain.User{
		ID:                        strings.TrimSpace(input.ID),
		Name:                      name,
		Role:                      input.Role,
		Active:                    true,
		BackboneSpecialist:        input.BackboneSpecialist,
		VendorSpecialist:          input.VendorSpecialist,
		PrioritizeHomeMaintenance: input.PrioritizeHomeMaintenance,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// ListTechnicians returns active technicians.
func (s *AdminService) ListTechnicians(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := Authorize(actor, OpViewTicket); err != nil {
		return nil, err
	}
	users, err := s.users.ListByRole(ctx, domain.RoleTechnician, true)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}
