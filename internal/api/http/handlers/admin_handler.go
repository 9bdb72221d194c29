package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/dispatch-service/internal/api/dto"
	"github.com/fieldops/dispatch-service/internal/auth"
	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/observability"
	"github.com/fieldops/dispatch-service/internal/service"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// AdminHandler exposes settings, payouts and maintenance endpoints.
type AdminHandler struct {
	admin   *service.AdminService
	bonus   *service.BonusService
	tickets *service.TicketService
	metrics *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(admin *service.AdminService, bonus *service.BonusService, tickets *service.TicketService, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{admin: admin, bonus: bonus, tickets: tickets, metrics: metrics}
}

// UpdateFeeSchedule handles PUT /admin/settings/fees/:type.
func (h *AdminHandler) UpdateFeeSchedule(c *fiber.Ctx) error {
	var req dto.FeeScheduleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	fees := domain.FeeSchedule{TicketFee: req.TicketFee, TransportFee: req.TransportFee}
	if err := h.admin.UpdateFeeSchedule(c.UserContext(), auth.ActorFromContext(c), domain.TicketType(c.Params("type")), fees); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// UpdateDispatchRatio handles PUT /admin/settings/dispatch-ratio.
func (h *AdminHandler) UpdateDispatchRatio(c *fiber.Ctx) error {
	var req dto.DispatchRatioRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ratio := domain.DispatchRatio{Maintenance: req.Maintenance, Installation: req.Installation}
	if err := h.admin.UpdateDispatchRatio(c.UserContext(), auth.ActorFromContext(c), ratio); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// SetTechnicianFee handles PUT /admin/technicians/:id/fees.
func (h *AdminHandler) SetTechnicianFee(c *fiber.Ctx) error {
	var req dto.TechnicianFeeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	fee := domain.TechnicianFee{
		TechnicianID: c.Params("id"),
		TicketType:   domain.TicketType(req.TicketType),
		FeeSchedule:  domain.FeeSchedule{TicketFee: req.TicketFee, TransportFee: req.TransportFee},
	}
	if err := h.admin.SetTechnicianFee(c.UserContext(), auth.ActorFromContext(c), fee); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// RecalculateBonuses handles POST /admin/bonuses/recalculate.
func (h *AdminHandler) RecalculateBonuses(c *fiber.Ctx) error {
	var req dto.RecalculateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.bonus.Recalculate(c.UserContext(), auth.ActorFromContext(c), req.From, req.To)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// NormalizeLegacy handles POST /admin/maintenance/normalize-legacy.
func (h *AdminHandler) NormalizeLegacy(c *fiber.Ctx) error {
	changed, err := h.tickets.NormalizeLegacyStatuses(c.UserContext(), auth.ActorFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"tickets": changed}})
}

// ListPerformance handles GET /performance?user_id=&from=&to=. Technicians default to
// their own logs.
func (h *AdminHandler) ListPerformance(c *fiber.Ctx) error {
	actor := auth.ActorFromContext(c)
	userID := c.Query("user_id", actor.UserID)
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return apperrors.NewValidationError("from must be RFC3339 or YYYY-MM-DD", map[string]any{"from": c.Query("from")})
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return apperrors.NewValidationError("to must be RFC3339 or YYYY-MM-DD", map[string]any{"to": c.Query("to")})
	}
	logs, err := h.tickets.ListPerformance(c.UserContext(), actor, userID, from, to)
	if err != nil {
		return err
	}
	var total domain.Money
	for _, l := range logs {
		total += l.Bonus
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"user_id":     userID,
		"logs":        performanceResponses(logs),
		"total_bonus": total,
	}})
}

// Metrics handles GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	if err := service.Authorize(auth.ActorFromContext(c), service.OpManageSettings); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
