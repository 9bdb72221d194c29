package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/dispatch-service/internal/api/dto"
	"github.com/fieldops/dispatch-service/internal/auth"
	"github.com/fieldops/dispatch-service/internal/dispatch"
	"github.com/fieldops/dispatch-service/internal/service"
)

// DispatchHandler lets a technician pull their next ticket.
type DispatchHandler struct {
	dispatch *service.DispatchService
}

// NewDispatchHandler constructs handler.
func NewDispatchHandler(dispatchService *service.DispatchService) *DispatchHandler {
	return &DispatchHandler{dispatch: dispatchService}
}

// Next POST /dispatch/next.
func (h *DispatchHandler) Next(c *fiber.Ctx) error {
	var req dto.AutoAssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.dispatch.AutoAssign(c.UserContext(), auth.ActorFromContext(c), service.AutoAssignInput{PartnerID: req.PartnerID})
	if err != nil {
		return err
	}
	resp := dto.DispatchResponse{
		Ticket:        ticketResponse(result.Ticket),
		Reason:        string(result.Reason),
		PreferredType: result.PreferredType,
		Team:          result.Team,
	}
	if result.Reason == dispatch.ReasonProximity {
		d := result.DistanceKm
		resp.DistanceKm = &d
	}
	return c.JSON(fiber.Map{"data": resp})
}
