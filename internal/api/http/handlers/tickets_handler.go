package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/dispatch-service/internal/api/dto"
	"github.com/fieldops/dispatch-service/internal/auth"
	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/service"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// TicketsHandler exposes ticket creation, reads and every lifecycle transition.
type TicketsHandler struct {
	tickets   *service.TicketService
	assign    *service.AssignmentService
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assign *service.AssignmentService, lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assign: assign, lifecycle: lifecycle}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), auth.ActorFromContext(c), service.TicketCreateInput{
		Type:     req.Type,
		Priority: req.Priority,
		Customer: domain.Customer{
			Name:    req.Customer.Name,
			Phone:   req.Customer.Phone,
			Address: req.Customer.Address,
		},
		LocationRef: req.LocationRef,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	details, err := h.tickets.GetTicket(c.UserContext(), auth.ActorFromContext(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(details)})
}

// ChangeType PATCH /tickets/:id/type.
func (h *TicketsHandler) ChangeType(c *fiber.Ctx) error {
	var req dto.ChangeTypeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.ChangeType(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Type)
	return respondTicket(c, ticket, err)
}

// Assign POST /tickets/:id/assignments.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.assign.ManualAssign(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.TechnicianID)
	return respondTicket(c, ticket, err)
}

// Reassign PUT /tickets/:id/assignments.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	var req dto.TeamRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.assign.Reassign(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.TechnicianIDs)
	return respondTicket(c, ticket, err)
}

// Unassign DELETE /tickets/:id/assignments.
func (h *TicketsHandler) Unassign(c *fiber.Ctx) error {
	ticket, err := h.assign.Unassign(c.UserContext(), auth.ActorFromContext(c), c.Params("id"))
	return respondTicket(c, ticket, err)
}

// StartWork POST /tickets/:id/start.
func (h *TicketsHandler) StartWork(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.StartWork(c.UserContext(), auth.ActorFromContext(c), c.Params("id"))
	return respondTicket(c, ticket, err)
}

// ReportNoResponse POST /tickets/:id/no-response.
func (h *TicketsHandler) ReportNoResponse(c *fiber.Ctx) error {
	var req dto.ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.ReportNoResponse(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Reason)
	return respondTicket(c, ticket, err)
}

// ConfirmReject POST /tickets/:id/reject.
func (h *TicketsHandler) ConfirmReject(c *fiber.Ctx) error {
	var req dto.ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.ConfirmReject(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Reason)
	return respondTicket(c, ticket, err)
}

// CancelReject POST /tickets/:id/cancel-reject.
func (h *TicketsHandler) CancelReject(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.CancelReject(c.UserContext(), auth.ActorFromContext(c), c.Params("id"))
	return respondTicket(c, ticket, err)
}

// CloseByHelpdesk POST /tickets/:id/close-by-helpdesk.
func (h *TicketsHandler) CloseByHelpdesk(c *fiber.Ctx) error {
	var req dto.ReasonRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.CloseByHelpdesk(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Reason)
	return respondTicket(c, ticket, err)
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	var req dto.CloseRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.Close(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.CloseInput{
		ActionDescription: req.ActionDescription,
		SpeedtestRef:      req.SpeedtestRef,
		ProofRefs:         req.ProofRefs,
		Note:              req.Note,
	})
	return respondTicket(c, ticket, err)
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	var req dto.ReopenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.lifecycle.Reopen(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Reason, req.TechnicianIDs)
	return respondTicket(c, ticket, err)
}

// ReopenRejected POST /tickets/:id/reopen-rejected.
func (h *TicketsHandler) ReopenRejected(c *fiber.Ctx) error {
	var req dto.ReopenRejectedRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	mode := service.ReopenMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	ticket, err := h.lifecycle.ReopenRejected(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Reason, mode)
	return respondTicket(c, ticket, err)
}

func respondTicket(c *fiber.Ctx, ticket *domain.Ticket, err error) error {
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// parseBody decodes JSON, treating an empty body as an empty request.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func parseTime(val string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, val)
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	resp := dto.TicketResponse{
		ID:       ticket.ID,
		Code:     ticket.Code,
		Number:   ticket.Number,
		Type:     ticket.Type,
		Priority: ticket.Priority,
		Status:   ticket.Status,
		Customer: dto.CustomerPayload{
			Name:    ticket.Customer.Name,
			Phone:   ticket.Customer.Phone,
			Address: ticket.Customer.Address,
		},
		LocationRef:     ticket.LocationRef,
		Description:     ticket.Description,
		SLADeadline:     ticket.SLADeadline,
		StartedAt:       ticket.StartedAt,
		ClosedAt:        ticket.ClosedAt,
		DurationMinutes: ticket.DurationMinutes,
		PerformStatus:   ticket.PerformStatus,
		TicketFee:       ticket.TicketFee,
		TransportFee:    ticket.TransportFee,
		Bonus:           ticket.Bonus,
		RejectionReason: ticket.RejectionReason,
		ReopenReason:    ticket.ReopenReason,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
	}
	if ticket.Close.ActionDescription != "" {
		resp.Close = &dto.CloseRequest{
			ActionDescription: ticket.Close.ActionDescription,
			SpeedtestRef:      ticket.Close.SpeedtestRef,
			ProofRefs:         ticket.Close.ProofRefs,
			Note:              ticket.Close.Note,
		}
	}
	return resp
}

func ticketDetail(details *service.TicketDetails) dto.TicketDetailResponse {
	team := make([]dto.AssignmentResponse, 0, len(details.Team))
	for _, a := range details.Team {
		team = append(team, dto.AssignmentResponse{
			TechnicianID:   a.TechnicianID,
			AssignmentType: a.AssignmentType,
			AssignedAt:     a.AssignedAt,
		})
	}
	return dto.TicketDetailResponse{
		TicketResponse: ticketResponse(details.Ticket),
		Team:           team,
		History:        historyResponses(details.History),
		Payouts:        performanceResponses(details.Payouts),
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:          entry.ID,
			Operation:   entry.Operation,
			ChangedByID: entry.ChangedByID,
			OldStatus:   entry.OldStatus,
			NewStatus:   entry.NewStatus,
			Comment:     entry.Comment,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}

func performanceResponses(logs []domain.PerformanceLog) []dto.PerformanceLogResponse {
	resp := make([]dto.PerformanceLogResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, dto.PerformanceLogResponse{
			UserID:             l.UserID,
			TicketID:           l.TicketID,
			Result:             l.Result,
			CompletedWithinSLA: l.CompletedWithinSLA,
			DurationMinutes:    l.DurationMinutes,
			TicketFee:          l.TicketFee,
			TransportFee:       l.TransportFee,
			Bonus:              l.Bonus,
			CreatedAt:          l.CreatedAt,
		})
	}
	return resp
}
