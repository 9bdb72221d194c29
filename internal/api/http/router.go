package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/dispatch-service/internal/api/http/handlers"
	"github.com/fieldops/dispatch-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Dispatch       *handlers.DispatchHandler
	Users          *handlers.UsersHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Per-operation role checks happen in the services.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	tickets := protected.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id/type", cfg.Tickets.ChangeType)
	tickets.Post("/:id/assignments", cfg.Tickets.Assign)
	tickets.Put("/:id/assignments", cfg.Tickets.Reassign)
	tickets.Delete("/:id/assignments", cfg.Tickets.Unassign)
	tickets.Post("/:id/start", cfg.Tickets.StartWork)
	tickets.Post("/:id/no-response", cfg.Tickets.ReportNoResponse)
	tickets.Post("/:id/reject", cfg.Tickets.ConfirmReject)
	tickets.Post("/:id/cancel-reject", cfg.Tickets.CancelReject)
	tickets.Post("/:id/close-by-helpdesk", cfg.Tickets.CloseByHelpdesk)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Post("/:id/reopen-rejected", cfg.Tickets.ReopenRejected)

	protected.Post("/dispatch/next", cfg.Dispatch.Next)
	protected.Get("/technicians", cfg.Users.ListTechnicians)
	protected.Get("/performance", cfg.Admin.ListPerformance)

	admin := protected.Group("/admin")
	admin.Post("/users", cfg.Users.Create)
	admin.Post("/users/:id/token", cfg.Users.IssueToken)
	admin.Put("/settings/fees/:type", cfg.Admin.UpdateFeeSchedule)
	admin.Put("/settings/dispatch-ratio", cfg.Admin.UpdateDispatchRatio)
	admin.Put("/technicians/:id/fees", cfg.Admin.SetTechnicianFee)
	admin.Post("/bonuses/recalculate", cfg.Admin.RecalculateBonuses)
	admin.Post("/maintenance/normalize-legacy", cfg.Admin.NormalizeLegacy)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
