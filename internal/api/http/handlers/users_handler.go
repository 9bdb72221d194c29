package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/dispatch-service/internal/api/dto"
	"github.com/fieldops/dispatch-service/internal/auth"
	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/repository"
	"github.com/fieldops/dispatch-service/internal/service"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

// UsersHandler exposes the user directory and token issuance.
type UsersHandler struct {
	admin  *service.AdminService
	users  repository.UserRepository
	tokens *auth.TokenManager
}

// NewUsersHandler constructs handler.
func NewUsersHandler(adminService *service.AdminService, users repository.UserRepository, tokens *auth.TokenManager) *UsersHandler {
	return &UsersHandler{admin: adminService, users: users, tokens: tokens}
}

// Create handles POST /admin/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.admin.CreateUser(c.UserContext(), auth.ActorFromContext(c), service.UserInput{
		ID:                        req.ID,
		Name:                      req.Name,
		Role:                      req.Role,
		BackboneSpecialist:        req.BackboneSpecialist,
		VendorSpecialist:          req.VendorSpecialist,
		PrioritizeHomeMaintenance: req.PrioritizeHomeMaintenance,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

// ListTechnicians handles GET /technicians.
func (h *UsersHandler) ListTechnicians(c *fiber.Ctx) error {
	users, err := h.admin.ListTechnicians(c.UserContext(), auth.ActorFromContext(c))
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, userResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// IssueToken handles POST /admin/users/:id/token. Logins live outside this service, so
// administrators mint bearer tokens for directory entries here.
func (h *UsersHandler) IssueToken(c *fiber.Ctx) error {
	if err := service.Authorize(auth.ActorFromContext(c), service.OpManageDirectory); err != nil {
		return err
	}
	user, err := h.users.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NewNotFound("user", map[string]any{"user_id": c.Params("id")})
		}
		return apperrors.MapError(err)
	}
	if !user.Active {
		return apperrors.NewBusinessRule("user is inactive", map[string]any{"user_id": user.ID})
	}
	token, exp, err := h.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": userResponse(user),
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:                        user.ID,
		Name:                      user.Name,
		Role:                      user.Role,
		Active:                    user.Active,
		BackboneSpecialist:        user.BackboneSpecialist,
		VendorSpecialist:          user.VendorSpecialist,
		PrioritizeHomeMaintenance: user.PrioritizeHomeMaintenance,
	}
}
