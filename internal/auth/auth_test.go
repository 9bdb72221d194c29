package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/repository/memstore"
	apperrors "github.com/fieldops/dispatch-service/pkg/errorutil"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, exp, err := tm.GenerateToken("tech-a", domain.RoleTechnician)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tech-a", claims.Subject)
	assert.Equal(t, domain.RoleTechnician, claims.Role)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)

	_, err = tm.ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	tm.ttl = -time.Minute
	token, _, err := tm.GenerateToken("tech-a", domain.RoleTechnician)
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func newTestApp(t *testing.T) (*fiber.App, *TokenManager) {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Users().Create(ctx, &domain.User{ID: "tech-a", Name: "Agus", Role: domain.RoleTechnician, Active: true}))
	require.NoError(t, store.Users().Create(ctx, &domain.User{ID: "admin-1", Name: "Adi", Role: domain.RoleAdmin, Active: true}))
	require.NoError(t, store.Users().Create(ctx, &domain.User{ID: "gone", Name: "Gita", Role: domain.RoleAdmin, Active: false}))

	tm := NewTokenManager("secret", 5)
	mw := NewAuthMiddleware(tm, store.Users())
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		actor := ActorFromContext(c)
		return c.SendString(actor.UserID + ":" + string(actor.Role))
	})
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app, tm
}

func TestAuthMiddleware(t *testing.T) {
	app, tm := newTestApp(t)
	techToken, _, err := tm.GenerateToken("tech-a", domain.RoleTechnician)
	require.NoError(t, err)
	// role in the token is ignored in favour of the directory
	adminToken, _, err := tm.GenerateToken("admin-1", domain.RoleTechnician)
	require.NoError(t, err)
	goneToken, _, err := tm.GenerateToken("gone", domain.RoleAdmin)
	require.NoError(t, err)
	ghostToken, _, err := tm.GenerateToken("ghost", domain.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"missing header", "/me", "", http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"wrong scheme", "/me", "Basic " + techToken, http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"garbage token", "/me", "Bearer abc", http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"unknown user", "/me", "Bearer " + ghostToken, http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"inactive user", "/me", "Bearer " + goneToken, http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"technician", "/me", "Bearer " + techToken, http.StatusOK, "tech-a:technician"},
		{"directory role wins", "/me", "Bearer " + adminToken, http.StatusOK, "admin-1:admin"},
		{"role guard blocks", "/admin", "Bearer " + techToken, http.StatusForbidden, apperrors.CodeForbidden},
		{"role guard allows", "/admin", "bearer " + adminToken, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.body != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(body))
			}
		})
	}
}
