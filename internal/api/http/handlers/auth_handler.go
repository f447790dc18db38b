package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/api-token-service/internal/api/dto"
	apperrors "github.com/spec-kit/api-token-service/pkg/util"
)

// Authenticator exchanges credentials for an API token.
type Authenticator interface {
	Login(ctx context.Context, loginName, password string) (string, error)
}

// AuthHandler exposes the token endpoint.
type AuthHandler struct {
	auth Authenticator
}

// NewAuthHandler constructs handler.
func NewAuthHandler(auth Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login handles POST /api/auth.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	token, err := h.auth.Login(c.UserContext(), req.LoginName, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.LoginResponse{Token: token})
}
