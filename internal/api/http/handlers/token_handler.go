package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/api-token-service/internal/api/dto"
	"github.com/spec-kit/api-token-service/internal/auth"
	"github.com/spec-kit/api-token-service/internal/domain"
)

// TokenHandler reports on the caller's own token.
type TokenHandler struct{}

// NewTokenHandler constructs handler.
func NewTokenHandler() *TokenHandler {
	return &TokenHandler{}
}

// Show handles GET /api/token.
func (h *TokenHandler) Show(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Token == nil {
		return domain.ErrMissingToken
	}
	return c.JSON(dto.TokenInfoResponse{
		UID:       principal.UserID,
		Email:     principal.Token.Email,
		ExpiresAt: principal.Token.ExpiresAt,
	})
}
