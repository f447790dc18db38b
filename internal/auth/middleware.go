package auth

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/api-token-service/internal/domain"
	"github.com/spec-kit/api-token-service/internal/events"
	"github.com/spec-kit/api-token-service/internal/observability"
	apperrors "github.com/spec-kit/api-token-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	UserID string
	Token  *domain.Token
}

// AuthMiddleware adapts the Gate to fiber: deny stops the chain with 401.
type AuthMiddleware struct {
	gate       *Gate
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuthMiddleware constructs middleware. dispatcher and metrics may be nil.
func NewAuthMiddleware(gate *Gate, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{gate: gate, dispatcher: dispatcher, metrics: metrics, logger: logger}
}

// Handle enforces authorization for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	decision, err := m.gate.Authorize(c.UserContext(), header)
	if err != nil {
		m.metrics.RecordDecision("error")
		return apperrors.NewInternalError(err)
	}

	if !decision.Allowed() {
		m.metrics.RecordDecision(string(decision.Reason))
		m.logger.Debug("access denied",
			zap.String("reason", string(decision.Reason)),
			zap.String("detail", decision.Detail),
			zap.String("path", c.Path()))
		if m.dispatcher != nil {
			_ = m.dispatcher.Publish(c.UserContext(), events.Event{
				Type: events.EventAccessDenied,
				Payload: events.AccessDeniedPayload{
					Reason:      string(decision.Reason),
					Detail:      decision.Detail,
					Fingerprint: observability.Fingerprint(BearerToken(header)),
				},
			})
		}
		return apperrors.ToDomainError(decision.Err())
	}

	m.metrics.RecordDecision("allow")
	c.Locals(principalKey, &Principal{UserID: decision.UserID, Token: decision.Token})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
