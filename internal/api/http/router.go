package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/api-token-service/internal/api/http/handlers"
	"github.com/spec-kit/api-token-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Token          *handlers.TokenHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics is served at /metrics when set.
	Metrics nethttp.Handler
}

// RegisterRoutes wires HTTP routes. Everything under /api except the token
// endpoint itself sits behind the authorization gate.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group("/api")
	api.Post("/auth", cfg.Auth.Login)

	protected := api.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/token", cfg.Token.Show)
}
