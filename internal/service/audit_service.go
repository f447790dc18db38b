package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/api-token-service/internal/events"
)

// AuditService writes token lifecycle and access events to the log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{dispatcher: dispatcher, logger: logger.Named("audit")}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTokenIssued, a.handleTokenIssued)
	a.dispatcher.Subscribe(events.EventTokenReused, a.handleTokenReused)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.handleLoginFailed)
	a.dispatcher.Subscribe(events.EventAccessDenied, a.handleAccessDenied)
}

func (a *AuditService) handleTokenIssued(_ context.Context, event events.Event) error {
	p, _ := event.Payload.(events.TokenIssuedPayload)
	a.logger.Info("TokenIssued",
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("token_id", p.TokenID),
		zap.String("fingerprint", p.Fingerprint),
		zap.Time("expires_at", p.ExpiresAt))
	return nil
}

func (a *AuditService) handleTokenReused(_ context.Context, event events.Event) error {
	p, _ := event.Payload.(events.TokenReusedPayload)
	a.logger.Info("TokenReused",
		zap.String("event_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("fingerprint", p.Fingerprint),
		zap.Bool("expired", p.Expired))
	return nil
}

func (a *AuditService) handleLoginFailed(_ context.Context, event events.Event) error {
	p, _ := event.Payload.(events.LoginFailedPayload)
	a.logger.Info("LoginFailed",
		zap.String("event_id", event.ID),
		zap.String("login_name", p.LoginName))
	return nil
}

func (a *AuditService) handleAccessDenied(_ context.Context, event events.Event) error {
	p, _ := event.Payload.(events.AccessDeniedPayload)
	a.logger.Info("AccessDenied",
		zap.String("event_id", event.ID),
		zap.String("reason", p.Reason),
		zap.String("detail", p.Detail),
		zap.String("fingerprint", p.Fingerprint))
	return nil
}
