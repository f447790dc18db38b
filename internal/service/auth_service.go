package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/api-token-service/internal/domain"
	"github.com/spec-kit/api-token-service/internal/events"
	"github.com/spec-kit/api-token-service/internal/observability"
	"github.com/spec-kit/api-token-service/internal/repository"
)

// Issuer is what login needs from token issuance.
type Issuer interface {
	IssueOrReuse(ctx context.Context, user *domain.User) (string, error)
}

// AuthService coordinates the login flow.
type AuthService struct {
	users      repository.UserDirectory
	issuer     Issuer
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	Users      repository.UserDirectory
	Issuer     Issuer
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.Users,
		issuer:     deps.Issuer,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Login verifies the credentials and returns the user's API token. Unknown
// users, suspended users and wrong passwords all yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, loginName, password string) (string, error) {
	loginName = strings.TrimSpace(loginName)
	if loginName == "" || password == "" {
		return "", s.reject(ctx, loginName)
	}

	user, err := s.users.FindByLoginNameOrEmail(ctx, loginName)
	if err != nil {
		s.metrics.RecordLogin("error")
		return "", err
	}
	if user == nil || user.Status == domain.UserStatusSuspended {
		return "", s.reject(ctx, loginName)
	}

	ok, err := s.users.VerifyPassword(ctx, user, password)
	if err != nil {
		s.metrics.RecordLogin("error")
		return "", err
	}
	if !ok {
		return "", s.reject(ctx, loginName)
	}

	token, err := s.issuer.IssueOrReuse(ctx, user)
	if err != nil {
		s.metrics.RecordLogin("error")
		return "", err
	}
	s.metrics.RecordLogin("success")
	return token, nil
}

func (s *AuthService) reject(ctx context.Context, loginName string) error {
	s.metrics.RecordLogin("invalid_credentials")
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:    events.EventLoginFailed,
			Payload: events.LoginFailedPayload{LoginName: loginName},
		})
	}
	return domain.ErrInvalidCredentials
}
