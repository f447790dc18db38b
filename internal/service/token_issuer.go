package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/api-token-service/internal/auth"
	"github.com/spec-kit/api-token-service/internal/config"
	"github.com/spec-kit/api-token-service/internal/domain"
	"github.com/spec-kit/api-token-service/internal/events"
	"github.com/spec-kit/api-token-service/internal/observability"
	"github.com/spec-kit/api-token-service/internal/repository"
)

const issueFlightTimeout = 15 * time.Second

// TokenIssuer hands out the single live token of a user, minting it on first use.
type TokenIssuer struct {
	store          repository.TokenStore
	codec          *auth.Codec
	jwt            config.JWTConfig
	reissueExpired bool
	dispatcher     events.Dispatcher
	metrics        *observability.Metrics
	logger         *zap.Logger
	now            func() time.Time
	flights        singleflight.Group
}

// IssuerDependencies encapsulates collaborators of the issuer.
type IssuerDependencies struct {
	Store      repository.TokenStore
	Codec      *auth.Codec
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewTokenIssuer builds the issuer.
func NewTokenIssuer(cfg config.Config, deps IssuerDependencies) *TokenIssuer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenIssuer{
		store:          deps.Store,
		codec:          deps.Codec,
		jwt:            cfg.JWT,
		reissueExpired: cfg.Auth.ReissueExpired,
		dispatcher:     deps.Dispatcher,
		metrics:        deps.Metrics,
		logger:         logger,
		now:            time.Now,
	}
}

// IssueOrReuse returns the user's stored token if there is one and otherwise
// mints, self-checks and stores a new one.
//
// A stored token is returned without looking at its expiry, so a user whose
// record has expired keeps receiving the same dead token until the record is
// deleted. Set AUTH_REISSUE_EXPIRED to regenerate such records instead.
func (i *TokenIssuer) IssueOrReuse(ctx context.Context, user *domain.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("%w: user without id", domain.ErrIssuanceFailed)
	}
	// Concurrent logins of one user share a single find-or-mint. The shared
	// call is detached from whichever caller started it; each caller still
	// stops waiting when its own context ends.
	ch := i.flights.DoChan(user.ID, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), issueFlightTimeout)
		defer cancel()
		return i.issueOrReuse(flightCtx, user)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (i *TokenIssuer) issueOrReuse(ctx context.Context, user *domain.User) (string, error) {
	rec, err := i.store.Find(ctx, user.ID)
	if err != nil {
		return "", err
	}

	now := i.now().UTC().Truncate(time.Second)
	if rec != nil && rec.Token != "" {
		expired := rec.Expired(now)
		if !expired || !i.reissueExpired {
			if expired {
				i.logger.Warn("returning expired stored token", zap.String("user_id", user.ID), zap.Time("expired_at", rec.ExpirationDate))
			}
			return i.reuse(ctx, rec, expired), nil
		}
	}

	tok, raw, err := i.mint(user, now)
	if err != nil {
		return "", err
	}

	// Another process may have stored a token since Find. Its token wins and
	// ours is dropped unsaved, so every caller gets the token the gate knows.
	var (
		stored  *domain.StoredToken
		written bool
	)
	if rec == nil {
		stored, written, err = i.store.Insert(ctx, user.ID, raw, tok.ExpiresAt)
	} else {
		stored, written, err = i.store.Replace(ctx, user.ID, rec.Token, raw, tok.ExpiresAt)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		return "", err
	}
	if !written {
		i.logger.Debug("concurrent login stored a token first", zap.String("user_id", user.ID))
		return i.reuse(ctx, stored, stored.Expired(now)), nil
	}

	i.metrics.RecordIssuance("issued")
	i.publish(ctx, events.Event{
		Type:   events.EventTokenIssued,
		UserID: user.ID,
		Payload: events.TokenIssuedPayload{
			TokenID:     tok.TokenID,
			ExpiresAt:   tok.ExpiresAt,
			Fingerprint: observability.Fingerprint(raw),
		},
	})
	return raw, nil
}

func (i *TokenIssuer) reuse(ctx context.Context, rec *domain.StoredToken, expired bool) string {
	i.metrics.RecordIssuance("reused")
	i.publish(ctx, events.Event{
		Type:   events.EventTokenReused,
		UserID: rec.UserID,
		Payload: events.TokenReusedPayload{
			ExpiresAt:   rec.ExpirationDate,
			Expired:     expired,
			Fingerprint: observability.Fingerprint(rec.Token),
		},
	})
	return rec.Token
}

// mint builds, signs and self-checks a new token. Nothing is stored here.
func (i *TokenIssuer) mint(user *domain.User, now time.Time) (domain.Token, string, error) {
	notBefore, expire, ok := i.jwt.Offsets()
	if !ok {
		return domain.Token{}, "", domain.ErrMissingExpiryConfiguration
	}

	tok := domain.Token{
		SubjectID: user.ID,
		Email:     user.Email,
		Issuer:    i.jwt.Issuer,
		Audience:  i.jwt.Audience,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		NotBefore: now.Add(notBefore),
		ExpiresAt: now.Add(expire),
	}
	raw, err := i.codec.Encode(tok)
	if err != nil {
		return domain.Token{}, "", fmt.Errorf("%w: %w", domain.ErrIssuanceFailed, err)
	}
	if _, err := i.codec.Parse(raw); err != nil {
		i.logger.Error("minted token failed self-check", zap.String("user_id", user.ID), zap.Error(err))
		return domain.Token{}, "", fmt.Errorf("%w: self-check: %w", domain.ErrIssuanceFailed, err)
	}
	return tok, raw, nil
}

func (i *TokenIssuer) publish(ctx context.Context, event events.Event) {
	if i.dispatcher == nil {
		return
	}
	if err := i.dispatcher.Publish(ctx, event); err != nil {
		i.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
