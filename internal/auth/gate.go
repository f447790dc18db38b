package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spec-kit/api-token-service/internal/domain"
)

// TokenLookup reports whether a token is currently stored.
type TokenLookup interface {
	ExistsByToken(ctx context.Context, token string) (bool, error)
}

// PermissionSource is the read-only part of the user directory the gate needs.
type PermissionSource interface {
	GroupMembership(ctx context.Context, userID string) ([]string, error)
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// DenyReason classifies a refused request.
type DenyReason string

const (
	DenyMissingToken  DenyReason = "missing_token"
	DenyTokenNotFound DenyReason = "token_not_found"
	DenyInvalidToken  DenyReason = "invalid_token"
	DenyForbidden     DenyReason = "forbidden"
)

// Decision is the outcome of Gate.Authorize. The zero value denies.
type Decision struct {
	UserID string
	Token  *domain.Token
	Reason DenyReason
	// Detail is for logs only and must never reach the client.
	Detail string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Reason == "" && d.UserID != ""
}

// Err returns the sentinel error matching a deny, or nil when allowed.
func (d Decision) Err() error {
	switch d.Reason {
	case "":
		if d.UserID == "" {
			return domain.ErrInvalidToken
		}
		return nil
	case DenyMissingToken:
		return domain.ErrMissingToken
	case DenyTokenNotFound:
		return domain.ErrTokenNotFound
	case DenyForbidden:
		return domain.ErrForbidden
	default:
		return domain.ErrInvalidToken
	}
}

func deny(reason DenyReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// GateConfig names the permission and group a user needs for API access.
type GateConfig struct {
	Permission string
	Group      string
}

// Gate makes the per-request authorization decision.
type Gate struct {
	codec     *Codec
	tokens    TokenLookup
	directory PermissionSource
	cfg       GateConfig
	now       func() time.Time
}

// NewGate constructs the gate.
func NewGate(codec *Codec, tokens TokenLookup, directory PermissionSource, cfg GateConfig) *Gate {
	return &Gate{codec: codec, tokens: tokens, directory: directory, cfg: cfg, now: time.Now}
}

// Authorize decides on a raw Authorization header value. A non-nil error
// means the decision could not be made; callers must treat it as a deny.
func (g *Gate) Authorize(ctx context.Context, header string) (Decision, error) {
	raw := BearerToken(header)
	if raw == "" {
		return deny(DenyMissingToken, "no bearer token"), nil
	}

	// Presence in the store is the revocation check: a deleted record kills
	// the token whatever its signature says.
	exists, err := g.tokens.ExistsByToken(ctx, raw)
	if err != nil {
		return Decision{}, err
	}
	if !exists {
		return deny(DenyTokenNotFound, "token not stored"), nil
	}

	tok, err := g.codec.Parse(raw)
	if err != nil {
		return deny(DenyInvalidToken, err.Error()), nil
	}

	if now := g.now(); !tok.ActiveAt(now) {
		if now.Before(tok.NotBefore) {
			return deny(DenyInvalidToken, "token not yet valid"), nil
		}
		return deny(DenyInvalidToken, "token expired"), nil
	}
	if tok.SubjectID == "" {
		return deny(DenyInvalidToken, "missing uid claim"), nil
	}

	allowed, err := g.permitted(ctx, tok.SubjectID)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		return deny(DenyForbidden, "missing api permission or group"), nil
	}
	return Decision{UserID: tok.SubjectID, Token: tok}, nil
}

// permitted requires both the API permission and membership of the API group.
func (g *Gate) permitted(ctx context.Context, userID string) (bool, error) {
	hasPermission, err := g.directory.HasPermission(ctx, userID, g.cfg.Permission)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	if !hasPermission {
		return false, nil
	}
	groups, err := g.directory.GroupMembership(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load groups: %w", err)
	}
	return slices.Contains(groups, g.cfg.Group), nil
}

// BearerToken strips the Bearer scheme and surrounding whitespace.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	const scheme = "bearer"
	if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		rest := header[len(scheme):]
		if rest == "" {
			return ""
		}
		if rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}
	return header
}
