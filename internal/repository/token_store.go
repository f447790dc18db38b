package repository

import (
	"context"
	"time"

	"github.com/spec-kit/api-token-service/internal/domain"
)

// TokenStore persists at most one token record per user.
//
// Writes never blindly overwrite: concurrent logins of one user, in this
// process or another, all end up returning the token that was stored.
type TokenStore interface {
	// Find returns the user's record, or nil when there is none.
	Find(ctx context.Context, userID string) (*domain.StoredToken, error)
	ExistsByToken(ctx context.Context, token string) (bool, error)
	// Insert stores the user's first record. When a record already exists it
	// is left untouched and returned with created=false.
	Insert(ctx context.Context, userID, token string, expiresAt time.Time) (rec *domain.StoredToken, created bool, err error)
	// Replace overwrites the user's token in place, but only while the stored
	// token still equals expected. Otherwise the current record is returned
	// with replaced=false. A missing record is inserted.
	Replace(ctx context.Context, userID, expected, token string, expiresAt time.Time) (rec *domain.StoredToken, replaced bool, err error)
	// Delete removes the user's record. It reports whether one existed.
	Delete(ctx context.Context, userID string) (bool, error)
}
