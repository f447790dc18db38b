package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/api-token-service/internal/domain"
)

type tokenRepository struct {
	db DB
}

// NewTokenRepository returns a Postgres-backed TokenStore.
func NewTokenRepository(db DB) TokenStore {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Find(ctx context.Context, userID string) (*domain.StoredToken, error) {
	const query = `SELECT ` + tokenRecordColumns + ` FROM api_tokens WHERE user_id=$1`

	rec, err := scanTokenRecord(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find token: %w", domain.ErrPersistence, err)
	}
	return rec, nil
}

func (r *tokenRepository) ExistsByToken(ctx context.Context, token string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM api_tokens WHERE token=$1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: lookup token: %w", domain.ErrPersistence, err)
	}
	return exists, nil
}

const tokenRecordColumns = `id, user_id, token, expiration_date, created_at, updated_at`

// tokenWriteAttempts bounds the retries when the row vanishes between a lost
// write and the re-read (an administrative revoke in between).
const tokenWriteAttempts = 3

func scanTokenRecord(row pgx.Row) (*domain.StoredToken, error) {
	var rec domain.StoredToken
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Token,
		&rec.ExpirationDate,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert relies on the unique user_id index. A losing insert re-reads the
// winner in a fresh statement so the committed row is visible.
func (r *tokenRepository) Insert(ctx context.Context, userID, token string, expiresAt time.Time) (*domain.StoredToken, bool, error) {
	const query = `
        INSERT INTO api_tokens (user_id, token, expiration_date)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO NOTHING
        RETURNING ` + tokenRecordColumns

	for attempt := 0; attempt < tokenWriteAttempts; attempt++ {
		rec, err := scanTokenRecord(r.db.QueryRow(ctx, query, userID, token, expiresAt))
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("%w: insert token: %w", domain.ErrPersistence, err)
		}

		current, err := r.Find(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		if current != nil {
			return current, false, nil
		}
	}
	return nil, false, fmt.Errorf("%w: insert token: record for user %s keeps changing", domain.ErrPersistence, userID)
}

// Replace is a compare-and-swap on the token column; the row lock taken by
// UPDATE makes the WHERE clause see the latest committed token.
func (r *tokenRepository) Replace(ctx context.Context, userID, expected, token string, expiresAt time.Time) (*domain.StoredToken, bool, error) {
	const query = `
        UPDATE api_tokens
        SET token=$3, expiration_date=$4, updated_at=NOW()
        WHERE user_id=$1 AND token=$2
        RETURNING ` + tokenRecordColumns

	rec, err := scanTokenRecord(r.db.QueryRow(ctx, query, userID, expected, token, expiresAt))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("%w: replace token: %w", domain.ErrPersistence, err)
	}

	current, err := r.Find(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if current != nil {
		return current, false, nil
	}
	return r.Insert(ctx, userID, token, expiresAt)
}

func (r *tokenRepository) Delete(ctx context.Context, userID string) (bool, error) {
	const query = `DELETE FROM api_tokens WHERE user_id=$1`

	cmd, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("%w: delete token: %w", domain.ErrPersistence, err)
	}
	return cmd.RowsAffected() > 0, nil
}
