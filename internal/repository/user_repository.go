package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/api-token-service/internal/auth"
	"github.com/spec-kit/api-token-service/internal/domain"
)

// UserDirectory is the host application's view of users, credentials,
// groups and permissions. The token service only reads from it.
type UserDirectory interface {
	// FindByLoginNameOrEmail returns nil when no user matches.
	FindByLoginNameOrEmail(ctx context.Context, loginName string) (*domain.User, error)
	VerifyPassword(ctx context.Context, user *domain.User, password string) (bool, error)
	// GroupMembership returns the handles of the groups the user belongs to.
	GroupMembership(ctx context.Context, userID string) ([]string, error)
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

type userDirectory struct {
	db DB
}

// NewUserDirectory returns a Postgres-backed implementation.
func NewUserDirectory(db DB) UserDirectory {
	return &userDirectory{db: db}
}

func (r *userDirectory) FindByLoginNameOrEmail(ctx context.Context, loginName string) (*domain.User, error) {
	const query = `
        SELECT id, username, email, password_hash, status, created_at, updated_at
        FROM users
        WHERE lower(username)=lower($1) OR lower(email)=lower($1)
        ORDER BY (lower(username)=lower($1)) DESC
        LIMIT 1`

	var user domain.User
	if err := r.db.QueryRow(ctx, query, loginName).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *userDirectory) VerifyPassword(_ context.Context, user *domain.User, password string) (bool, error) {
	if user == nil || user.PasswordHash == "" {
		return false, nil
	}
	err := auth.ComparePassword(user.PasswordHash, password)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, auth.ErrPasswordMismatch) {
		return false, nil
	}
	return false, fmt.Errorf("verify password: %w", err)
}

func (r *userDirectory) GroupMembership(ctx context.Context, userID string) ([]string, error) {
	const query = `
        SELECT g.handle
        FROM user_groups g
        JOIN user_group_members m ON m.group_id = g.id
        WHERE m.user_id=$1
        ORDER BY g.handle`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	handles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return handles, nil
}

func (r *userDirectory) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	const query = `
        SELECT EXISTS(
            SELECT 1 FROM user_permissions WHERE user_id=$1 AND permission=$2
        )`

	var ok bool
	if err := r.db.QueryRow(ctx, query, userID, permission).Scan(&ok); err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return ok, nil
}
