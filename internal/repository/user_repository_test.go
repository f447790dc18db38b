package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/api-token-service/internal/domain"
)

func setupUserDirectory(t *testing.T) (UserDirectory, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewUserDirectory(mock), mock
}

func TestUserDirectoryFindByLoginNameOrEmail(t *testing.T) {
	dir, mock := setupUserDirectory(t)
	ctx := context.Background()
	now := time.Now()
	cols := []string{"id", "username", "email", "password_hash", "status", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(username)=lower($1) OR lower(email)=lower($1)")).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows(cols).AddRow("u1", "alice", "alice@example.test", "hash", domain.UserStatusActive, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("broken").
		WillReturnError(errors.New("db down"))

	user, err := dir.FindByLoginNameOrEmail(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, domain.UserStatusActive, user.Status)

	user, err = dir.FindByLoginNameOrEmail(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, user)

	_, err = dir.FindByLoginNameOrEmail(ctx, "broken")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDirectoryVerifyPassword(t *testing.T) {
	dir, _ := setupUserDirectory(t)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &domain.User{ID: "u1", PasswordHash: string(hash)}

	ok, err := dir.VerifyPassword(ctx, user, "correct")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.VerifyPassword(ctx, user, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = dir.VerifyPassword(ctx, &domain.User{ID: "u2"}, "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = dir.VerifyPassword(ctx, &domain.User{ID: "u3", PasswordHash: "not-a-bcrypt-hash"}, "x")
	assert.Error(t, err)
}

func TestUserDirectoryGroupsAndPermissions(t *testing.T) {
	dir, mock := setupUserDirectory(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_groups g")).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"handle"}).AddRow("apiAccess").AddRow("editors"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_permissions")).
		WithArgs("u1", "jwt-use-api").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	groups, err := dir.GroupMembership(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"apiAccess", "editors"}, groups)

	ok, err := dir.HasPermission(ctx, "u1", "jwt-use-api")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
