package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/api-token-service/internal/auth"
	"github.com/spec-kit/api-token-service/internal/config"
	"github.com/spec-kit/api-token-service/internal/domain"
	"github.com/spec-kit/api-token-service/internal/repository"
)

const (
	testSecret = "service-test-secret"
	testIssuer = "https://cms.example.test"
)

type memoryDirectory struct {
	users       map[string]*domain.User
	passwords   map[string]string
	groups      map[string][]string
	permissions map[string][]string
	err         error
}

func newMemoryDirectory(t *testing.T) *memoryDirectory {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)
	alice := &domain.User{ID: "alice-id", Username: "alice", Email: "alice@example.test", PasswordHash: string(hash), Status: domain.UserStatusActive}
	mallory := &domain.User{ID: "mallory-id", Username: "mallory", Email: "mallory@example.test", PasswordHash: string(hash), Status: domain.UserStatusSuspended}
	return &memoryDirectory{
		users:       map[string]*domain.User{"alice": alice, "alice@example.test": alice, "mallory": mallory},
		groups:      map[string][]string{"alice-id": {"apiAccess"}},
		permissions: map[string][]string{"alice-id": {"jwt-use-api"}},
	}
}

func (m *memoryDirectory) FindByLoginNameOrEmail(_ context.Context, name string) (*domain.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[name], nil
}

func (m *memoryDirectory) VerifyPassword(_ context.Context, user *domain.User, password string) (bool, error) {
	return auth.ComparePassword(user.PasswordHash, password) == nil, nil
}

func (m *memoryDirectory) GroupMembership(_ context.Context, userID string) ([]string, error) {
	return m.groups[userID], nil
}

func (m *memoryDirectory) HasPermission(_ context.Context, userID, permission string) (bool, error) {
	for _, p := range m.permissions[userID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

func testConfig() config.Config {
	jwt := config.JWTConfig{SecretKey: testSecret, Issuer: testIssuer, Audience: testIssuer}
	return config.Config{
		JWT:  jwt.WithOffsets(0, time.Hour),
		Auth: config.AuthConfig{APIGroup: "apiAccess", APIPermission: "jwt-use-api"},
	}
}

type fixture struct {
	cfg    config.Config
	codec  *auth.Codec
	store  repository.TokenStore
	dir    *memoryDirectory
	issuer *TokenIssuer
	auth   *AuthService
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	f := &fixture{
		cfg:   cfg,
		codec: auth.NewCodec(cfg.JWT.SecretKey, cfg.JWT.Issuer),
		store: repository.NewMemoryTokenStore(),
		dir:   newMemoryDirectory(t),
	}
	f.issuer = NewTokenIssuer(cfg, IssuerDependencies{Store: f.store, Codec: f.codec, Logger: zap.NewNop()})
	f.auth = NewAuthService(AuthDependencies{Users: f.dir, Issuer: f.issuer})
	return f
}

func TestLoginIssuesThenReusesToken(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	first, err := f.auth.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	tok, err := f.codec.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, "alice-id", tok.SubjectID)
	assert.Equal(t, "alice@example.test", tok.Email)
	assert.Equal(t, testIssuer, tok.Audience)
	assert.NotEmpty(t, tok.TokenID)
	assert.False(t, tok.IssuedAt.After(tok.NotBefore))
	assert.True(t, tok.NotBefore.Before(tok.ExpiresAt))

	second, err := f.auth.Login(ctx, "alice@example.test", "correct")
	require.NoError(t, err)
	assert.Equal(t, first, second, "a second login returns the stored token")

	rec, err := f.store.Find(ctx, "alice-id")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, first, rec.Token)
	assert.True(t, rec.ExpirationDate.Equal(tok.ExpiresAt))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	cases := []struct{ login, password string }{
		{"alice", "wrong"},
		{"nobody", "correct"},
		{"mallory", "correct"},
		{"", "correct"},
		{"alice", ""},
	}
	for _, c := range cases {
		_, err := f.auth.Login(ctx, c.login, c.password)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials, "%s/%s", c.login, c.password)
	}

	rec, err := f.store.Find(ctx, "alice-id")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLoginPropagatesDirectoryErrors(t *testing.T) {
	f := newFixture(t, testConfig())
	f.dir.err = errors.New("directory unavailable")

	_, err := f.auth.Login(context.Background(), "alice", "correct")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestIssuerMissingExpiryConfiguration(t *testing.T) {
	cfg := testConfig()
	cfg.JWT = config.JWTConfig{SecretKey: testSecret, Issuer: testIssuer, Audience: testIssuer}
	f := newFixture(t, cfg)

	_, err := f.auth.Login(context.Background(), "alice", "correct")
	assert.ErrorIs(t, err, domain.ErrMissingExpiryConfiguration)

	rec, err := f.store.Find(context.Background(), "alice-id")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIssuerSelfCheckFailureIsNotPersisted(t *testing.T) {
	f := newFixture(t, testConfig())
	f.issuer.codec = auth.NewCodec(testSecret, "https://someone-else.test")

	_, err := f.issuer.IssueOrReuse(context.Background(), f.dir.users["alice"])
	assert.ErrorIs(t, err, domain.ErrIssuanceFailed)

	rec, err := f.store.Find(context.Background(), "alice-id")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

type failingStore struct {
	repository.TokenStore
}

func (failingStore) Insert(context.Context, string, string, time.Time) (*domain.StoredToken, bool, error) {
	return nil, false, errors.New("disk full")
}

func TestIssuerPropagatesPersistenceErrors(t *testing.T) {
	f := newFixture(t, testConfig())
	f.issuer.store = failingStore{TokenStore: repository.NewMemoryTokenStore()}

	_, err := f.issuer.IssueOrReuse(context.Background(), f.dir.users["alice"])
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestIssuerRejectsUserWithoutID(t *testing.T) {
	f := newFixture(t, testConfig())
	_, err := f.issuer.IssueOrReuse(context.Background(), &domain.User{})
	assert.ErrorIs(t, err, domain.ErrIssuanceFailed)
}

// A stored record is reused as-is even after it expired; the gate is what
// refuses the token afterwards.
func TestIssuerReusesExpiredTokenAndGateDeniesIt(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	past := time.Now().Add(-3 * time.Hour)
	f.issuer.now = func() time.Time { return past }

	first, err := f.auth.Login(ctx, "alice", "correct")
	require.NoError(t, err)

	f.issuer.now = time.Now
	again, err := f.auth.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = f.codec.Parse(again)
	require.NoError(t, err, "the codec does not check expiry")

	gate := auth.NewGate(f.codec, f.store, f.dir, auth.GateConfig{Permission: "jwt-use-api", Group: "apiAccess"})
	d, err := gate.Authorize(ctx, "Bearer "+again)
	require.NoError(t, err)
	assert.Equal(t, auth.DenyInvalidToken, d.Reason)
}

func TestIssuerReissuesExpiredTokenWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.ReissueExpired = true
	f := newFixture(t, cfg)
	ctx := context.Background()

	f.issuer.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	first, err := f.auth.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	before, err := f.store.Find(ctx, "alice-id")
	require.NoError(t, err)

	f.issuer.now = time.Now
	second, err := f.auth.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	after, err := f.store.Find(ctx, "alice-id")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID, "regeneration overwrites the same record")
	assert.Equal(t, second, after.Token)

	gate := auth.NewGate(f.codec, f.store, f.dir, auth.GateConfig{Permission: "jwt-use-api", Group: "apiAccess"})
	d, err := gate.Authorize(ctx, "Bearer "+second)
	require.NoError(t, err)
	assert.True(t, d.Allowed())
}

func TestConcurrentFirstLoginsStoreOneRecord(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	const n = 32
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := f.auth.Login(ctx, "alice", "correct")
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	rec, err := f.store.Find(ctx, "alice-id")
	require.NoError(t, err)
	require.NotNil(t, rec)
	for _, tok := range tokens {
		assert.Equal(t, rec.Token, tok)
	}
}

func TestGateAllowsFreshLoginAndDeniesAfterRevocation(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	gate := auth.NewGate(f.codec, f.store, f.dir, auth.GateConfig{Permission: "jwt-use-api", Group: "apiAccess"})

	tok, err := f.auth.Login(ctx, "alice", "correct")
	require.NoError(t, err)

	d, err := gate.Authorize(ctx, "Bearer "+tok)
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, "alice-id", d.UserID)

	deleted, err := f.store.Delete(ctx, "alice-id")
	require.NoError(t, err)
	require.True(t, deleted)

	d, err = gate.Authorize(ctx, "Bearer "+tok)
	require.NoError(t, err)
	assert.Equal(t, auth.DenyTokenNotFound, d.Reason)
}

// syncedStore holds every Find until all replicas have read, so each of them
// decides on the same empty (or stale) view of the store.
type syncedStore struct {
	repository.TokenStore
	arrived *sync.WaitGroup
}

func (s syncedStore) Find(ctx context.Context, userID string) (*domain.StoredToken, error) {
	rec, err := s.TokenStore.Find(ctx, userID)
	s.arrived.Done()
	s.arrived.Wait()
	return rec, err
}

// replicas builds n issuers that share a store but not a process, as
// separate service instances would.
func replicas(t *testing.T, cfg config.Config, shared repository.TokenStore, n int) []*TokenIssuer {
	t.Helper()
	arrived := &sync.WaitGroup{}
	arrived.Add(n)
	out := make([]*TokenIssuer, n)
	for r := range out {
		out[r] = NewTokenIssuer(cfg, IssuerDependencies{
			Store:  syncedStore{TokenStore: shared, arrived: arrived},
			Codec:  auth.NewCodec(cfg.JWT.SecretKey, cfg.JWT.Issuer),
			Logger: zap.NewNop(),
		})
	}
	return out
}

func issueInParallel(t *testing.T, issuers []*TokenIssuer, user *domain.User) []string {
	t.Helper()
	tokens := make([]string, len(issuers))
	var wg sync.WaitGroup
	for r, issuer := range issuers {
		wg.Add(1)
		go func(r int, issuer *TokenIssuer) {
			defer wg.Done()
			tok, err := issuer.IssueOrReuse(context.Background(), user)
			assert.NoError(t, err)
			tokens[r] = tok
		}(r, issuer)
	}
	wg.Wait()
	return tokens
}

func TestReplicasRacingFirstLoginReturnTheStoredToken(t *testing.T) {
	cfg := testConfig()
	dir := newMemoryDirectory(t)
	shared := repository.NewMemoryTokenStore()
	gate := auth.NewGate(auth.NewCodec(testSecret, testIssuer), shared, dir, auth.GateConfig{Permission: "jwt-use-api", Group: "apiAccess"})

	tokens := issueInParallel(t, replicas(t, cfg, shared, 2), dir.users["alice"])
	require.NotEmpty(t, tokens[0])
	assert.Equal(t, tokens[0], tokens[1])

	for r, tok := range tokens {
		d, err := gate.Authorize(context.Background(), "Bearer "+tok)
		require.NoError(t, err)
		assert.True(t, d.Allowed(), "replica %d got a token the gate rejects: %s", r, d.Reason)
	}
}

func TestReplicasRacingReissueReturnTheStoredToken(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.ReissueExpired = true
	dir := newMemoryDirectory(t)
	shared := repository.NewMemoryTokenStore()
	_, _, err := shared.Insert(context.Background(), "alice-id", "expired-token", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	tokens := issueInParallel(t, replicas(t, cfg, shared, 2), dir.users["alice"])
	require.NotEmpty(t, tokens[0])
	assert.NotEqual(t, "expired-token", tokens[0])
	assert.Equal(t, tokens[0], tokens[1])

	rec, err := shared.Find(context.Background(), "alice-id")
	require.NoError(t, err)
	assert.Equal(t, tokens[0], rec.Token)
}

// blockingStore parks Find until released and records the context state it
// resumed with.
type blockingStore struct {
	repository.TokenStore
	entered chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (b *blockingStore) Find(ctx context.Context, userID string) (*domain.StoredToken, error) {
	close(b.entered)
	<-b.release
	b.ctxErr <- ctx.Err()
	return b.TokenStore.Find(ctx, userID)
}

func TestIssuanceSurvivesCancelledInitiator(t *testing.T) {
	f := newFixture(t, testConfig())
	store := &blockingStore{
		TokenStore: f.store,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
		ctxErr:     make(chan error, 1),
	}
	f.issuer.store = store
	user := f.dir.users["alice"]

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.issuer.IssueOrReuse(ctx, user)
		done <- err
	}()

	<-store.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled, "the cancelled caller stops waiting")

	close(store.release)
	assert.NoError(t, <-store.ctxErr, "the shared issuance keeps running")

	require.Eventually(t, func() bool {
		rec, err := f.store.Find(context.Background(), user.ID)
		return err == nil && rec != nil
	}, time.Second, 10*time.Millisecond)
}
