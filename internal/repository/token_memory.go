package repository

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/api-token-service/internal/domain"
)

type memoryTokenStore struct {
	mu      sync.RWMutex
	nextID  int64
	byUser  map[string]domain.StoredToken
	byToken map[string]string
	now     func() time.Time
}

// NewMemoryTokenStore returns a process-local TokenStore for development and tests.
func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{
		byUser:  make(map[string]domain.StoredToken),
		byToken: make(map[string]string),
		now:     time.Now,
	}
}

func (s *memoryTokenStore) Find(_ context.Context, userID string) (*domain.StoredToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byUser[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memoryTokenStore) ExistsByToken(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byToken[token]
	return ok, nil
}

func (s *memoryTokenStore) Insert(_ context.Context, userID, token string, expiresAt time.Time) (*domain.StoredToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byUser[userID]; ok {
		return &rec, false, nil
	}
	return s.storeLocked(userID, token, expiresAt), true, nil
}

func (s *memoryTokenStore) Replace(_ context.Context, userID, expected, token string, expiresAt time.Time) (*domain.StoredToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byUser[userID]; ok && rec.Token != expected {
		return &rec, false, nil
	}
	return s.storeLocked(userID, token, expiresAt), true, nil
}

func (s *memoryTokenStore) storeLocked(userID, token string, expiresAt time.Time) *domain.StoredToken {
	now := s.now()
	rec, ok := s.byUser[userID]
	if ok {
		delete(s.byToken, rec.Token)
	} else {
		s.nextID++
		rec = domain.StoredToken{ID: s.nextID, UserID: userID, CreatedAt: now}
	}
	rec.Token = token
	rec.ExpirationDate = expiresAt
	rec.UpdatedAt = now

	s.byUser[userID] = rec
	s.byToken[token] = userID
	return &rec
}

func (s *memoryTokenStore) Delete(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byUser[userID]
	if !ok {
		return false, nil
	}
	delete(s.byToken, rec.Token)
	delete(s.byUser, userID)
	return true, nil
}
