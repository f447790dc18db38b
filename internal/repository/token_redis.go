package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/api-token-service/internal/domain"
)

const redisWriteRetries = 32

// redisTokenStore keeps one hash per user plus a token -> user index.
//
//	<prefix>:user:<id>     hash {id, token, expiration_date, created_at, updated_at}
//	<prefix>:token:<token> user id
//	<prefix>:seq           record id counter
type redisTokenStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisTokenStore returns a TokenStore on Redis. Keys never expire; the
// record lives until it is deleted like the Postgres row.
func NewRedisTokenStore(client *redis.Client, prefix string) TokenStore {
	return &redisTokenStore{client: client, prefix: prefix, now: time.Now}
}

func (s *redisTokenStore) userKey(userID string) string { return s.prefix + ":user:" + userID }
func (s *redisTokenStore) tokenKey(token string) string { return s.prefix + ":token:" + token }
func (s *redisTokenStore) seqKey() string               { return s.prefix + ":seq" }

func (s *redisTokenStore) Find(ctx context.Context, userID string) (*domain.StoredToken, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: find token: %w", domain.ErrPersistence, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec, err := decodeRedisRecord(userID, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: decode token record: %w", domain.ErrPersistence, err)
	}
	return rec, nil
}

func (s *redisTokenStore) ExistsByToken(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.tokenKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: lookup token: %w", domain.ErrPersistence, err)
	}
	return n == 1, nil
}

func (s *redisTokenStore) Insert(ctx context.Context, userID, token string, expiresAt time.Time) (*domain.StoredToken, bool, error) {
	return s.write(ctx, userID, token, expiresAt, func(existing *domain.StoredToken) bool {
		return existing == nil
	})
}

func (s *redisTokenStore) Replace(ctx context.Context, userID, expected, token string, expiresAt time.Time) (*domain.StoredToken, bool, error) {
	return s.write(ctx, userID, token, expiresAt, func(existing *domain.StoredToken) bool {
		return existing == nil || existing.Token == expected
	})
}

// write stores token for userID when allow accepts the current record. The
// decision and the write run under WATCH on the user key, so a concurrent
// writer aborts the transaction and the decision is taken again.
func (s *redisTokenStore) write(ctx context.Context, userID, token string, expiresAt time.Time, allow func(existing *domain.StoredToken) bool) (*domain.StoredToken, bool, error) {
	userKey := s.userKey(userID)
	var (
		rec     *domain.StoredToken
		written bool
	)

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, userKey).Result()
		if err != nil {
			return err
		}
		var existing *domain.StoredToken
		if len(fields) > 0 {
			if existing, err = decodeRedisRecord(userID, fields); err != nil {
				return err
			}
		}
		if !allow(existing) {
			rec, written = existing, false
			return nil
		}

		now := s.now()
		var previous string
		if existing != nil {
			previous = existing.Token
			rec = existing
		} else {
			id, err := tx.Incr(ctx, s.seqKey()).Result()
			if err != nil {
				return err
			}
			rec = &domain.StoredToken{ID: id, UserID: userID, CreatedAt: now}
		}
		rec.Token = token
		rec.ExpirationDate = expiresAt
		rec.UpdatedAt = now

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != "" && previous != token {
				pipe.Del(ctx, s.tokenKey(previous))
			}
			pipe.HSet(ctx, userKey, encodeRedisRecord(rec))
			pipe.Set(ctx, s.tokenKey(token), userID, 0)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}

	for i := 0; i < redisWriteRetries; i++ {
		err := s.client.Watch(ctx, txf, userKey)
		if err == nil {
			return rec, written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, fmt.Errorf("%w: store token: %w", domain.ErrPersistence, err)
	}
	return nil, false, fmt.Errorf("%w: store token: too much contention for user %s", domain.ErrPersistence, userID)
}

func (s *redisTokenStore) Delete(ctx context.Context, userID string) (bool, error) {
	userKey := s.userKey(userID)
	var existed bool

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		token, err := tx.HGet(ctx, userKey, "token").Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, userKey, s.tokenKey(token))
			return nil
		})
		return err
	}, userKey)
	if err != nil {
		return false, fmt.Errorf("%w: delete token: %w", domain.ErrPersistence, err)
	}
	return existed, nil
}

func encodeRedisRecord(rec *domain.StoredToken) map[string]any {
	return map[string]any{
		"id":              rec.ID,
		"token":           rec.Token,
		"expiration_date": rec.ExpirationDate.UTC().Format(time.RFC3339Nano),
		"created_at":      rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":      rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeRedisRecord(userID string, fields map[string]string) (*domain.StoredToken, error) {
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	rec := &domain.StoredToken{ID: id, UserID: userID, Token: fields["token"]}
	for name, dst := range map[string]*time.Time{
		"expiration_date": &rec.ExpirationDate,
		"created_at":      &rec.CreatedAt,
		"updated_at":      &rec.UpdatedAt,
	} {
		t, err := time.Parse(time.RFC3339Nano, fields[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		*dst = t
	}
	return rec, nil
}
