package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pigateway/internal/session"
	"pigateway/pkg/platform/sentinel"
)

const sessionKeyPrefix = "pi:session:"

// RedisStore is the distributed session store. Expiry is enforced twice: the
// ExpiresAt field inside the payload and a matching Redis TTL, so a key that
// still exists is by construction unexpired and DeleteExpired is a no-op.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	ok, err := s.client.SetNX(ctx, sessionKeyPrefix+sess.ID, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("setnx session: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*session.Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) ExtendIfValid(ctx context.Context, id string, now, until time.Time) (bool, error) {
	sess, err := s.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sess.Expired(now) {
		return false, nil
	}
	sess.ExpiresAt = until
	payload, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("marshal session: %w", err)
	}
	// Concurrent extends may overwrite each other; both only push the expiry
	// forward, so the invariant expiry > created always holds.
	if err := s.client.Set(ctx, sessionKeyPrefix+id, payload, time.Until(until)).Err(); err != nil {
		return false, fmt.Errorf("set session: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("del session: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	// Redis evicts expired keys itself via the TTL set on write.
	return 0, nil
}

func (s *RedisStore) Count(ctx context.Context, _ time.Time) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scan sessions: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
