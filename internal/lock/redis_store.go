package lock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps locks as JSON under "lock:<documentID>" with the lock TTL
// as the key TTL, so abandoned locks disappear without a sweeper.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed lock store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(documentID string) string {
	return s.prefix + documentID
}

func (s *RedisStore) Get(ctx context.Context, documentID string) (*Lock, error) {
	b, err := s.client.Get(ctx, s.key(documentID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var l Lock
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *RedisStore) Acquire(ctx context.Context, l *Lock, ttl time.Duration) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(l.DocumentID), b, ttl).Err()
}

func (s *RedisStore) Refresh(ctx context.Context, documentID string, ttl time.Duration) error {
	return s.client.Expire(ctx, s.key(documentID), ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, documentID string) error {
	return s.client.Del(ctx, s.key(documentID)).Err()
}
