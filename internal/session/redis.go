package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token in Redis so several client instances can share a
// session. When the token is a JWT, the key expires with it.
type RedisStore struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

// NewRedisStore returns a store using key; an empty key means StorageKey.
func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if rdb == nil {
		panic("session.NewRedisStore: redis client is nil")
	}
	if key == "" {
		key = StorageKey
	}
	return &RedisStore{rdb: rdb, key: key, now: time.Now}
}

// OpenRedis creates a client from a redis:// URL.
func OpenRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisStore) Get(ctx context.Context) (string, error) {
	token, err := r.rdb.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return token, nil
}

func (r *RedisStore) Set(ctx context.Context, token string) error {
	var ttl time.Duration
	if exp, ok := Expiry(token); ok {
		ttl = exp.Sub(r.now())
		if ttl <= 0 {
			// Already expired; let the remote store reject it rather than dropping it here.
			ttl = 0
		}
	}
	if err := r.rdb.Set(ctx, r.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis clear token: %w", err)
	}
	return nil
}
