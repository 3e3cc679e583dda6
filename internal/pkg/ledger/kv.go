package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/docexpress/docexpress/internal/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// KV is the narrow key-value contract the ledger needs from its durable
// substrate. Keys are opaque strings; a zero TTL means no expiry.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

type redisKV struct {
	client *redis.Client
}

// NewRedisKV wraps a Redis client as the ledger's KV store.
func NewRedisKV(client *redis.Client) KV {
	return &redisKV{client: client}
}

// NewRedisKVFromCache uses the process-wide cache client.
func NewRedisKVFromCache() KV {
	return NewRedisKV(cache.GetClient())
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *redisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisKV) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *redisKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}
