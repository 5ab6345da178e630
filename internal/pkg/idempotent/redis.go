package idempotent

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Strategy = (*RedisStrategy)(nil)

// RedisStrategy 幂等策略的 redis 实现
type RedisStrategy struct {
	client  redis.Cmdable
	expires time.Duration
}

func (r *RedisStrategy) Claim(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, r.redisKey(key), 1, r.expires).Result()
}

func (r *RedisStrategy) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.redisKey(key)).Err()
}

func (r *RedisStrategy) redisKey(bizKey string) string {
	return "idempotent:" + bizKey
}

func NewRedisStrategy(client redis.Cmdable, expires time.Duration) *RedisStrategy {
	return &RedisStrategy{
		client:  client,
		expires: expires,
	}
}
