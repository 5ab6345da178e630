package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/repository/cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	//go:embed lua/set_if_newer.lua
	setIfNewerLua string
)

var _ cache.DeliveryJobCache = (*DeliveryJobRedisCache)(nil)

type DeliveryJobRedisCache struct {
	client redis.Cmdable
	logger *zap.Logger
}

// cachedJob redis 中存储的结构，version 单独存放用于比较。
type cachedJob struct {
	Job          domain.DeliveryJob `json:"job"`
	CommittedSeq int64              `json:"committedSeq"`
}

func (r *DeliveryJobRedisCache) Get(ctx context.Context, id string) (domain.DeliveryJob, error) {
	key := cache.DeliveryJobKey(id)
	val, err := r.client.HGet(ctx, key, "data").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// redis key 不存在
			return domain.DeliveryJob{}, fmt.Errorf("%w: %s", errs.ErrCacheKeyNotFound, key)
		}
		return domain.DeliveryJob{}, fmt.Errorf("[jdelivery] get delivery job from redis error: %w", err)
	}

	var cj cachedJob
	if err = json.Unmarshal([]byte(val), &cj); err != nil {
		return domain.DeliveryJob{}, fmt.Errorf("[jdelivery] unmarshal delivery job error: %w", err)
	}
	cj.Job.CommittedSeq = cj.CommittedSeq
	return cj.Job, nil
}

func (r *DeliveryJobRedisCache) Set(ctx context.Context, job domain.DeliveryJob) error {
	data, err := json.Marshal(cachedJob{Job: job, CommittedSeq: job.CommittedSeq})
	if err != nil {
		return fmt.Errorf("[jdelivery] marshal delivery job error: %w", err)
	}

	err = r.client.Eval(
		ctx, setIfNewerLua,
		[]string{cache.DeliveryJobKey(job.Id)},
		job.Version, data, int64(cache.DefaultExpires.Milliseconds()),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("[jdelivery] set delivery job to redis error: %w", err)
	}
	return nil
}

func (r *DeliveryJobRedisCache) Del(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, cache.DeliveryJobKey(id)).Err(); err != nil {
		return fmt.Errorf("[jdelivery] delete delivery job from redis error: %w", err)
	}
	return nil
}

func NewDeliveryJobRedisCache(rc redis.Cmdable, logger *zap.Logger) *DeliveryJobRedisCache {
	return &DeliveryJobRedisCache{
		client: rc,
		logger: logger,
	}
}
