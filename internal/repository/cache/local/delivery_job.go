package local

import (
	"context"
	"fmt"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/repository/cache"
	gcache "github.com/patrickmn/go-cache"
)

var _ cache.DeliveryJobCache = (*DeliveryJobLocalCache)(nil)

type DeliveryJobLocalCache struct {
	c *gcache.Cache
}

func (lc *DeliveryJobLocalCache) Get(_ context.Context, id string) (domain.DeliveryJob, error) {
	val, ok := lc.c.Get(cache.DeliveryJobKey(id))
	if !ok {
		return domain.DeliveryJob{}, fmt.Errorf("%w: %s", errs.ErrCacheKeyNotFound, cache.DeliveryJobKey(id))
	}

	job, ok := val.(domain.DeliveryJob)
	if !ok {
		lc.c.Delete(cache.DeliveryJobKey(id))
		return domain.DeliveryJob{}, fmt.Errorf("%w: %s", errs.ErrCacheKeyNotFound, cache.DeliveryJobKey(id))
	}
	// 缓存中的对象不能被调用方修改
	return job.Clone(), nil
}

func (lc *DeliveryJobLocalCache) Set(_ context.Context, job domain.DeliveryJob) error {
	key := cache.DeliveryJobKey(job.Id)
	if val, ok := lc.c.Get(key); ok {
		if cached, ok := val.(domain.DeliveryJob); ok && cached.Version > job.Version {
			return nil
		}
	}
	lc.c.Set(key, job.Clone(), gcache.DefaultExpiration)
	return nil
}

func (lc *DeliveryJobLocalCache) Del(_ context.Context, id string) error {
	lc.c.Delete(cache.DeliveryJobKey(id))
	return nil
}

func NewDeliveryJobLocalCache(c *gcache.Cache) *DeliveryJobLocalCache {
	return &DeliveryJobLocalCache{
		c: c,
	}
}
