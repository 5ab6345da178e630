package idempotent

import (
	"context"
	"time"

	gcache "github.com/patrickmn/go-cache"
)

var _ Strategy = (*LocalStrategy)(nil)

// LocalStrategy 单机部署使用的幂等策略
type LocalStrategy struct {
	c       *gcache.Cache
	expires time.Duration
}

func (l *LocalStrategy) Claim(_ context.Context, key string) (bool, error) {
	// key 已存在时 Add 返回错误
	return l.c.Add(key, struct{}{}, l.expires) == nil, nil
}

func (l *LocalStrategy) Release(_ context.Context, key string) error {
	l.c.Delete(key)
	return nil
}

func NewLocalStrategy(c *gcache.Cache, expires time.Duration) *LocalStrategy {
	return &LocalStrategy{
		c:       c,
		expires: expires,
	}
}
