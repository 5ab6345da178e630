package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	unlockScript  = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	refreshScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

// Client 分布式锁客户端
type Client struct {
	rc redis.Cmdable
}

// NewLock 创建锁，此时并未加锁。
// 每把锁持有唯一的 value，只有持有者能够续约和释放。
func (c *Client) NewLock(key string, expiration time.Duration) *Lock {
	return &Lock{
		rc:         c.rc,
		key:        key,
		value:      uuid.NewString(),
		expiration: expiration,
	}
}

func NewClient(rc redis.Cmdable) *Client {
	return &Client{rc: rc}
}

type Lock struct {
	rc         redis.Cmdable
	key        string
	value      string
	expiration time.Duration
}

// TryLock 尝试加锁，锁已被占用时返回 errs.ErrLockNotAcquired。
func (l *Lock) TryLock(ctx context.Context) error {
	ok, err := l.rc.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: key = %s", errs.ErrLockNotAcquired, l.key)
	}
	return nil
}

// Refresh 续约
func (l *Lock) Refresh(ctx context.Context) error {
	res, err := l.rc.Eval(ctx, refreshScript, []string{l.key}, l.value, l.expiration.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return fmt.Errorf("%w: lock %s expired or held by others", errs.ErrLockNotAcquired, l.key)
	}
	return nil
}

func (l *Lock) Unlock(ctx context.Context) error {
	res, err := l.rc.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return fmt.Errorf("%w: lock %s expired or held by others", errs.ErrLockNotAcquired, l.key)
	}
	return nil
}

func (l *Lock) Key() string {
	return l.key
}
