package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/pkg/lock"
	"github.com/JrMarcco/jdelivery/internal/pkg/sharding"
	"go.uber.org/zap"
)

// BizFunc 单个分区的一轮处理，分区号通过 sharding.PartitionFromContext 获取。
// 返回 errs.ErrErrorRateExceeded 时当前实例释放该分区。
type BizFunc func(ctx context.Context) error

type Config struct {
	BaseKey        string        `mapstructure:"base_key"`
	Interval       time.Duration `mapstructure:"interval"`        // 两轮处理的间隔
	RetryInterval  time.Duration `mapstructure:"retry_interval"`  // 抢占分区的间隔
	LockExpiration time.Duration `mapstructure:"lock_expiration"` // 分区锁过期时间
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`    // 加锁、续约、释放锁的超时
	BizTimeout     time.Duration `mapstructure:"biz_timeout"`     // 单轮处理超时
}

// ShardingLoopJob 抢占分区并循环处理。
// 每个分区由分布式锁保证同一时间只有一个实例处理，实例持有的分区数量由 ResourceSemaphore 限制。
type ShardingLoopJob struct {
	cfg Config

	resourceSemaphore ResourceSemaphore
	shardingStrategy  sharding.Strategy
	lockClient        *lock.Client
	logger            *zap.Logger

	biz BizFunc
}

// Run 阻塞直到 ctx 被取消
func (lj *ShardingLoopJob) Run(ctx context.Context) error {
	for {
		for _, partition := range lj.shardingStrategy.BroadCast() {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if err := lj.resourceSemaphore.Acquire(ctx); err != nil {
				// 持有的分区已达上限
				break
			}

			l := lj.lockClient.NewLock(lj.lockKey(partition), lj.cfg.LockExpiration)
			lockCtx, cancel := context.WithTimeout(ctx, lj.cfg.LockTimeout)
			err := l.TryLock(lockCtx)
			cancel()

			if err != nil {
				if !errors.Is(err, errs.ErrLockNotAcquired) {
					lj.logger.Error("[jdelivery] failed to acquire partition lock", zap.Error(err), zap.Uint64("partition", partition))
				}
				lj.release(ctx)
				continue
			}

			lj.logger.Info("[jdelivery] partition acquired", zap.Uint64("partition", partition))
			go lj.partitionLoop(sharding.ContextWithPartition(ctx, partition), partition, l)
		}

		if err := sleep(ctx, lj.cfg.RetryInterval); err != nil {
			return err
		}
	}
}

func (lj *ShardingLoopJob) partitionLoop(ctx context.Context, partition uint64, l *lock.Lock) {
	defer lj.release(ctx)

	err := lj.bizLoop(ctx, l)

	// ctx 可能已经取消，释放锁使用独立的超时
	unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lj.cfg.LockTimeout)
	if unlockErr := l.Unlock(unlockCtx); unlockErr != nil {
		lj.logger.Warn("[jdelivery] failed to release partition lock", zap.Error(unlockErr), zap.Uint64("partition", partition))
	}
	cancel()

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		lj.logger.Info("[jdelivery] partition loop stopped", zap.Uint64("partition", partition))
	default:
		lj.logger.Error("[jdelivery] partition loop aborted, wait for retry", zap.Error(err), zap.Uint64("partition", partition))
		// 等待期间仍占用信号量，避免立即重新抢占
		_ = sleep(ctx, lj.cfg.RetryInterval)
	}
}

func (lj *ShardingLoopJob) bizLoop(ctx context.Context, l *lock.Lock) error {
	for {
		bizCtx, cancel := context.WithTimeout(ctx, lj.cfg.BizTimeout)
		err := lj.biz(bizCtx)
		cancel()

		if errors.Is(err, errs.ErrErrorRateExceeded) {
			return err
		}
		if err != nil {
			lj.logger.Error("[jdelivery] partition round failed", zap.Error(err), zap.String("lock_key", l.Key()))
		}

		if err = sleep(ctx, lj.cfg.Interval); err != nil {
			return err
		}

		refreshCtx, cancel := context.WithTimeout(ctx, lj.cfg.LockTimeout)
		err = l.Refresh(refreshCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("[jdelivery] failed to refresh partition lock: %w", err)
		}
	}
}

func (lj *ShardingLoopJob) release(ctx context.Context) {
	if err := lj.resourceSemaphore.Release(ctx); err != nil {
		lj.logger.Error("[jdelivery] failed to release partition semaphore", zap.Error(err))
	}
}

func (lj *ShardingLoopJob) lockKey(partition uint64) string {
	return fmt.Sprintf("%s:%d", lj.cfg.BaseKey, partition)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func NewShardingLoopJob(
	cfg Config,
	resourceSemaphore ResourceSemaphore,
	shardingStrategy sharding.Strategy,
	lockClient *lock.Client,
	logger *zap.Logger,
	biz BizFunc,
) *ShardingLoopJob {
	if cfg.BaseKey == "" {
		cfg.BaseKey = "jdelivery:partition"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 3 * time.Second
	}
	if cfg.BizTimeout <= 0 {
		cfg.BizTimeout = time.Minute
	}
	// 锁必须能撑过一整轮处理
	cfg.LockExpiration = max(cfg.LockExpiration, cfg.Interval+cfg.BizTimeout+cfg.LockTimeout)

	return &ShardingLoopJob{
		cfg:               cfg,
		resourceSemaphore: resourceSemaphore,
		shardingStrategy:  shardingStrategy,
		lockClient:        lockClient,
		logger:            logger,
		biz:               biz,
	}
}
