package sharding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/pkg/batch"
	"github.com/JrMarcco/jdelivery/internal/pkg/bitring"
	"github.com/JrMarcco/jdelivery/internal/pkg/isolation"
	"github.com/JrMarcco/jdelivery/internal/pkg/job"
	"github.com/JrMarcco/jdelivery/internal/pkg/lock"
	"github.com/JrMarcco/jdelivery/internal/pkg/sharding"
	"github.com/JrMarcco/jdelivery/internal/repository"
	"github.com/JrMarcco/jdelivery/internal/service/engine"
	"github.com/JrMarcco/jdelivery/internal/service/schedule"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ schedule.Scheduler = (*AdvanceShardingScheduler)(nil)

// AdvanceShardingScheduler 按分区扫描活跃 job 并调用 Advance。
//
// 回退链的推进、重试退避、派发超时都依赖这里的周期扫描。
type AdvanceShardingScheduler struct {
	repo   repository.DeliveryJobRepo
	engine engine.Service

	batchSize     atomic.Int64
	concurrency   atomic.Int64
	batchAdjuster batch.Adjuster
	errEvents     *bitring.BitRing

	// 每个分区的分页游标
	cursors sync.Map

	job    *job.ShardingLoopJob
	logger *zap.Logger
}

func (s *AdvanceShardingScheduler) Start(ctx context.Context) error {
	go func() {
		if err := s.job.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("[jdelivery] advance scheduler stopped", zap.Error(err))
		}
	}()
	return nil
}

// SetConcurrency 调整单个分区并发推进的 job 数量
func (s *AdvanceShardingScheduler) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency.Store(int64(n))
	}
}

// round 推进分区内的一页活跃 job
func (s *AdvanceShardingScheduler) round(ctx context.Context) error {
	partition, ok := sharding.PartitionFromContext(ctx)
	if !ok {
		return fmt.Errorf("[jdelivery] partition not found in context")
	}

	start := time.Now()
	afterId := s.cursor(partition)
	limit := int(s.batchSize.Load())

	// 扫描结果只用于触发 Advance，Advance 会从主库重新加载
	ids, err := s.repo.FindActive(isolation.WithReplicaRead(ctx), partition, afterId, limit)
	if err != nil {
		s.errEvents.Record(true)
		return s.checkErrorRate(fmt.Errorf("[jdelivery] failed to find active jobs: %w", err))
	}

	// 最后一页之后从头开始
	if len(ids) < limit {
		s.cursors.Delete(partition)
	} else {
		s.cursors.Store(partition, ids[len(ids)-1])
	}

	s.advanceAll(ctx, ids)

	if size, adjustErr := s.batchAdjuster.Adjust(ctx, time.Since(start)); adjustErr == nil && size > 0 {
		s.batchSize.Store(int64(size))
	}
	return s.checkErrorRate(nil)
}

func (s *AdvanceShardingScheduler) advanceAll(ctx context.Context, ids []string) {
	var eg errgroup.Group
	eg.SetLimit(int(s.concurrency.Load()))

	for _, id := range ids {
		eg.Go(func() error {
			_, err := s.engine.Advance(ctx, id)
			failed := err != nil && !isExpected(err)
			s.errEvents.Record(failed)
			if failed {
				s.logger.Error("[jdelivery] failed to advance delivery job", zap.Error(err), zap.String("job_id", id))
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (s *AdvanceShardingScheduler) checkErrorRate(cause error) error {
	if !s.errEvents.Exceeded() {
		return cause
	}
	s.errEvents.Reset()
	if cause != nil {
		return fmt.Errorf("%w: %w", errs.ErrErrorRateExceeded, cause)
	}
	return errs.ErrErrorRateExceeded
}

func (s *AdvanceShardingScheduler) cursor(partition uint64) string {
	if v, ok := s.cursors.Load(partition); ok {
		return v.(string)
	}
	return ""
}

// isExpected 扫描与回调并发时会出现的错误，不计入失败率。
func isExpected(err error) bool {
	return errors.Is(err, errs.ErrJobTerminal) ||
		errors.Is(err, errs.ErrNotFound) ||
		errors.Is(err, errs.ErrConflict) ||
		errors.Is(err, errs.ErrInvalidTransition)
}

func NewAdvanceShardingScheduler(
	repo repository.DeliveryJobRepo,
	engine engine.Service,
	shardingStrategy sharding.Strategy,
	lockClient *lock.Client,
	resourceSemaphore job.ResourceSemaphore,
	jobCfg job.Config,
	batchSize int,
	concurrency int,
	batchAdjuster batch.Adjuster,
	errEvents *bitring.BitRing,
	logger *zap.Logger,
) *AdvanceShardingScheduler {
	if jobCfg.BaseKey == "" {
		jobCfg.BaseKey = "jdelivery:advance_scheduler"
	}

	s := &AdvanceShardingScheduler{
		repo:          repo,
		engine:        engine,
		batchAdjuster: batchAdjuster,
		errEvents:     errEvents,
		logger:        logger,
	}
	s.batchSize.Store(int64(max(batchSize, 1)))
	s.concurrency.Store(int64(max(concurrency, 1)))
	s.job = job.NewShardingLoopJob(jobCfg, resourceSemaphore, shardingStrategy, lockClient, logger, s.round)
	return s
}
