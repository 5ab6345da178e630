package ioc

import (
	"context"
	"time"

	"github.com/JrMarcco/jdelivery/internal/pkg/batch/slidewindow"
	"github.com/JrMarcco/jdelivery/internal/pkg/bitring"
	"github.com/JrMarcco/jdelivery/internal/pkg/job"
	"github.com/JrMarcco/jdelivery/internal/pkg/lock"
	shardingpkg "github.com/JrMarcco/jdelivery/internal/pkg/sharding"
	"github.com/JrMarcco/jdelivery/internal/repository"
	"github.com/JrMarcco/jdelivery/internal/service/engine"
	"github.com/JrMarcco/jdelivery/internal/service/schedule"
	shardingsvc "github.com/JrMarcco/jdelivery/internal/service/schedule/sharding"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var SchedulerFxOpt = fx.Provide(
	lock.NewClient,
	fx.Annotate(
		InitAdvanceScheduler,
		fx.As(new(schedule.Scheduler)),
	),
)

func InitAdvanceScheduler(
	lc fx.Lifecycle,
	lockClient *lock.Client,
	repo repository.DeliveryJobRepo,
	svc engine.Service,
	shardingStrategy shardingpkg.Strategy,
	etcdClient *clientv3.Client,
	logger *zap.Logger,
) *shardingsvc.AdvanceShardingScheduler {
	type AdjusterConfig struct {
		WindowSize        int           `mapstructure:"window_size"`
		InitSize          int           `mapstructure:"init_size"`
		MinSize           int           `mapstructure:"min_size"`
		MaxSize           int           `mapstructure:"max_size"`
		AdjustStep        int           `mapstructure:"adjust_step"`
		MinAdjustInterval time.Duration `mapstructure:"min_adjust_interval"`
	}

	type ErrEventConfig struct {
		BitRingSize          int     `mapstructure:"bit_ring_size"`         // 位环大小
		ConsecutiveThreshold int     `mapstructure:"consecutive_threshold"` // 连续失败阈值
		EventRateThreshold   float64 `mapstructure:"event_rate_threshold"`  // 失败率阈值
	}

	type SchedulerConfig struct {
		MaxPartitionCntKey string         `mapstructure:"max_partition_cnt_key"` // 单实例最大分区数配置中心 key
		MaxPartitionCnt    int            `mapstructure:"max_partition_cnt"`     // 单实例最大分区数
		ConcurrencyKey     string         `mapstructure:"concurrency_key"`       // 分区内并发数配置中心 key
		Concurrency        int            `mapstructure:"concurrency"`           // 分区内并发推进数量
		BatchSize          int            `mapstructure:"batch_size"`            // 初始批量大小
		Job                job.Config     `mapstructure:"job"`                   // 分区循环配置
		AdjusterConfig     AdjusterConfig `mapstructure:"adjuster_config"`       // 批量调整器配置
		ErrEventConfig     ErrEventConfig `mapstructure:"err_event_config"`      // 错误事件配置
	}

	var cfg SchedulerConfig
	if err := viper.UnmarshalKey("scheduler", &cfg); err != nil {
		panic(err)
	}

	resourceSemaphore := job.NewMaxCntResourceSemaphore(cfg.MaxPartitionCnt)

	adjuster, err := slidewindow.NewAdjuster(
		cfg.AdjusterConfig.WindowSize,
		cfg.AdjusterConfig.InitSize,
		cfg.AdjusterConfig.MinSize,
		cfg.AdjusterConfig.MaxSize,
		cfg.AdjusterConfig.AdjustStep,
		cfg.AdjusterConfig.MinAdjustInterval,
	)
	if err != nil {
		panic(err)
	}

	errEvents := bitring.NewBitRing(
		cfg.ErrEventConfig.BitRingSize,
		cfg.ErrEventConfig.ConsecutiveThreshold,
		cfg.ErrEventConfig.EventRateThreshold,
	)

	scheduler := shardingsvc.NewAdvanceShardingScheduler(
		repo,
		svc,
		shardingStrategy,
		lockClient,
		resourceSemaphore,
		cfg.Job,
		cfg.BatchSize,
		cfg.Concurrency,
		adjuster,
		errEvents,
		logger,
	)

	// 分区数量与并发数支持通过 etcd 动态调整
	watchCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			watchInt(watchCtx, etcdClient, cfg.MaxPartitionCntKey, resourceSemaphore.UpdateMaxCnt, logger)
			watchInt(watchCtx, etcdClient, cfg.ConcurrencyKey, scheduler.SetConcurrency, logger)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
	return scheduler
}

