package ioc

import (
	"fmt"
	"strings"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/pkg/sharding"
	"github.com/JrMarcco/jdelivery/internal/repository"
	"github.com/JrMarcco/jdelivery/internal/service/adapter"
	"github.com/JrMarcco/jdelivery/internal/service/dispatch"
	"github.com/JrMarcco/jdelivery/internal/service/engine"
	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ServiceFxOpt = fx.Options(
	fx.Provide(
		InitRetryPolicies,
		InitDispatcher,
		fx.Annotate(
			InitEngine,
			fx.As(new(engine.Service)),
			fx.As(new(dispatch.Reporter)),
		),
		InitDispatchWorker,
	),
)

// InitRetryPolicies 加载按渠道类型配置的重试策略。
// viper 会把 map 的 key 转为小写，这里统一恢复为渠道类型的大写形式。
func InitRetryPolicies() domain.RetryPolicies {
	policies := domain.RetryPolicies{}
	if err := viper.UnmarshalKey("retry_policies", &policies); err != nil {
		panic(err)
	}

	byType := make(map[domain.MethodType]domain.RetryPolicy, len(policies.ByType))
	for t, p := range policies.ByType {
		mt := domain.MethodType(strings.ToUpper(string(t)))
		if !mt.Validate() {
			panic(fmt.Sprintf("[jdelivery] retry policy configured for unknown method type %q", t))
		}
		byType[mt] = p
	}
	policies.ByType = byType

	if err := policies.Validate(); err != nil {
		panic(err)
	}
	return policies
}

// Dispatcher 派发队列的生产端与消费端
type Dispatcher struct {
	fx.Out

	Enqueuer dispatch.Enqueuer
	Consumer dispatch.Consumer
}

type dispatchConfig struct {
	Mode        string        `mapstructure:"mode"`
	QueueSize   int           `mapstructure:"queue_size"`
	Concurrency int           `mapstructure:"concurrency"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	Asynq       struct {
		Queue    string `mapstructure:"queue"`
		MaxRetry int    `mapstructure:"max_retry"`
	} `mapstructure:"asynq"`
}

func loadDispatchConfig() dispatchConfig {
	cfg := dispatchConfig{Mode: dispatch.ModeInline}
	if err := viper.UnmarshalKey("dispatch", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

// InitDispatcher inline 模式使用进程内队列，asynq 模式通过 redis 在实例间分发任务。
func InitDispatcher(lc fx.Lifecycle, logger *zap.Logger) Dispatcher {
	cfg := loadDispatchConfig()

	switch cfg.Mode {
	case dispatch.ModeInline:
		q := dispatch.NewInlineQueue(cfg.QueueSize, cfg.Concurrency, logger)
		return Dispatcher{Enqueuer: q, Consumer: q}
	case dispatch.ModeAsynq:
		rc := loadRedisConfig()
		redisOpt := asynq.RedisClientOpt{Addr: rc.Addr, Password: rc.Password, DB: rc.DB}

		queue := cfg.Asynq.Queue
		if queue == "" {
			queue = "delivery"
		}

		client := asynq.NewClient(redisOpt)
		server := asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      map[string]int{queue: 1},
			Logger:      logger.Sugar(),
		})

		lc.Append(fx.StopHook(client.Close))
		return Dispatcher{
			Enqueuer: dispatch.NewAsynqEnqueuer(client, queue, cfg.Asynq.MaxRetry),
			Consumer: dispatch.NewAsynqServer(server, logger),
		}
	default:
		panic(fmt.Sprintf("[jdelivery] unknown dispatch mode %q", cfg.Mode))
	}
}

func InitEngine(
	repo repository.DeliveryJobRepo,
	enqueuer dispatch.Enqueuer,
	shardingStrategy sharding.Strategy,
	policies domain.RetryPolicies,
	logger *zap.Logger,
) *engine.DefaultEngine {
	cfg := engine.Config{}
	if err := viper.UnmarshalKey("engine", &cfg); err != nil {
		panic(err)
	}
	return engine.NewDefaultEngine(repo, enqueuer, shardingStrategy, policies, cfg, logger)
}

func InitDispatchWorker(
	repo repository.DeliveryJobRepo,
	registry *adapter.Registry,
	reporter dispatch.Reporter,
	logger *zap.Logger,
) *dispatch.Worker {
	return dispatch.NewWorker(repo, registry, reporter, loadDispatchConfig().SendTimeout, logger)
}
