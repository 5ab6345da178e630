package ioc

import (
	"time"

	"github.com/JrMarcco/jdelivery/internal/repository"
	"github.com/JrMarcco/jdelivery/internal/repository/cache"
	"github.com/JrMarcco/jdelivery/internal/repository/cache/local"
	"github.com/JrMarcco/jdelivery/internal/repository/cache/redis"
	gcache "github.com/patrickmn/go-cache"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var RepoFxOpt = fx.Options(
	// cache
	fx.Provide(
		InitLocalCache,
		fx.Annotate(
			local.NewDeliveryJobLocalCache,
			fx.As(new(cache.DeliveryJobCache)),
			fx.ResultTags(`name:"delivery_job_local_cache"`),
		),
		fx.Annotate(
			redis.NewDeliveryJobRedisCache,
			fx.As(new(cache.DeliveryJobCache)),
			fx.ResultTags(`name:"delivery_job_redis_cache"`),
		),
	),

	// repository
	fx.Provide(
		fx.Annotate(
			repository.NewDefaultDeliveryJobRepo,
			fx.As(new(repository.DeliveryJobRepo)),
			fx.ParamTags(``, `name:"delivery_job_local_cache"`, `name:"delivery_job_redis_cache"`),
		),
	),
)

// InitLocalCache 进程内缓存，job 查询缓存与单实例幂等键共用。
func InitLocalCache() *gcache.Cache {
	type config struct {
		DefaultExpiration time.Duration `mapstructure:"default_expiration"`
		CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	}
	cfg := config{
		DefaultExpiration: cache.DefaultExpires,
		CleanupInterval:   10 * time.Minute,
	}
	if err := viper.UnmarshalKey("cache.local", &cfg); err != nil {
		panic(err)
	}
	return gcache.New(cfg.DefaultExpiration, cfg.CleanupInterval)
}
