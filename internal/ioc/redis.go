package ioc

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var RedisFxOpt = fx.Options(
	fx.Provide(
		InitRedisClient,
		func(rc *redis.Client) redis.Cmdable { return rc },
	),
	fx.Invoke(RedisLifecycle),
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func loadRedisConfig() RedisConfig {
	cfg := RedisConfig{}
	if err := viper.UnmarshalKey("redis", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func InitRedisClient() *redis.Client {
	cfg := loadRedisConfig()
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func RedisLifecycle(lc fx.Lifecycle, rc *redis.Client) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return rc.Close()
		},
	})
}
