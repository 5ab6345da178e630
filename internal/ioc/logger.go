package ioc

import (
	"context"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var LoggerFxOpt = fx.Provide(
	InitLogger,
)

var LoggerFxInvoke = fx.Invoke(
	LoggerLifecycle,
)

func InitLogger() *zap.Logger {
	type config struct {
		Env   string `mapstructure:"env"`
		Level string `mapstructure:"level"`
	}

	cfg := &config{}
	if err := viper.UnmarshalKey("profile", cfg); err != nil {
		panic(err)
	}

	var zCfg zap.Config
	switch cfg.Env {
	case "prod":
		zCfg = zap.NewProductionConfig()
	default:
		zCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			panic(err)
		}
		zCfg.Level = zap.NewAtomicLevelAt(level)
	}

	zLogger, err := zCfg.Build()
	if err != nil {
		panic(err)
	}
	return zLogger.With(zap.String("env", cfg.Env))
}

func LoggerLifecycle(lc fx.Lifecycle, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
}
