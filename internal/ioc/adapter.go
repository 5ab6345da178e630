package ioc

import (
	"github.com/JrMarcco/jdelivery/internal/service/adapter"
	"github.com/JrMarcco/jdelivery/internal/service/adapter/manual"
	"github.com/JrMarcco/jdelivery/internal/service/adapter/sms"
	"github.com/JrMarcco/jdelivery/internal/service/adapter/sms/client"
	"github.com/JrMarcco/jdelivery/internal/service/adapter/webhook"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var AdapterFxOpt = fx.Provide(
	InitAdapterRegistry,
)

type smsAdapterConfig struct {
	sms.Config `mapstructure:",squash"`

	Enabled bool `mapstructure:"enabled"`
	Tencent struct {
		RegionId  string `mapstructure:"region_id"`
		AppId     string `mapstructure:"app_id"`
		SecretId  string `mapstructure:"secret_id"`
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"tencent"`
}

type manualAdapterConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Name    string   `mapstructure:"name"`
	Types   []string `mapstructure:"types"`
}

// InitAdapterRegistry 按配置装配渠道适配器，同一渠道类型只能由一个适配器服务。
func InitAdapterRegistry(logger *zap.Logger) *adapter.Registry {
	type config struct {
		Sms      smsAdapterConfig    `mapstructure:"sms"`
		Webhooks []webhook.Config    `mapstructure:"webhooks"`
		Manual   manualAdapterConfig `mapstructure:"manual"`
	}

	cfg := config{}
	if err := viper.UnmarshalKey("adapters", &cfg); err != nil {
		panic(err)
	}

	adapters := make([]adapter.MethodAdapter, 0, len(cfg.Webhooks)+2)

	if cfg.Sms.Enabled {
		tc := cfg.Sms.Tencent
		smsClient, err := client.NewTencentClient(tc.SecretId, tc.SecretKey, tc.RegionId, tc.AppId)
		if err != nil {
			panic(err)
		}
		adapters = append(adapters, sms.NewAdapter(cfg.Sms.Config, smsClient))
	}

	for _, wc := range cfg.Webhooks {
		a, err := webhook.NewAdapter(wc, nil, logger)
		if err != nil {
			panic(err)
		}
		adapters = append(adapters, a)
	}

	if cfg.Manual.Enabled {
		a, err := manual.NewAdapter(cfg.Manual.Name, cfg.Manual.Types, logger)
		if err != nil {
			panic(err)
		}
		adapters = append(adapters, a)
	}

	registry, err := adapter.NewRegistry(adapters...)
	if err != nil {
		panic(err)
	}

	logger.Info("[jdelivery] method adapters registered", zap.Stringers("types", registry.Types()))
	return registry
}
