package main

import (
	"strings"

	"github.com/JrMarcco/jdelivery/internal/ioc"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	initViper()

	fx.New(
		// 初始化 zap.Logger
		ioc.LoggerFxOpt,

		// 初始化存储与分区策略
		ioc.DBFxOpt,
		// 初始化 redis
		ioc.RedisFxOpt,
		// 初始化 etcd
		ioc.EtcdFxOpt,

		// 初始化 Repo
		ioc.RepoFxOpt,

		// 初始化渠道适配器
		ioc.AdapterFxOpt,
		// 初始化引擎与派发队列
		ioc.ServiceFxOpt,
		// 初始化推进调度器
		ioc.SchedulerFxOpt,

		// 初始化注册中心
		ioc.RegistryFxOpt,
		// 初始化 http 接口
		ioc.WebFxOpt,

		// 初始化 ioc.App
		ioc.AppFxOpt,

		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),

		// 实际运行方法，即调用 ioc.AppLifecycle 方法
		ioc.AppFxInvoke,
		// 确保日志缓冲区被刷新
		ioc.LoggerFxInvoke,
	).Run()
}

// initViper 初始化 viper
func initViper() {
	configFile := pflag.String("config", "etc/config.yaml", "配置文件路径")
	pflag.Parse()

	viper.SetConfigFile(*configFile)
	viper.SetConfigType("yaml")
	// 支持通过环境变量覆盖配置，如 JDELIVERY_STORAGE_DRIVER=memory
	viper.SetEnvPrefix("jdelivery")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}
}
