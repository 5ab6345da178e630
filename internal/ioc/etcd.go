package ioc

import (
	"context"
	"strconv"

	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var EtcdFxOpt = fx.Provide(
	InitEtcdClient,
)

// InitEtcdClient 未配置 endpoints 时返回 nil，动态配置与服务注册随之关闭。
func InitEtcdClient(lc fx.Lifecycle) *clientv3.Client {
	type config struct {
		Username  string   `mapstructure:"username"`
		Password  string   `mapstructure:"password"`
		Endpoints []string `mapstructure:"endpoints"`
	}
	cfg := &config{}
	if err := viper.UnmarshalKey("etcd", cfg); err != nil {
		panic(err)
	}
	if len(cfg.Endpoints) == 0 {
		return nil
	}

	client, err := clientv3.New(clientv3.Config{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Endpoints: cfg.Endpoints,
	})
	if err != nil {
		panic(err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

// watchInt 监听 etcd 中的整数配置，值变更时回调 update。
func watchInt(ctx context.Context, client *clientv3.Client, key string, update func(int), logger *zap.Logger) {
	if client == nil || key == "" {
		return
	}

	go func() {
		watchChan := client.Watch(ctx, key)
		for watchResp := range watchChan {
			for _, ev := range watchResp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				val, err := strconv.Atoi(string(ev.Kv.Value))
				if err != nil || val <= 0 {
					logger.Warn("[jdelivery] ignore invalid dynamic config", zap.String("key", key), zap.ByteString("value", ev.Kv.Value))
					continue
				}
				logger.Info("[jdelivery] dynamic config updated", zap.String("key", key), zap.Int("value", val))
				update(val)
			}
		}
	}()
}
