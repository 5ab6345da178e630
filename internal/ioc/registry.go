package ioc

import (
	"github.com/JrMarcco/jdelivery/internal/pkg/registry"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/fx"
)

var RegistryFxOpt = fx.Provide(
	InitRegistry,
)

// InitRegistry 未配置 etcd 时不注册实例
func InitRegistry(client *clientv3.Client) registry.Registry {
	if client == nil {
		return nil
	}
	r, err := registry.NewEtcdRegistry(client)
	if err != nil {
		panic(err)
	}
	return r
}
