package registry

import (
	"context"
	"io"
)

// Registry 服务实例注册。
// 渠道网关通过它发现可用的回调地址。
type Registry interface {
	Register(ctx context.Context, si ServiceInstance) error
	Unregister(ctx context.Context, si ServiceInstance) error
	ListService(ctx context.Context, serviceName string) ([]ServiceInstance, error)

	io.Closer
}

type ServiceInstance struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
	// CallbackBaseUrl 回调接口对外暴露的地址
	CallbackBaseUrl string `json:"callbackBaseUrl"`
}
