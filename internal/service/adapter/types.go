package adapter

import (
	"context"
	"fmt"
	"slices"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
)

// MethodAdapter 送达渠道适配器。
//
// Send 只负责把投递交给外部渠道，最终结果通过回调接口异步上报。
//
//go:generate mockgen -source=./types.go -destination=./mock/adapter.mock.go -package=adaptermock
type MethodAdapter interface {
	// Name 适配器名称，作为回写事件的 actor
	Name() string
	// Types 适配器支持的渠道类型
	Types() []domain.MethodType
	Send(ctx context.Context, job domain.DeliveryJob, m domain.DeliveryMethod) (domain.AttemptPayload, error)
}

// Registry 按渠道类型分发到对应的适配器
type Registry struct {
	adapters map[domain.MethodType]MethodAdapter
}

func (r *Registry) Get(t domain.MethodType) (MethodAdapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrNoAdapter, t)
	}
	return a, nil
}

func (r *Registry) Types() []domain.MethodType {
	res := make([]domain.MethodType, 0, len(r.adapters))
	for t := range r.adapters {
		res = append(res, t)
	}
	slices.Sort(res)
	return res
}

func NewRegistry(adapters ...MethodAdapter) (*Registry, error) {
	r := &Registry{
		adapters: make(map[domain.MethodType]MethodAdapter, len(adapters)),
	}
	for _, a := range adapters {
		for _, t := range a.Types() {
			if exist, ok := r.adapters[t]; ok {
				return nil, fmt.Errorf(
					"[jdelivery] method type %s is served by both %s and %s", t, exist.Name(), a.Name(),
				)
			}
			r.adapters[t] = a
		}
	}
	return r, nil
}
