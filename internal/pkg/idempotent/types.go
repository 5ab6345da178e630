package idempotent

import "context"

// Strategy 幂等策略
type Strategy interface {
	// Claim 占用 key，返回 false 表示 key 已被占用（重复请求）。
	Claim(ctx context.Context, key string) (bool, error)
	// Release 释放 key，请求处理失败时调用，允许调用方重试。
	Release(ctx context.Context, key string) error
}
