package middleware

import (
	"github.com/JrMarcco/jdelivery/internal/pkg/idempotent"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotentBuilder 基于 Idempotency-Key 请求头的幂等处理。
// 重复请求不会再次执行，而是交给 onDuplicate（一般返回 job 当前状态）。
type IdempotentBuilder struct {
	strategy    idempotent.Strategy
	onDuplicate gin.HandlerFunc
	logger      *zap.Logger
}

func (b *IdempotentBuilder) Build() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		bizKey := c.Request.URL.Path + ":" + key
		claimed, err := b.strategy.Claim(c.Request.Context(), bizKey)
		if err != nil {
			// 幂等存储不可用时按普通请求处理，重复回调由状态机拒绝
			b.logger.Warn("[jdelivery] failed to claim idempotency key", zap.Error(err), zap.String("key", bizKey))
			c.Next()
			return
		}
		if !claimed {
			b.logger.Info("[jdelivery] duplicate request", zap.String("key", bizKey))
			b.onDuplicate(c)
			c.Abort()
			return
		}

		c.Next()

		// 处理失败允许使用同一个 key 重试
		if c.Writer.Status() >= 300 {
			if err = b.strategy.Release(c.Request.Context(), bizKey); err != nil {
				b.logger.Warn("[jdelivery] failed to release idempotency key", zap.Error(err), zap.String("key", bizKey))
			}
		}
	}
}

func NewIdempotentBuilder(strategy idempotent.Strategy, onDuplicate gin.HandlerFunc, logger *zap.Logger) *IdempotentBuilder {
	return &IdempotentBuilder{
		strategy:    strategy,
		onDuplicate: onDuplicate,
		logger:      logger,
	}
}
