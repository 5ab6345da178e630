package batch

import (
	"context"
	"time"
)

// Adjuster 根据每一轮的耗时调整下一轮的批次大小
type Adjuster interface {
	Adjust(ctx context.Context, elapsed time.Duration) (int, error)
}
