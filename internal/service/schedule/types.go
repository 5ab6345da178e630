package schedule

import "context"

// Scheduler 周期性推进活跃的 delivery job
type Scheduler interface {
	// Start 启动调度，ctx 取消时退出。
	Start(ctx context.Context) error
}
