package dispatch

import (
	"context"

	"github.com/JrMarcco/jdelivery/internal/domain"
)

const (
	ModeInline = "inline"
	ModeAsynq  = "asynq"

	TaskTypeDispatch = "delivery:dispatch"
)

// Task 一次派发任务，对应 ledger 中一条由 system 写入的 attempt 事件。
type Task struct {
	JobId    string `json:"jobId"`
	MethodId string `json:"methodId"`
	// Seq 派发时写入的 attempt 事件 seq
	Seq int64 `json:"seq"`
}

// Enqueuer 将派发任务交给 worker，调用方不会等待适配器返回。
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Consumer 从队列中取出任务交给 handler 执行
type Consumer interface {
	Start(handler Handler) error
	// Stop 停止消费并等待正在执行的任务结束
	Stop()
}

// Reporter worker 回写投递结果所需的引擎能力。
type Reporter interface {
	RecordAttempt(ctx context.Context, jobId, methodId string, p domain.AttemptPayload) (domain.DeliveryJob, error)
	RecordFail(ctx context.Context, jobId, methodId string, p domain.FailPayload) (domain.DeliveryJob, error)
}
