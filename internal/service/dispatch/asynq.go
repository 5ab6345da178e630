package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

var _ Enqueuer = (*AsynqEnqueuer)(nil)

// AsynqEnqueuer 基于 redis 的派发队列，多实例部署使用。
type AsynqEnqueuer struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("[jdelivery] failed to marshal dispatch task: %w", err)
	}

	_, err = e.client.EnqueueContext(
		ctx,
		asynq.NewTask(TaskTypeDispatch, payload),
		asynq.TaskID(taskId(task)),
		asynq.Queue(e.queue),
		asynq.MaxRetry(e.maxRetry),
	)
	// 同一次派发重复入队
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func taskId(task Task) string {
	return fmt.Sprintf("%s:%s:%d", task.JobId, task.MethodId, task.Seq)
}

func NewAsynqEnqueuer(client *asynq.Client, queue string, maxRetry int) *AsynqEnqueuer {
	return &AsynqEnqueuer{
		client:   client,
		queue:    queue,
		maxRetry: maxRetry,
	}
}

var _ Consumer = (*AsynqServer)(nil)

// AsynqServer 消费 asynq 队列中的派发任务
type AsynqServer struct {
	server *asynq.Server
	logger *zap.Logger
}

func (s *AsynqServer) Start(handler Handler) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatch, func(ctx context.Context, t *asynq.Task) error {
		return s.process(ctx, t, handler)
	})
	return s.server.Start(mux)
}

func (s *AsynqServer) process(ctx context.Context, t *asynq.Task, handler Handler) error {
	var task Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		s.logger.Error("[jdelivery] invalid dispatch task payload", zap.Error(err))
		// 无法解析的任务重试也没有意义
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	return handler.Handle(ctx, task)
}

func (s *AsynqServer) Stop() {
	s.server.Shutdown()
}

func NewAsynqServer(server *asynq.Server, logger *zap.Logger) *AsynqServer {
	return &AsynqServer{
		server: server,
		logger: logger,
	}
}
