package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	_ Enqueuer = (*InlineQueue)(nil)
	_ Consumer = (*InlineQueue)(nil)
)

// InlineQueue 进程内派发队列，单机部署使用。
type InlineQueue struct {
	tasks       chan Task
	concurrency int

	mu      sync.Mutex
	cancel  context.CancelFunc
	eg      *errgroup.Group
	started bool

	logger *zap.Logger
}

// Enqueue 队列已满时立即返回错误，不阻塞调用方。
func (q *InlineQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: inline dispatch queue is full", errs.ErrDispatchFailed)
	}
}

// Start 启动 worker 协程
func (q *InlineQueue) Start(handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return nil
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.eg = &errgroup.Group{}

	for i := 0; i < q.concurrency; i++ {
		q.eg.Go(func() error {
			q.loop(ctx, handler)
			return nil
		})
	}
	return nil
}

func (q *InlineQueue) loop(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			if err := handler.Handle(ctx, task); err != nil {
				q.logger.Error(
					"[jdelivery] failed to handle dispatch task",
					zap.Error(err),
					zap.String("job_id", task.JobId),
					zap.String("method_id", task.MethodId),
				)
			}
		}
	}
}

// Stop 停止 worker 并等待正在处理的任务结束。
// 未处理的任务会被丢弃，对应方法将在下一次推进时按超时重新派发。
func (q *InlineQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return
	}
	q.cancel()
	_ = q.eg.Wait()
	q.started = false
}

func NewInlineQueue(size, concurrency int, logger *zap.Logger) *InlineQueue {
	if size <= 0 {
		size = 1024
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &InlineQueue{
		tasks:       make(chan Task, size),
		concurrency: concurrency,
		logger:      logger,
	}
}
