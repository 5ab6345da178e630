package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/repository"
	"github.com/JrMarcco/jdelivery/internal/service/adapter"
	"go.uber.org/zap"
)

// Handler 派发任务处理器
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

var _ Handler = (*Worker)(nil)

// Worker 执行派发任务：调用渠道适配器，并把结果回写引擎。
// 调用适配器时不持有任何锁，也不占用 job 的版本。
type Worker struct {
	repo        repository.DeliveryJobRepo
	registry    *adapter.Registry
	reporter    Reporter
	sendTimeout time.Duration
	logger      *zap.Logger
}

// Handle 返回 error 表示任务需要重新投递（asynq 模式下会按队列策略重试）。
func (w *Worker) Handle(ctx context.Context, task Task) error {
	job, err := w.repo.Load(ctx, task.JobId)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			w.logger.Warn("[jdelivery] dispatch task references missing job", zap.String("job_id", task.JobId))
			return nil
		}
		return err
	}

	m := job.Method(task.MethodId)
	if !w.inFlight(job, m, task) {
		w.logger.Info(
			"[jdelivery] stale dispatch task dropped",
			zap.String("job_id", task.JobId),
			zap.String("method_id", task.MethodId),
			zap.Int64("seq", task.Seq),
		)
		return nil
	}

	a, err := w.registry.Get(m.Type)
	if err != nil {
		return w.reportFail(ctx, task, domain.ActorSystem, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	payload, err := a.Send(sendCtx, job, *m)
	cancel()
	if err != nil {
		return w.reportFail(ctx, task, a.Name(), err)
	}

	if payload.Actor == "" {
		payload.Actor = a.Name()
	}
	_, err = w.reporter.RecordAttempt(ctx, task.JobId, task.MethodId, payload)
	return w.settle(task, err)
}

// inFlight 判断任务对应的派发是否仍在等待结果
func (w *Worker) inFlight(job domain.DeliveryJob, m *domain.DeliveryMethod, task Task) bool {
	if job.Status.IsTerminal() || m == nil {
		return false
	}
	if m.Status != domain.MethodStatusAttempted || !m.AwaitingOutcome {
		return false
	}

	for i := len(job.History) - 1; i >= 0; i-- {
		h := job.History[i]
		if h.DeliveryMethodId != task.MethodId || h.Event != domain.HistoryEventAttempt {
			continue
		}
		if dispatched, _ := h.Metadata[domain.MetaDispatch].(bool); dispatched {
			return h.Seq == task.Seq
		}
	}
	return false
}

func (w *Worker) reportFail(ctx context.Context, task Task, actor string, cause error) error {
	w.logger.Warn(
		"[jdelivery] delivery method send failed",
		zap.String("job_id", task.JobId),
		zap.String("method_id", task.MethodId),
		zap.Error(cause),
	)

	_, err := w.reporter.RecordFail(ctx, task.JobId, task.MethodId, domain.FailPayload{
		Actor:    actor,
		FailedAt: time.Now().UTC(),
		Reason:   cause.Error(),
	})
	return w.settle(task, err)
}

// settle 回写时遇到终态或者状态已经变化，说明结果已经没有意义，直接丢弃。
func (w *Worker) settle(task Task, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errs.ErrJobTerminal) || errors.Is(err, errs.ErrInvalidTransition) {
		w.logger.Info(
			"[jdelivery] dispatch result dropped",
			zap.String("job_id", task.JobId),
			zap.String("method_id", task.MethodId),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func NewWorker(
	repo repository.DeliveryJobRepo,
	registry *adapter.Registry,
	reporter Reporter,
	sendTimeout time.Duration,
	logger *zap.Logger,
) *Worker {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Worker{
		repo:        repo,
		registry:    registry,
		reporter:    reporter,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}
