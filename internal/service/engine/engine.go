package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/pkg/sharding"
	"github.com/JrMarcco/jdelivery/internal/repository"
	"github.com/JrMarcco/jdelivery/internal/service/dispatch"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:generate mockgen -source=./engine.go -destination=./mock/engine.mock.go -package=enginemock
type Service interface {
	CreateJob(ctx context.Context, job domain.DeliveryJob) (domain.DeliveryJob, error)
	// Advance 推进一次 job：派发当前回退链头部的方法，或者推导出终态。
	Advance(ctx context.Context, jobId string) (domain.DeliveryJob, error)
	RecordAttempt(ctx context.Context, jobId, methodId string, p domain.AttemptPayload) (domain.DeliveryJob, error)
	RecordConfirm(ctx context.Context, jobId, methodId string, p domain.ConfirmPayload) (domain.DeliveryJob, error)
	RecordFail(ctx context.Context, jobId, methodId string, p domain.FailPayload) (domain.DeliveryJob, error)
	Cancel(ctx context.Context, jobId, actor string) (domain.DeliveryJob, error)
	GetJob(ctx context.Context, jobId string) (domain.DeliveryJob, error)
	History(ctx context.Context, jobId string, from, to time.Time) ([]domain.DeliveryHistory, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.DeliveryJob, error)
}

// Config 引擎配置
type Config struct {
	// MaxCommitRetries 版本冲突时 reload-reapply-commit 的最大重试次数
	MaxCommitRetries       uint64        `mapstructure:"max_commit_retries"`
	CommitRetryInterval    time.Duration `mapstructure:"commit_retry_interval"`
	CommitRetryMaxInterval time.Duration `mapstructure:"commit_retry_max_interval"`
}

var _ Service = (*DefaultEngine)(nil)
var _ dispatch.Reporter = (*DefaultEngine)(nil)

type DefaultEngine struct {
	repo     repository.DeliveryJobRepo
	enqueuer dispatch.Enqueuer
	sharding sharding.Strategy
	policies domain.RetryPolicies
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

func (e *DefaultEngine) CreateJob(ctx context.Context, job domain.DeliveryJob) (domain.DeliveryJob, error) {
	if job.Id == "" {
		job.Id = uuid.NewString()
	}
	job.Partition = e.sharding.Partition(job.Id)

	if err := job.Init(e.now()); err != nil {
		return domain.DeliveryJob{}, err
	}

	created, err := e.repo.Create(ctx, job)
	if err != nil {
		return domain.DeliveryJob{}, fmt.Errorf("[jdelivery] failed to create delivery job: %w", err)
	}

	e.logger.Info(
		"[jdelivery] delivery job created",
		zap.String("job_id", created.Id),
		zap.String("case_id", created.CaseId),
		zap.Int("methods", len(created.Methods)),
	)
	return created, nil
}

func (e *DefaultEngine) Advance(ctx context.Context, jobId string) (domain.DeliveryJob, error) {
	var task *dispatch.Task
	job, err := e.mutate(ctx, jobId, func(job *domain.DeliveryJob, now time.Time) error {
		task = nil
		methodId, err := e.advance(job, now)
		if err != nil || methodId == "" {
			return err
		}
		task = &dispatch.Task{
			JobId:    job.Id,
			MethodId: methodId,
			Seq:      job.History[len(job.History)-1].Seq,
		}
		return nil
	})
	if err != nil || task == nil {
		return job, err
	}

	// 状态已经持久化，派发失败按一次投递失败处理，方法进入退避等待下一次推进
	if enqErr := e.enqueuer.Enqueue(ctx, *task); enqErr != nil {
		e.logger.Error(
			"[jdelivery] failed to enqueue dispatch task",
			zap.Error(enqErr),
			zap.String("job_id", task.JobId),
			zap.String("method_id", task.MethodId),
		)
		return e.RecordFail(ctx, task.JobId, task.MethodId, domain.FailPayload{
			Actor:    domain.ActorSystem,
			FailedAt: e.now(),
			Reason:   fmt.Errorf("%w: %w", errs.ErrDispatchFailed, enqErr).Error(),
		})
	}

	e.logger.Info(
		"[jdelivery] delivery method dispatched",
		zap.String("job_id", task.JobId),
		zap.String("method_id", task.MethodId),
		zap.Int64("seq", task.Seq),
	)
	return job, nil
}

// advance 在 job 副本上执行一次推进，返回需要派发的方法 id。
func (e *DefaultEngine) advance(job *domain.DeliveryJob, now time.Time) (string, error) {
	switch job.Status {
	case domain.DeliveryStatusCompleted, domain.DeliveryStatusFailed:
		return "", nil
	case domain.DeliveryStatusCancelled:
		return "", fmt.Errorf("%w: job %s is %s", errs.ErrJobTerminal, job.Id, job.Status)
	}

	for {
		head := job.Head()
		if head == nil || head.Status == domain.MethodStatusConfirmed {
			// 状态已由 Recompute 推导为 FAILED / COMPLETED
			return "", nil
		}

		if head.Status == domain.MethodStatusAttempted {
			policy := e.policies.For(head.Type)
			if policy.TimedOut(*head, now) {
				// 等待结果超时记为一次失败，之后按重试策略处理
				err := job.RecordFail(head.Id, domain.FailPayload{
					Actor:    domain.ActorSystem,
					FailedAt: now,
					Reason:   "attempt timed out",
				}, policy.MaxAttempts, now)
				if err != nil {
					return "", err
				}
				continue
			}
			if !policy.Retryable(*head, now) {
				return "", nil
			}
			return head.Id, job.Dispatch(head.Id, now)
		}

		// PENDING
		if unresolved := head.UnresolvedFields(); len(unresolved) > 0 {
			if err := job.FailUnresolved(head.Id, unresolved, now); err != nil {
				return "", err
			}
			e.logger.Warn(
				"[jdelivery] delivery method failed with unresolved required fields",
				zap.String("job_id", job.Id),
				zap.String("method_id", head.Id),
				zap.Strings("fields", unresolved),
			)
			continue
		}
		if head.ScheduledAt != nil && now.Before(*head.ScheduledAt) {
			return "", nil
		}
		return head.Id, job.Dispatch(head.Id, now)
	}
}

func (e *DefaultEngine) RecordAttempt(
	ctx context.Context, jobId, methodId string, p domain.AttemptPayload,
) (domain.DeliveryJob, error) {
	return e.mutate(ctx, jobId, func(job *domain.DeliveryJob, now time.Time) error {
		return job.RecordAttempt(methodId, p, now)
	})
}

func (e *DefaultEngine) RecordConfirm(
	ctx context.Context, jobId, methodId string, p domain.ConfirmPayload,
) (domain.DeliveryJob, error) {
	job, err := e.mutate(ctx, jobId, func(job *domain.DeliveryJob, now time.Time) error {
		return job.RecordConfirm(methodId, p, now)
	})
	if err == nil && job.Status == domain.DeliveryStatusCompleted {
		e.logger.Info("[jdelivery] delivery job completed", zap.String("job_id", jobId), zap.String("method_id", methodId))
	}
	return job, err
}

func (e *DefaultEngine) RecordFail(
	ctx context.Context, jobId, methodId string, p domain.FailPayload,
) (domain.DeliveryJob, error) {
	job, err := e.mutate(ctx, jobId, func(job *domain.DeliveryJob, now time.Time) error {
		m := job.Method(methodId)
		if m == nil {
			return fmt.Errorf("%w: method id = %q", errs.ErrUnknownMethod, methodId)
		}
		return job.RecordFail(methodId, p, e.policies.For(m.Type).MaxAttempts, now)
	})
	if err == nil && job.Status == domain.DeliveryStatusFailed {
		e.logger.Warn("[jdelivery] delivery job failed, fallback chain exhausted", zap.String("job_id", jobId))
	}
	return job, err
}

func (e *DefaultEngine) Cancel(ctx context.Context, jobId, actor string) (domain.DeliveryJob, error) {
	job, err := e.mutate(ctx, jobId, func(job *domain.DeliveryJob, now time.Time) error {
		return job.Cancel(actor, now)
	})
	if err == nil {
		e.logger.Info("[jdelivery] delivery job cancelled", zap.String("job_id", jobId), zap.String("actor", actor))
	}
	return job, err
}

func (e *DefaultEngine) GetJob(ctx context.Context, jobId string) (domain.DeliveryJob, error) {
	return e.repo.Get(ctx, jobId)
}

func (e *DefaultEngine) History(
	ctx context.Context, jobId string, from, to time.Time,
) ([]domain.DeliveryHistory, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("%w: history range from should be before to", errs.ErrValidation)
	}
	if _, err := e.repo.Get(ctx, jobId); err != nil {
		return nil, err
	}
	return e.repo.History(ctx, jobId, from, to)
}

func (e *DefaultEngine) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.DeliveryJob, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, err
	}
	return e.repo.List(ctx, filter)
}

// mutate 执行一次 load -> apply -> commit。
// 版本冲突时重新加载并重放 apply，超过重试上限后返回 errs.ErrConflict。
// apply 返回的其他错误不会重试，且不会写入任何数据。
func (e *DefaultEngine) mutate(
	ctx context.Context, jobId string, apply func(job *domain.DeliveryJob, now time.Time) error,
) (domain.DeliveryJob, error) {
	var res domain.DeliveryJob
	retried := 0

	op := func() error {
		loaded, err := e.repo.Load(ctx, jobId)
		if err != nil {
			return backoff.Permanent(err)
		}

		next := loaded.Clone()
		if err = apply(&next, e.now()); err != nil {
			return backoff.Permanent(err)
		}
		if len(next.NewEvents()) == 0 {
			res = loaded
			return nil
		}

		res, err = e.repo.Commit(ctx, next, loaded.Version)
		if err != nil {
			if errors.Is(err, errs.ErrConflict) {
				retried++
				e.logger.Debug(
					"[jdelivery] delivery job commit conflict, reload and retry",
					zap.String("job_id", jobId),
					zap.Int64("expected_version", loaded.Version),
					zap.Int("retried", retried),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(e.commitBackOff(), ctx)); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			e.logger.Warn("[jdelivery] delivery job commit retries exhausted", zap.String("job_id", jobId), zap.Error(err))
		}
		return domain.DeliveryJob{}, err
	}
	return res, nil
}

func (e *DefaultEngine) commitBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.cfg.CommitRetryInterval
	eb.MaxInterval = e.cfg.CommitRetryMaxInterval
	// 重试次数由 WithMaxRetries 控制
	eb.MaxElapsedTime = 0
	return backoff.WithMaxRetries(eb, e.cfg.MaxCommitRetries)
}

func NewDefaultEngine(
	repo repository.DeliveryJobRepo,
	enqueuer dispatch.Enqueuer,
	sharding sharding.Strategy,
	policies domain.RetryPolicies,
	cfg Config,
	logger *zap.Logger,
) *DefaultEngine {
	if cfg.CommitRetryInterval <= 0 {
		cfg.CommitRetryInterval = 10 * time.Millisecond
	}
	if cfg.CommitRetryMaxInterval < cfg.CommitRetryInterval {
		cfg.CommitRetryMaxInterval = 20 * cfg.CommitRetryInterval
	}
	if cfg.MaxCommitRetries == 0 {
		cfg.MaxCommitRetries = 5
	}

	return &DefaultEngine{
		repo:     repo,
		enqueuer: enqueuer,
		sharding: sharding,
		policies: policies,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}
