package repository

import (
	"context"
	"errors"
	"time"

	"github.com/JrMarcco/easy-kit/slice"
	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/pkg/xsql"
	"github.com/JrMarcco/jdelivery/internal/repository/cache"
	"github.com/JrMarcco/jdelivery/internal/repository/dao"
	"go.uber.org/zap"
)

// DeliveryJobRepo job 存储。
//
// Load 与 Commit 组成引擎的读改写周期，Get 为带缓存的只读查询。
type DeliveryJobRepo interface {
	Create(ctx context.Context, job domain.DeliveryJob) (domain.DeliveryJob, error)
	Load(ctx context.Context, id string) (domain.DeliveryJob, error)
	Get(ctx context.Context, id string) (domain.DeliveryJob, error)
	// Commit 以 expectedVersion 为条件原子写入 job 状态与新事件，返回提交后的 job。
	Commit(ctx context.Context, job domain.DeliveryJob, expectedVersion int64) (domain.DeliveryJob, error)
	// FindActive 按 id 升序分页查询分区内需要推进的 job
	FindActive(ctx context.Context, partition uint64, afterId string, limit int) ([]string, error)
	History(ctx context.Context, id string, from, to time.Time) ([]domain.DeliveryHistory, error)
	// List 按条件查询 job，结果与 Get 一致走缓存。
	List(ctx context.Context, filter domain.JobFilter) ([]domain.DeliveryJob, error)
}

var _ DeliveryJobRepo = (*DefaultDeliveryJobRepo)(nil)

type DefaultDeliveryJobRepo struct {
	dao        dao.DeliveryJobDAO
	localCache cache.DeliveryJobCache
	redisCache cache.DeliveryJobCache
	logger     *zap.Logger
}

func (r *DefaultDeliveryJobRepo) Create(ctx context.Context, job domain.DeliveryJob) (domain.DeliveryJob, error) {
	job.Version = 1
	if err := r.dao.Insert(ctx, r.toEntity(job, job.History)); err != nil {
		return domain.DeliveryJob{}, err
	}

	job.CommittedSeq = lastSeq(job.History)
	r.refreshCache(ctx, job)
	return job, nil
}

func (r *DefaultDeliveryJobRepo) Load(ctx context.Context, id string) (domain.DeliveryJob, error) {
	agg, err := r.dao.GetById(ctx, id)
	if err != nil {
		return domain.DeliveryJob{}, err
	}
	return r.toDomain(agg), nil
}

func (r *DefaultDeliveryJobRepo) Get(ctx context.Context, id string) (domain.DeliveryJob, error) {
	// 从本地缓存获取
	job, err := r.localCache.Get(ctx, id)
	if err == nil {
		return job, nil
	}

	// 从 redis 获取
	job, err = r.redisCache.Get(ctx, id)
	if err == nil {
		// 刷新本地缓存
		if lcErr := r.localCache.Set(ctx, job); lcErr != nil {
			r.logger.Error("[jdelivery] failed to refresh delivery job local cache", zap.Error(lcErr), zap.String("job_id", id))
		}
		return job, nil
	}

	job, err = r.Load(ctx, id)
	if err != nil {
		return domain.DeliveryJob{}, err
	}
	r.refreshCache(ctx, job)
	return job, nil
}

func (r *DefaultDeliveryJobRepo) Commit(
	ctx context.Context, job domain.DeliveryJob, expectedVersion int64,
) (domain.DeliveryJob, error) {
	newEvents := job.NewEvents()
	if err := r.dao.Commit(ctx, r.toEntity(job, newEvents), expectedVersion, r.toHistoryEntities(job.Id, newEvents)); err != nil {
		return domain.DeliveryJob{}, err
	}

	job.Version = expectedVersion + 1
	job.CommittedSeq = lastSeq(job.History)
	r.refreshCache(ctx, job)
	return job, nil
}

func (r *DefaultDeliveryJobRepo) FindActive(
	ctx context.Context, partition uint64, afterId string, limit int,
) ([]string, error) {
	statuses := slice.Map(domain.ActiveStatuses(), func(_ int, s domain.DeliveryStatus) string {
		return s.String()
	})
	return r.dao.FindActiveIds(ctx, partition, statuses, afterId, limit)
}

func (r *DefaultDeliveryJobRepo) History(
	ctx context.Context, id string, from, to time.Time,
) ([]domain.DeliveryHistory, error) {
	entities, err := r.dao.FindHistory(ctx, id, toMicro(from), toMicro(to))
	if err != nil {
		return nil, err
	}
	history := slice.Map(entities, func(_ int, e dao.DeliveryHistory) domain.DeliveryHistory {
		return r.toHistoryDomain(e)
	})
	domain.SortHistory(history)
	return history, nil
}

func (r *DefaultDeliveryJobRepo) List(ctx context.Context, filter domain.JobFilter) ([]domain.DeliveryJob, error) {
	ids, err := r.dao.FindIds(ctx, dao.JobFilter{
		CaseId:    filter.CaseId,
		CreatedBy: filter.CreatedBy,
		Status:    filter.Status.String(),
		Offset:    filter.Offset,
		Limit:     filter.Limit,
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.DeliveryJob, 0, len(ids))
	for _, id := range ids {
		job, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *DefaultDeliveryJobRepo) refreshCache(ctx context.Context, job domain.DeliveryJob) {
	// 先刷新本地缓存（本地缓存几乎不会出错）
	if lcErr := r.localCache.Set(ctx, job); lcErr != nil {
		r.logger.Error("[jdelivery] failed to refresh delivery job local cache", zap.Error(lcErr), zap.String("job_id", job.Id))
	}
	// 刷新 redis 缓存
	if rcErr := r.redisCache.Set(ctx, job); rcErr != nil {
		r.logger.Error("[jdelivery] failed to refresh delivery job redis cache", zap.Error(rcErr), zap.String("job_id", job.Id))
	}
}

func (r *DefaultDeliveryJobRepo) toEntity(job domain.DeliveryJob, history []domain.DeliveryHistory) dao.JobAggregate {
	updatedAt := job.UpdatedAt.UnixMicro()

	methods := make([]dao.DeliveryMethod, 0, len(job.Methods))
	for _, id := range job.PriorityOrder {
		m := job.Method(id)
		if m == nil {
			continue
		}
		methods = append(methods, dao.DeliveryMethod{
			JobId:     job.Id,
			MethodId:  m.Id,
			Position:  len(methods),
			Type:      m.Type.String(),
			Detail:    xsql.JsonColumnOf(toMethodDetail(*m)),
			Status:    m.Status.String(),
			CreatedAt: job.CreatedAt.UnixMicro(),
			UpdatedAt: updatedAt,
		})
	}

	return dao.JobAggregate{
		Job: dao.DeliveryJob{
			Id:            job.Id,
			CaseId:        job.CaseId,
			CreatedBy:     job.CreatedBy,
			PriorityOrder: xsql.JsonColumnOf(job.PriorityOrder),
			Status:        job.Status.String(),
			Notes:         job.Notes,
			PartitionNo:   job.Partition,
			Version:       job.Version,
			CreatedAt:     job.CreatedAt.UnixMicro(),
			UpdatedAt:     updatedAt,
		},
		Methods: methods,
		History: r.toHistoryEntities(job.Id, history),
	}
}

func (r *DefaultDeliveryJobRepo) toHistoryEntities(jobId string, history []domain.DeliveryHistory) []dao.DeliveryHistory {
	return slice.Map(history, func(_ int, h domain.DeliveryHistory) dao.DeliveryHistory {
		entity := dao.DeliveryHistory{
			Id:        h.Id,
			JobId:     jobId,
			Seq:       h.Seq,
			MethodId:  h.DeliveryMethodId,
			Event:     h.Event.String(),
			Actor:     h.Actor,
			Timestamp: h.Timestamp.UnixMicro(),
			CreatedAt: time.Now().UnixMicro(),
		}
		if len(h.Metadata) > 0 {
			entity.Metadata = xsql.JsonColumnOf(h.Metadata)
		}
		return entity
	})
}

func (r *DefaultDeliveryJobRepo) toDomain(agg dao.JobAggregate) domain.DeliveryJob {
	job := domain.DeliveryJob{
		Id:            agg.Job.Id,
		CaseId:        agg.Job.CaseId,
		CreatedBy:     agg.Job.CreatedBy,
		CreatedAt:     time.UnixMicro(agg.Job.CreatedAt).UTC(),
		PriorityOrder: agg.Job.PriorityOrder.Val,
		Status:        domain.DeliveryStatus(agg.Job.Status),
		Notes:         agg.Job.Notes,
		Partition:     agg.Job.PartitionNo,
		Version:       agg.Job.Version,
		UpdatedAt:     time.UnixMicro(agg.Job.UpdatedAt).UTC(),
	}
	if job.PriorityOrder == nil {
		job.PriorityOrder = []string{}
	}

	job.Methods = slice.Map(agg.Methods, func(_ int, e dao.DeliveryMethod) domain.DeliveryMethod {
		return toMethodDomain(e)
	})
	job.History = slice.Map(agg.History, func(_ int, e dao.DeliveryHistory) domain.DeliveryHistory {
		return r.toHistoryDomain(e)
	})
	domain.SortHistory(job.History)
	job.CommittedSeq = lastSeq(job.History)

	// 存储中的状态字段只是冗余，以 history 推导为准
	job.Recompute()
	return job
}

func (r *DefaultDeliveryJobRepo) toHistoryDomain(e dao.DeliveryHistory) domain.DeliveryHistory {
	h := domain.DeliveryHistory{
		Id:               e.Id,
		DeliveryMethodId: e.MethodId,
		Event:            domain.HistoryEvent(e.Event),
		Actor:            e.Actor,
		Timestamp:        time.UnixMicro(e.Timestamp).UTC(),
		Seq:              e.Seq,
	}
	if e.Metadata.Valid {
		h.Metadata = e.Metadata.Val
	}
	return h
}

func toMethodDetail(m domain.DeliveryMethod) dao.MethodDetail {
	detail := dao.MethodDetail{
		RecipientName:   m.RecipientName,
		Email:           m.RecipientContact.Email,
		Phone:           m.RecipientContact.Phone,
		Address:         m.RecipientContact.Address,
		ServiceProvider: m.ServiceProvider,
		TrackingNumber:  m.TrackingNumber,
		CertifiedNumber: m.CertifiedNumber,
		ProofFiles:      m.ProofFiles,
		Instructions:    m.Instructions,
		CostEstimate:    m.CostEstimate,
		Currency:        m.Currency,
		RequiredFields:  m.RequiredFields,
	}
	if m.ScheduledAt != nil {
		detail.ScheduledAt = m.ScheduledAt.UnixMicro()
	}
	return detail
}

func toMethodDomain(e dao.DeliveryMethod) domain.DeliveryMethod {
	detail := e.Detail.Val
	m := domain.DeliveryMethod{
		Id:            e.MethodId,
		Type:          domain.MethodType(e.Type),
		RecipientName: detail.RecipientName,
		RecipientContact: domain.RecipientContact{
			Email:   detail.Email,
			Phone:   detail.Phone,
			Address: detail.Address,
		},
		ServiceProvider: detail.ServiceProvider,
		TrackingNumber:  detail.TrackingNumber,
		CertifiedNumber: detail.CertifiedNumber,
		ProofFiles:      detail.ProofFiles,
		Instructions:    detail.Instructions,
		CostEstimate:    detail.CostEstimate,
		Currency:        detail.Currency,
		RequiredFields:  detail.RequiredFields,
		Status:          domain.MethodStatus(e.Status),
	}
	if m.ProofFiles == nil {
		m.ProofFiles = []string{}
	}
	if m.RequiredFields == nil {
		m.RequiredFields = []string{}
	}
	if detail.ScheduledAt > 0 {
		at := time.UnixMicro(detail.ScheduledAt).UTC()
		m.ScheduledAt = &at
	}
	return m
}

func lastSeq(history []domain.DeliveryHistory) int64 {
	var seq int64
	for _, h := range history {
		seq = max(seq, h.Seq)
	}
	return seq
}

func toMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func NewDefaultDeliveryJobRepo(
	dao dao.DeliveryJobDAO,
	localCache cache.DeliveryJobCache,
	redisCache cache.DeliveryJobCache,
	logger *zap.Logger,
) *DefaultDeliveryJobRepo {
	return &DefaultDeliveryJobRepo{
		dao:        dao,
		localCache: localCache,
		redisCache: redisCache,
		logger:     logger,
	}
}
