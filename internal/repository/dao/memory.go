package dao

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/JrMarcco/jdelivery/internal/errs"
)

var _ DeliveryJobDAO = (*MemoryDeliveryJobDAO)(nil)

// MemoryDeliveryJobDAO 进程内实现，用于单机部署与测试。
// 语义与数据库实现一致：版本号乐观锁、history 只追加。
type MemoryDeliveryJobDAO struct {
	mu   sync.RWMutex
	jobs map[string]JobAggregate
}

func (d *MemoryDeliveryJobDAO) Insert(_ context.Context, agg JobAggregate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.jobs[agg.Job.Id]; ok {
		return fmt.Errorf("%w: delivery job %s already exists", errs.ErrValidation, agg.Job.Id)
	}
	d.jobs[agg.Job.Id] = cloneAggregate(agg)
	return nil
}

func (d *MemoryDeliveryJobDAO) GetById(_ context.Context, id string) (JobAggregate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agg, ok := d.jobs[id]
	if !ok {
		return JobAggregate{}, fmt.Errorf("%w: delivery job id = %s", errs.ErrNotFound, id)
	}
	return cloneAggregate(agg), nil
}

func (d *MemoryDeliveryJobDAO) Commit(
	_ context.Context, agg JobAggregate, expectedVersion int64, newHistory []DeliveryHistory,
) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored, ok := d.jobs[agg.Job.Id]
	if !ok {
		return fmt.Errorf("%w: delivery job id = %s", errs.ErrNotFound, agg.Job.Id)
	}
	if stored.Job.Version != expectedVersion {
		return fmt.Errorf("%w: delivery job %s version %d is stale", errs.ErrConflict, agg.Job.Id, expectedVersion)
	}

	seqs := make(map[int64]struct{}, len(stored.History))
	for _, h := range stored.History {
		seqs[h.Seq] = struct{}{}
	}
	for _, h := range newHistory {
		if _, dup := seqs[h.Seq]; dup {
			return fmt.Errorf("%w: delivery job %s history seq already committed", errs.ErrConflict, agg.Job.Id)
		}
	}

	job := stored.Job
	job.Status = agg.Job.Status
	job.Notes = agg.Job.Notes
	job.Version = expectedVersion + 1
	job.UpdatedAt = agg.Job.UpdatedAt
	stored.Job = job

	methods := slices.Clone(stored.Methods)
	for _, m := range agg.Methods {
		for i := range methods {
			if methods[i].MethodId == m.MethodId {
				methods[i].Status = m.Status
				methods[i].Detail = m.Detail
				methods[i].UpdatedAt = m.UpdatedAt
			}
		}
	}
	stored.Methods = methods
	stored.History = append(slices.Clone(stored.History), newHistory...)

	d.jobs[agg.Job.Id] = cloneAggregate(stored)
	return nil
}

func (d *MemoryDeliveryJobDAO) FindActiveIds(
	_ context.Context, partitionNo uint64, statuses []string, afterId string, limit int,
) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	jobs := make([]DeliveryJob, 0, len(d.jobs))
	for _, agg := range d.jobs {
		if agg.Job.PartitionNo == partitionNo && agg.Job.Id > afterId && slices.Contains(statuses, agg.Job.Status) {
			jobs = append(jobs, agg.Job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Id < jobs[j].Id
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.Id)
	}
	return ids, nil
}

func (d *MemoryDeliveryJobDAO) FindHistory(_ context.Context, jobId string, from, to int64) ([]DeliveryHistory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agg, ok := d.jobs[jobId]
	if !ok {
		return []DeliveryHistory{}, nil
	}

	res := make([]DeliveryHistory, 0, len(agg.History))
	for _, h := range agg.History {
		if from > 0 && h.Timestamp < from {
			continue
		}
		if to > 0 && h.Timestamp >= to {
			continue
		}
		res = append(res, h)
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Timestamp != res[j].Timestamp {
			return res[i].Timestamp < res[j].Timestamp
		}
		return res[i].Seq < res[j].Seq
	})
	return res, nil
}

func (d *MemoryDeliveryJobDAO) FindIds(_ context.Context, filter JobFilter) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	jobs := make([]DeliveryJob, 0, len(d.jobs))
	for _, agg := range d.jobs {
		job := agg.Job
		if filter.CaseId != "" && job.CaseId != filter.CaseId {
			continue
		}
		if filter.CreatedBy != "" && job.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt != jobs[j].CreatedAt {
			return jobs[i].CreatedAt > jobs[j].CreatedAt
		}
		return jobs[i].Id > jobs[j].Id
	})

	ids := make([]string, 0, filter.Limit)
	for i := filter.Offset; i < len(jobs) && (filter.Limit <= 0 || len(ids) < filter.Limit); i++ {
		ids = append(ids, jobs[i].Id)
	}
	return ids, nil
}

func cloneAggregate(agg JobAggregate) JobAggregate {
	cp := JobAggregate{
		Job:     agg.Job,
		Methods: slices.Clone(agg.Methods),
		History: slices.Clone(agg.History),
	}
	cp.Job.PriorityOrder.Val = slices.Clone(agg.Job.PriorityOrder.Val)
	for i := range cp.Methods {
		detail := cp.Methods[i].Detail.Val
		detail.ProofFiles = slices.Clone(detail.ProofFiles)
		detail.RequiredFields = slices.Clone(detail.RequiredFields)
		cp.Methods[i].Detail.Val = detail
	}
	return cp
}

func NewMemoryDeliveryJobDAO() *MemoryDeliveryJobDAO {
	return &MemoryDeliveryJobDAO{
		jobs: make(map[string]JobAggregate),
	}
}
