package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
)

// DeliveryStatus 送达任务聚合状态
type DeliveryStatus string

const (
	DeliveryStatusCreated          DeliveryStatus = "CREATED"
	DeliveryStatusPending          DeliveryStatus = "PENDING"
	DeliveryStatusPartialCompleted DeliveryStatus = "PARTIAL_COMPLETED"
	DeliveryStatusCompleted        DeliveryStatus = "COMPLETED"
	DeliveryStatusFailed           DeliveryStatus = "FAILED"
	DeliveryStatusCancelled        DeliveryStatus = "CANCELLED"
)

func (s DeliveryStatus) String() string {
	return string(s)
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusCompleted || s == DeliveryStatusFailed || s == DeliveryStatusCancelled
}

func (s DeliveryStatus) Validate() bool {
	switch s {
	case DeliveryStatusCreated, DeliveryStatusPending, DeliveryStatusPartialCompleted,
		DeliveryStatusCompleted, DeliveryStatusFailed, DeliveryStatusCancelled:
		return true
	}
	return false
}

// ActiveStatuses 需要调度推进的状态
func ActiveStatuses() []DeliveryStatus {
	return []DeliveryStatus{DeliveryStatusCreated, DeliveryStatusPending, DeliveryStatusPartialCompleted}
}

// DeliveryJob 送达任务（一个案件的一次送达流程）领域对象。
//
// Status 永远由 Methods 与 History 推导，只能通过本文件中的转换方法修改。
type DeliveryJob struct {
	Id            string            `json:"id"`
	CaseId        string            `json:"caseId"`
	CreatedBy     string            `json:"createdBy"`
	CreatedAt     time.Time         `json:"createdAt"`
	Methods       []DeliveryMethod  `json:"methods"`
	PriorityOrder []string          `json:"priorityOrder"`
	Status        DeliveryStatus    `json:"status"`
	History       []DeliveryHistory `json:"history"`
	Notes         string            `json:"notes,omitempty"`
	Partition     uint64            `json:"partition"`
	Version       int64             `json:"version"`
	UpdatedAt     time.Time         `json:"updatedAt"`

	// CommittedSeq 已持久化的最大事件 seq，大于它的事件为本次待写入的新事件
	CommittedSeq int64 `json:"-"`
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// JobFilter job 列表查询条件，空值表示不过滤，结果按创建时间倒序。
type JobFilter struct {
	CaseId    string
	CreatedBy string
	Status    DeliveryStatus
	Offset    int
	Limit     int
}

// Normalize 校验并补全分页参数
func (f JobFilter) Normalize() (JobFilter, error) {
	if f.Status != "" && !f.Status.Validate() {
		return JobFilter{}, fmt.Errorf("%w: invalid job status %q", errs.ErrValidation, f.Status)
	}
	if f.Offset < 0 {
		return JobFilter{}, fmt.Errorf("%w: offset should not be negative", errs.ErrValidation)
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	return f, nil
}

func (j *DeliveryJob) Validate() error {
	if strings.TrimSpace(j.CaseId) == "" {
		return fmt.Errorf("%w: case id should not be empty", errs.ErrValidation)
	}

	if strings.TrimSpace(j.CreatedBy) == "" {
		return fmt.Errorf("%w: created by should not be empty", errs.ErrValidation)
	}

	if len(j.Methods) == 0 {
		return fmt.Errorf("%w: methods should not be empty", errs.ErrValidation)
	}

	ids := make(map[string]struct{}, len(j.Methods))
	for _, m := range j.Methods {
		if err := m.Validate(); err != nil {
			return err
		}
		if _, ok := ids[m.Id]; ok {
			return fmt.Errorf("%w: duplicated method id %q", errs.ErrValidation, m.Id)
		}
		ids[m.Id] = struct{}{}
	}

	return ValidatePriorityOrder(ids, j.PriorityOrder)
}

// ValidatePriorityOrder 校验 priorityOrder 是否为方法 id 的一个排列
func ValidatePriorityOrder(ids map[string]struct{}, order []string) error {
	if len(order) != len(ids) {
		return fmt.Errorf(
			"%w: priority order has %d entries, expected %d", errs.ErrValidation, len(order), len(ids),
		)
	}

	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("%w: priority order references unknown method %q", errs.ErrValidation, id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: priority order repeats method %q", errs.ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (j *DeliveryJob) MethodIds() []string {
	ids := make([]string, 0, len(j.Methods))
	for _, m := range j.Methods {
		ids = append(ids, m.Id)
	}
	return ids
}

// Method 按 id 获取方法，返回指向 Methods 元素的指针。
func (j *DeliveryJob) Method(id string) *DeliveryMethod {
	for i := range j.Methods {
		if j.Methods[i].Id == id {
			return &j.Methods[i]
		}
	}
	return nil
}

// Head 返回回退链当前的头部方法，即 priorityOrder 中第一个未失败的方法。
// 全部失败时返回 nil。
func (j *DeliveryJob) Head() *DeliveryMethod {
	for _, id := range j.PriorityOrder {
		m := j.Method(id)
		if m != nil && m.Status != MethodStatusFailed {
			return m
		}
	}
	return nil
}

// IsCancelled 判断 history 中是否存在取消事件
func (j *DeliveryJob) IsCancelled() bool {
	return slices.ContainsFunc(j.History, func(h DeliveryHistory) bool {
		return h.Event == HistoryEventCancel
	})
}

// Recompute 根据完整 history 重新推导每个方法的状态与 job 状态。
// 对同一份数据重复调用结果一致。
func (j *DeliveryJob) Recompute() {
	for i := range j.Methods {
		j.Methods[i].resetDerived()
	}

	// 已派发但适配器尚未上报的方法，上报与派发算作同一次投递
	unreported := make(map[string]bool, len(j.Methods))
	cancelled := false
	for _, h := range j.History {
		switch h.Event {
		case HistoryEventCreated:
			continue
		case HistoryEventCancel:
			cancelled = true
			continue
		}

		// 取消之后到达的事件只做审计，不影响状态
		if cancelled || h.IsLate() {
			continue
		}

		m := j.Method(h.DeliveryMethodId)
		if m == nil || m.Status.IsTerminal() {
			continue
		}

		switch h.Event {
		case HistoryEventAttempt:
			m.Status = MethodStatusAttempted
			switch {
			case h.IsDispatch():
				m.Attempts++
				unreported[m.Id] = true
			case unreported[m.Id]:
				unreported[m.Id] = false
			default:
				m.Attempts++
			}
			m.AwaitingOutcome = true
			ts := h.Timestamp
			m.LastAttemptAt = &ts
		case HistoryEventConfirm:
			m.Status = MethodStatusConfirmed
			m.AwaitingOutcome = false
			unreported[m.Id] = false
		case HistoryEventFail:
			m.Failures++
			m.AwaitingOutcome = false
			unreported[m.Id] = false
			ts := h.Timestamp
			m.LastFailureAt = &ts
			if h.IsFinal() {
				m.Status = MethodStatusFailed
			}
		}
	}

	j.Status = j.deriveStatus(cancelled)
}

func (j *DeliveryJob) deriveStatus(cancelled bool) DeliveryStatus {
	if cancelled {
		return DeliveryStatusCancelled
	}

	head := j.Head()
	if head == nil {
		return DeliveryStatusFailed
	}

	if head.Status == MethodStatusConfirmed {
		return DeliveryStatusCompleted
	}

	for _, m := range j.Methods {
		if m.Status == MethodStatusConfirmed {
			return DeliveryStatusPartialCompleted
		}
	}

	for _, h := range j.History {
		if h.Event != HistoryEventCreated {
			return DeliveryStatusPending
		}
	}
	return DeliveryStatusCreated
}

// NewEvents 返回尚未持久化的事件
func (j *DeliveryJob) NewEvents() []DeliveryHistory {
	res := make([]DeliveryHistory, 0, 1)
	for _, h := range j.History {
		if h.Seq > j.CommittedSeq {
			res = append(res, h)
		}
	}
	return res
}

// Clone 深拷贝，引擎在副本上执行状态转换，失败时直接丢弃。
func (j DeliveryJob) Clone() DeliveryJob {
	cp := j
	cp.PriorityOrder = slices.Clone(j.PriorityOrder)
	cp.Methods = make([]DeliveryMethod, len(j.Methods))
	for i, m := range j.Methods {
		m.ProofFiles = slices.Clone(m.ProofFiles)
		m.RequiredFields = slices.Clone(m.RequiredFields)
		if m.ScheduledAt != nil {
			at := *m.ScheduledAt
			m.ScheduledAt = &at
		}
		if m.LastAttemptAt != nil {
			at := *m.LastAttemptAt
			m.LastAttemptAt = &at
		}
		if m.LastFailureAt != nil {
			at := *m.LastFailureAt
			m.LastFailureAt = &at
		}
		cp.Methods[i] = m
	}
	cp.History = make([]DeliveryHistory, len(j.History))
	for i, h := range j.History {
		if h.Metadata != nil {
			meta := make(map[string]any, len(h.Metadata))
			for k, v := range h.Metadata {
				meta[k] = v
			}
			h.Metadata = meta
		}
		cp.History[i] = h
	}
	return cp
}
