package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
)

// Init 初始化新建 job：写入 created 事件并推导初始状态。
func (j *DeliveryJob) Init(now time.Time) error {
	if err := j.Validate(); err != nil {
		return err
	}

	j.CreatedAt = now.UTC()
	j.UpdatedAt = j.CreatedAt
	j.History = nil
	j.CommittedSeq = 0
	for i := range j.Methods {
		if j.Methods[i].ProofFiles == nil {
			j.Methods[i].ProofFiles = []string{}
		}
		if j.Methods[i].RequiredFields == nil {
			j.Methods[i].RequiredFields = []string{}
		}
	}

	return j.appendAndRecompute(DeliveryHistory{
		DeliveryMethodId: j.PriorityOrder[0],
		Event:            HistoryEventCreated,
		Actor:            j.CreatedBy,
		Timestamp:        now,
	})
}

// RecordAttempt 记录一次投递尝试：PENDING -> ATTEMPTED，或 ATTEMPTED 保持不变并累加尝试次数。
func (j *DeliveryJob) RecordAttempt(methodId string, p AttemptPayload, now time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return j.attempt(methodId, p.Actor, p, false, now)
}

// Dispatch 引擎发起一次投递，事件由 system 写入。
func (j *DeliveryJob) Dispatch(methodId string, now time.Time) error {
	return j.attempt(methodId, ActorSystem, AttemptPayload{AttemptAt: now}, true, now)
}

func (j *DeliveryJob) attempt(methodId, actor string, p AttemptPayload, dispatch bool, now time.Time) error {
	m, late, err := j.callbackTarget(methodId)
	if err != nil {
		return err
	}

	meta := p.metadata()
	if dispatch {
		meta[MetaDispatch] = true
	}
	if late {
		return j.appendLate(methodId, HistoryEventAttempt, actor, meta, now)
	}

	if !m.Status.CanMoveTo(MethodStatusAttempted) {
		return fmt.Errorf("%w: method %s is %s, cannot be attempted", errs.ErrInvalidTransition, m.Id, m.Status)
	}

	if p.TrackingNumber != "" {
		m.TrackingNumber = p.TrackingNumber
	}
	m.addProofFiles(p.ProofFileIds)

	if m.Status == MethodStatusPending {
		if unresolved := m.UnresolvedFields(); len(unresolved) > 0 {
			return fmt.Errorf(
				"%w: method %s has unresolved required fields [%s]",
				errs.ErrInvalidTransition, m.Id, strings.Join(unresolved, ", "),
			)
		}
	}

	return j.appendAndRecompute(DeliveryHistory{
		DeliveryMethodId: methodId,
		Event:            HistoryEventAttempt,
		Actor:            actor,
		Timestamp:        now,
		Metadata:         meta,
	})
}

// RecordConfirm 记录送达确认，方法必须处于 ATTEMPTED。
func (j *DeliveryJob) RecordConfirm(methodId string, p ConfirmPayload, now time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m, late, err := j.callbackTarget(methodId)
	if err != nil {
		return err
	}
	if late {
		return j.appendLate(methodId, HistoryEventConfirm, p.Actor, p.metadata(), now)
	}

	if m.Status != MethodStatusAttempted {
		return fmt.Errorf("%w: method %s is %s, cannot be confirmed", errs.ErrInvalidTransition, m.Id, m.Status)
	}
	m.addProofFiles(p.ProofFileIds)

	return j.appendAndRecompute(DeliveryHistory{
		DeliveryMethodId: methodId,
		Event:            HistoryEventConfirm,
		Actor:            p.Actor,
		Timestamp:        now,
		Metadata:         p.metadata(),
	})
}

// RecordFail 记录一次投递失败。
// 失败次数达到 maxAttempts 时方法永久失败（事件 final = true），否则保持 ATTEMPTED 等待重试。
func (j *DeliveryJob) RecordFail(methodId string, p FailPayload, maxAttempts int32, now time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m, late, err := j.callbackTarget(methodId)
	if err != nil {
		return err
	}
	if late {
		return j.appendLate(methodId, HistoryEventFail, p.Actor, p.metadata(), now)
	}

	if m.Status != MethodStatusAttempted {
		return fmt.Errorf("%w: method %s is %s, cannot be failed", errs.ErrInvalidTransition, m.Id, m.Status)
	}

	failures := m.Failures + 1
	meta := p.metadata()
	meta[MetaFailures] = failures
	meta[MetaFinal] = failures >= max(maxAttempts, 1)

	return j.appendAndRecompute(DeliveryHistory{
		DeliveryMethodId: methodId,
		Event:            HistoryEventFail,
		Actor:            p.Actor,
		Timestamp:        now,
		Metadata:         meta,
	})
}

// FailUnresolved 必填字段无法解析的 PENDING 方法直接永久失败，回退链继续向后推进。
func (j *DeliveryJob) FailUnresolved(methodId string, unresolved []string, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", errs.ErrJobTerminal, j.Id, j.Status)
	}

	m := j.Method(methodId)
	if m == nil {
		return fmt.Errorf("%w: method id = %q", errs.ErrUnknownMethod, methodId)
	}
	if m.Status != MethodStatusPending {
		return fmt.Errorf("%w: method %s is %s", errs.ErrInvalidTransition, m.Id, m.Status)
	}

	return j.appendAndRecompute(DeliveryHistory{
		DeliveryMethodId: methodId,
		Event:            HistoryEventFail,
		Actor:            ActorSystem,
		Timestamp:        now,
		Metadata: map[string]any{
			MetaReason:     "required field unresolved",
			MetaUnresolved: unresolved,
			MetaFailures:   m.Failures + 1,
			MetaFinal:      true,
		},
	})
}

// Cancel 取消 job，只允许在非终态执行。
func (j *DeliveryJob) Cancel(actor string, now time.Time) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: cancel actor should not be empty", errs.ErrValidation)
	}
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", errs.ErrJobTerminal, j.Id, j.Status)
	}

	// job 级事件关联到当前回退链头部
	methodId := j.PriorityOrder[len(j.PriorityOrder)-1]
	if head := j.Head(); head != nil {
		methodId = head.Id
	}

	return j.appendAndRecompute(DeliveryHistory{
		DeliveryMethodId: methodId,
		Event:            HistoryEventCancel,
		Actor:            actor,
		Timestamp:        now,
	})
}

// callbackTarget 校验回调目标。
// 已取消的 job 返回 late = true，回调只写入审计日志；已完成或已失败的 job 拒绝回调。
func (j *DeliveryJob) callbackTarget(methodId string) (*DeliveryMethod, bool, error) {
	m := j.Method(methodId)
	if m == nil {
		return nil, false, fmt.Errorf("%w: method id = %q", errs.ErrUnknownMethod, methodId)
	}

	switch j.Status {
	case DeliveryStatusCancelled:
		return m, true, nil
	case DeliveryStatusCompleted, DeliveryStatusFailed:
		return nil, false, fmt.Errorf("%w: job %s is %s", errs.ErrJobTerminal, j.Id, j.Status)
	}
	return m, false, nil
}

func (j *DeliveryJob) appendLate(methodId string, event HistoryEvent, actor string, meta map[string]any, now time.Time) error {
	meta[MetaLate] = true
	return j.appendAndRecompute(DeliveryHistory{
		DeliveryMethodId: methodId,
		Event:            event,
		Actor:            actor,
		Timestamp:        now,
		Metadata:         meta,
	})
}

func (j *DeliveryJob) appendAndRecompute(h DeliveryHistory) error {
	ledger := NewLedger(j.MethodIds(), j.History)
	if _, err := ledger.Append(h); err != nil {
		return err
	}

	j.History = ledger.Events()
	j.UpdatedAt = laterOf(h.Timestamp, j.UpdatedAt)
	j.Recompute()
	return nil
}

func laterOf(ts, updatedAt time.Time) time.Time {
	ts = ts.UTC()
	if ts.Before(updatedAt) {
		return updatedAt
	}
	return ts
}
