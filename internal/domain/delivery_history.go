package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
)

// HistoryEvent 审计事件类型
type HistoryEvent string

const (
	HistoryEventCreated HistoryEvent = "created"
	HistoryEventAttempt HistoryEvent = "attempt"
	HistoryEventConfirm HistoryEvent = "confirm"
	HistoryEventFail    HistoryEvent = "fail"
	HistoryEventCancel  HistoryEvent = "cancel"
)

func (e HistoryEvent) String() string {
	return string(e)
}

func (e HistoryEvent) Validate() bool {
	switch e {
	case HistoryEventCreated, HistoryEventAttempt, HistoryEventConfirm, HistoryEventFail, HistoryEventCancel:
		return true
	}
	return false
}

// 事件元数据中引擎使用的 key
const (
	MetaReportedAt       = "reportedAt"
	MetaLate             = "late"
	MetaFinal            = "final"
	MetaReason           = "reason"
	MetaFailures         = "failures"
	MetaTrackingNumber   = "trackingNumber"
	MetaProofFileIds     = "proofFileIds"
	MetaProviderResponse = "providerResponse"
	MetaDispatch         = "dispatch"
	MetaUnresolved       = "unresolvedFields"
)

// ActorSystem 引擎自身产生的事件使用的 actor
const ActorSystem = "system"

// DeliveryHistory 审计记录，写入后不可变更。
// 规范顺序为 (Timestamp, Seq)。
type DeliveryHistory struct {
	Id               string         `json:"id"`
	DeliveryMethodId string         `json:"deliveryMethodId"`
	Event            HistoryEvent   `json:"event"`
	Actor            string         `json:"actor"`
	Timestamp        time.Time      `json:"timestamp"`
	Seq              int64          `json:"seq"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func (h DeliveryHistory) IsLate() bool {
	late, _ := h.Metadata[MetaLate].(bool)
	return late
}

// IsDispatch 判断是否为引擎派发写入的 attempt 事件
func (h DeliveryHistory) IsDispatch() bool {
	dispatch, _ := h.Metadata[MetaDispatch].(bool)
	return dispatch
}

func (h DeliveryHistory) IsFinal() bool {
	final, _ := h.Metadata[MetaFinal].(bool)
	return final
}

// AttemptPayload 适配器上报的一次投递尝试
type AttemptPayload struct {
	Actor            string    `json:"actor"`
	AttemptAt        time.Time `json:"attemptAt"`
	ProviderResponse string    `json:"providerResponse,omitempty"`
	TrackingNumber   string    `json:"trackingNumber,omitempty"`
	ProofFileIds     []string  `json:"proofFileIds,omitempty"`
}

func (p AttemptPayload) Validate() error {
	if strings.TrimSpace(p.Actor) == "" {
		return fmt.Errorf("%w: attempt actor should not be empty", errs.ErrValidation)
	}
	return nil
}

func (p AttemptPayload) metadata() map[string]any {
	meta := map[string]any{}
	if !p.AttemptAt.IsZero() {
		meta[MetaReportedAt] = p.AttemptAt.UTC().Format(time.RFC3339Nano)
	}
	if p.ProviderResponse != "" {
		meta[MetaProviderResponse] = p.ProviderResponse
	}
	if p.TrackingNumber != "" {
		meta[MetaTrackingNumber] = p.TrackingNumber
	}
	if len(p.ProofFileIds) > 0 {
		meta[MetaProofFileIds] = p.ProofFileIds
	}
	return meta
}

// ConfirmPayload 适配器上报的送达确认
type ConfirmPayload struct {
	Actor        string    `json:"actor"`
	ConfirmedAt  time.Time `json:"confirmedAt"`
	ProofFileIds []string  `json:"proofFileIds,omitempty"`
}

func (p ConfirmPayload) Validate() error {
	if strings.TrimSpace(p.Actor) == "" {
		return fmt.Errorf("%w: confirm actor should not be empty", errs.ErrValidation)
	}
	return nil
}

func (p ConfirmPayload) metadata() map[string]any {
	meta := map[string]any{}
	if !p.ConfirmedAt.IsZero() {
		meta[MetaReportedAt] = p.ConfirmedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(p.ProofFileIds) > 0 {
		meta[MetaProofFileIds] = p.ProofFileIds
	}
	return meta
}

// FailPayload 适配器上报的投递失败
type FailPayload struct {
	Actor    string    `json:"actor"`
	FailedAt time.Time `json:"failedAt"`
	Reason   string    `json:"reason"`
}

func (p FailPayload) Validate() error {
	if strings.TrimSpace(p.Actor) == "" {
		return fmt.Errorf("%w: fail actor should not be empty", errs.ErrValidation)
	}
	return nil
}

func (p FailPayload) metadata() map[string]any {
	meta := map[string]any{MetaReason: p.Reason}
	if !p.FailedAt.IsZero() {
		meta[MetaReportedAt] = p.FailedAt.UTC().Format(time.RFC3339Nano)
	}
	return meta
}
