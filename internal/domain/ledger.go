package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/google/uuid"
)

// Ledger 单个 job 的只追加审计日志。
//
// Append 是唯一的写入口，已写入的事件不会被覆盖或删除。
// 读取时按 (Timestamp, Seq) 的规范顺序返回。
type Ledger struct {
	methods map[string]struct{}
	events  []DeliveryHistory
	lastSeq int64
}

// Append 追加事件并分配 id 与 seq。
//
// 时间戳不早于最后一条事件，保证写入顺序即规范顺序。
func (l *Ledger) Append(h DeliveryHistory) (DeliveryHistory, error) {
	if !h.Event.Validate() {
		return DeliveryHistory{}, fmt.Errorf("%w: invalid history event %q", errs.ErrValidation, h.Event)
	}
	if _, ok := l.methods[h.DeliveryMethodId]; !ok {
		return DeliveryHistory{}, fmt.Errorf("%w: method id = %q", errs.ErrUnknownMethod, h.DeliveryMethodId)
	}

	if h.Id == "" {
		h.Id = uuid.NewString()
	}
	h.Timestamp = h.Timestamp.UTC()
	if n := len(l.events); n > 0 && h.Timestamp.Before(l.events[n-1].Timestamp) {
		h.Timestamp = l.events[n-1].Timestamp
	}

	l.lastSeq++
	h.Seq = l.lastSeq
	l.events = append(l.events, h)
	return h, nil
}

// Events 按规范顺序返回全部事件的副本
func (l *Ledger) Events() []DeliveryHistory {
	return slices.Clone(l.events)
}

// Range 返回 [from, to) 内的事件，零值表示不限制。
func (l *Ledger) Range(from, to time.Time) []DeliveryHistory {
	res := make([]DeliveryHistory, 0, len(l.events))
	for _, h := range l.events {
		if !from.IsZero() && h.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !h.Timestamp.Before(to) {
			continue
		}
		res = append(res, h)
	}
	return res
}

func (l *Ledger) LastSeq() int64 {
	return l.lastSeq
}

// SortHistory 将事件整理为规范顺序
func SortHistory(events []DeliveryHistory) {
	slices.SortStableFunc(events, func(a, b DeliveryHistory) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		default:
			return 0
		}
	})
}

func NewLedger(methodIds []string, events []DeliveryHistory) *Ledger {
	methods := make(map[string]struct{}, len(methodIds))
	for _, id := range methodIds {
		methods[id] = struct{}{}
	}

	sorted := slices.Clone(events)
	SortHistory(sorted)

	var lastSeq int64
	for _, h := range sorted {
		lastSeq = max(lastSeq, h.Seq)
	}
	return &Ledger{
		methods: methods,
		events:  sorted,
		lastSeq: lastSeq,
	}
}
