package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
)

// MethodType 送达渠道类型
type MethodType string

const (
	MethodTypeUSPS            MethodType = "USPS"
	MethodTypeEmail           MethodType = "EMAIL"
	MethodTypeCertifiedPrint  MethodType = "CERTIFIED_PRINT"
	MethodTypeText            MethodType = "TEXT"
	MethodTypeHandDelivered   MethodType = "HAND_DELIVERED"
	MethodTypeServiceInPerson MethodType = "SERVICE_IN_PERSON"
	MethodTypeFedex           MethodType = "FEDEX"
	MethodTypeCourtServer     MethodType = "COURT_SERVER"
	MethodTypeOther           MethodType = "OTHER"
)

var methodTypes = []MethodType{
	MethodTypeUSPS,
	MethodTypeEmail,
	MethodTypeCertifiedPrint,
	MethodTypeText,
	MethodTypeHandDelivered,
	MethodTypeServiceInPerson,
	MethodTypeFedex,
	MethodTypeCourtServer,
	MethodTypeOther,
}

func MethodTypes() []MethodType {
	return slices.Clone(methodTypes)
}

func (t MethodType) String() string {
	return string(t)
}

func (t MethodType) Validate() bool {
	return slices.Contains(methodTypes, t)
}

// ContactField 返回该渠道必须提供的联系方式字段路径，不需要联系方式时返回空串。
func (t MethodType) ContactField() string {
	switch t {
	case MethodTypeEmail:
		return FieldContactEmail
	case MethodTypeText:
		return FieldContactPhone
	case MethodTypeUSPS, MethodTypeCertifiedPrint, MethodTypeFedex,
		MethodTypeHandDelivered, MethodTypeServiceInPerson, MethodTypeCourtServer:
		return FieldContactAddress
	default:
		return ""
	}
}

// MethodStatus 送达方式状态，只允许前进：PENDING -> ATTEMPTED -> CONFIRMED | FAILED
type MethodStatus string

const (
	MethodStatusPending   MethodStatus = "PENDING"
	MethodStatusAttempted MethodStatus = "ATTEMPTED"
	MethodStatusConfirmed MethodStatus = "CONFIRMED"
	MethodStatusFailed    MethodStatus = "FAILED"
)

func (s MethodStatus) String() string {
	return string(s)
}

func (s MethodStatus) IsTerminal() bool {
	return s == MethodStatusConfirmed || s == MethodStatusFailed
}

func (s MethodStatus) rank() int {
	switch s {
	case MethodStatusPending:
		return 0
	case MethodStatusAttempted:
		return 1
	default:
		return 2
	}
}

// CanMoveTo 判断状态流转是否合法（终态不可再变更，且不允许回退）。
func (s MethodStatus) CanMoveTo(next MethodStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == next {
		return s == MethodStatusAttempted
	}
	return next.rank() > s.rank()
}

// 必填字段路径
const (
	FieldRecipientName   = "recipientName"
	FieldContactEmail    = "recipientContact.email"
	FieldContactPhone    = "recipientContact.phone"
	FieldContactAddress  = "recipientContact.address"
	FieldScheduledAt     = "scheduledAt"
	FieldServiceProvider = "serviceProvider"
	FieldTrackingNumber  = "trackingNumber"
	FieldCertifiedNumber = "certifiedNumber"
	FieldInstructions    = "instructions"
)

var knownFields = []string{
	FieldRecipientName,
	FieldContactEmail,
	FieldContactPhone,
	FieldContactAddress,
	FieldScheduledAt,
	FieldServiceProvider,
	FieldTrackingNumber,
	FieldCertifiedNumber,
	FieldInstructions,
}

// RecipientContact 收件人联系方式
type RecipientContact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// DeliveryMethod 送达方式领域对象。
//
// Status 以及 Attempts / Failures / AwaitingOutcome / LastAttemptAt / LastFailureAt
// 都由 history 推导，不能直接修改。
// Attempts 为实际投递次数，适配器对一次派发的上报不重复计数。
type DeliveryMethod struct {
	Id               string           `json:"id"`
	Type             MethodType       `json:"type"`
	RecipientName    string           `json:"recipientName,omitempty"`
	RecipientContact RecipientContact `json:"recipientContact"`
	ScheduledAt      *time.Time       `json:"scheduledAt,omitempty"`
	ServiceProvider  string           `json:"serviceProvider,omitempty"`
	TrackingNumber   string           `json:"trackingNumber,omitempty"`
	CertifiedNumber  string           `json:"certifiedNumber,omitempty"`
	ProofFiles       []string         `json:"proofFiles"`
	Instructions     string           `json:"instructions,omitempty"`
	CostEstimate     float64          `json:"costEstimate,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	RequiredFields   []string         `json:"requiredFields"`
	Status           MethodStatus     `json:"status"`

	Attempts        int32      `json:"attempts"`
	Failures        int32      `json:"failures"`
	AwaitingOutcome bool       `json:"awaitingOutcome"`
	LastAttemptAt   *time.Time `json:"lastAttemptAt,omitempty"`
	LastFailureAt   *time.Time `json:"lastFailureAt,omitempty"`
}

// Validate 校验送达方式定义本身是否自洽
func (m DeliveryMethod) Validate() error {
	if strings.TrimSpace(m.Id) == "" {
		return fmt.Errorf("%w: method id should not be empty", errs.ErrValidation)
	}

	if !m.Type.Validate() {
		return fmt.Errorf("%w: method %s has invalid type %q", errs.ErrValidation, m.Id, m.Type)
	}

	seen := make(map[string]struct{}, len(m.RequiredFields))
	for _, field := range m.RequiredFields {
		if !slices.Contains(knownFields, field) {
			return fmt.Errorf("%w: method %s has unknown required field %q", errs.ErrValidation, m.Id, field)
		}
		if _, ok := seen[field]; ok {
			return fmt.Errorf("%w: method %s has duplicated required field %q", errs.ErrValidation, m.Id, field)
		}
		seen[field] = struct{}{}
	}

	// 需要联系方式的渠道必须把联系方式声明为必填字段
	if contact := m.Type.ContactField(); contact != "" {
		if _, ok := seen[contact]; !ok {
			return fmt.Errorf("%w: method %s of type %s must require %q", errs.ErrValidation, m.Id, m.Type, contact)
		}
	}
	return nil
}

// FieldValue 按路径取字段值，未知路径返回 false。
func (m DeliveryMethod) FieldValue(path string) (string, bool) {
	switch path {
	case FieldRecipientName:
		return m.RecipientName, true
	case FieldContactEmail:
		return m.RecipientContact.Email, true
	case FieldContactPhone:
		return m.RecipientContact.Phone, true
	case FieldContactAddress:
		return m.RecipientContact.Address, true
	case FieldScheduledAt:
		if m.ScheduledAt == nil || m.ScheduledAt.IsZero() {
			return "", true
		}
		return m.ScheduledAt.UTC().Format(time.RFC3339), true
	case FieldServiceProvider:
		return m.ServiceProvider, true
	case FieldTrackingNumber:
		return m.TrackingNumber, true
	case FieldCertifiedNumber:
		return m.CertifiedNumber, true
	case FieldInstructions:
		return m.Instructions, true
	default:
		return "", false
	}
}

// UnresolvedFields 返回尚未填充的必填字段
func (m DeliveryMethod) UnresolvedFields() []string {
	var res []string
	for _, field := range m.RequiredFields {
		val, ok := m.FieldValue(field)
		if !ok || strings.TrimSpace(val) == "" {
			res = append(res, field)
		}
	}
	return res
}

// resetDerived 重置由 history 推导出来的字段
func (m *DeliveryMethod) resetDerived() {
	m.Status = MethodStatusPending
	m.Attempts = 0
	m.Failures = 0
	m.AwaitingOutcome = false
	m.LastAttemptAt = nil
	m.LastFailureAt = nil
}

func (m *DeliveryMethod) addProofFiles(ids []string) {
	for _, id := range ids {
		if id == "" || slices.Contains(m.ProofFiles, id) {
			continue
		}
		m.ProofFiles = append(m.ProofFiles, id)
	}
}
