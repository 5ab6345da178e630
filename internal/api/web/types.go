package web

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JrMarcco/easy-kit/slice"
	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type MethodReq struct {
	Id               string                  `json:"id"`
	Type             string                  `json:"type"`
	RecipientName    string                  `json:"recipientName"`
	RecipientContact domain.RecipientContact `json:"recipientContact"`
	ScheduledAt      *time.Time              `json:"scheduledAt"`
	ServiceProvider  string                  `json:"serviceProvider"`
	TrackingNumber   string                  `json:"trackingNumber"`
	CertifiedNumber  string                  `json:"certifiedNumber"`
	Instructions     string                  `json:"instructions"`
	CostEstimate     float64                 `json:"costEstimate"`
	Currency         string                  `json:"currency"`
	RequiredFields   []string                `json:"requiredFields"`
}

func (r MethodReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Id, validation.Required),
		validation.Field(&r.Type, validation.Required, validation.By(func(value any) error {
			if t, _ := value.(string); !domain.MethodType(strings.ToUpper(t)).Validate() {
				return errors.New("unsupported method type")
			}
			return nil
		})),
		validation.Field(&r.CostEstimate, validation.Min(0.0)),
	)
}

func (r MethodReq) toDomain() domain.DeliveryMethod {
	return domain.DeliveryMethod{
		Id:               r.Id,
		Type:             domain.MethodType(strings.ToUpper(r.Type)),
		RecipientName:    r.RecipientName,
		RecipientContact: r.RecipientContact,
		ScheduledAt:      r.ScheduledAt,
		ServiceProvider:  r.ServiceProvider,
		TrackingNumber:   r.TrackingNumber,
		CertifiedNumber:  r.CertifiedNumber,
		Instructions:     r.Instructions,
		CostEstimate:     r.CostEstimate,
		Currency:         r.Currency,
		RequiredFields:   r.RequiredFields,
	}
}

// CreateJobReq 创建 job 请求，id 为空时由服务端生成。
type CreateJobReq struct {
	Id            string      `json:"id"`
	CaseId        string      `json:"caseId"`
	CreatedBy     string      `json:"createdBy"`
	Notes         string      `json:"notes"`
	Methods       []MethodReq `json:"methods"`
	PriorityOrder []string    `json:"priorityOrder"`
}

func (r CreateJobReq) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.CaseId, validation.Required),
		validation.Field(&r.CreatedBy, validation.Required),
		validation.Field(&r.Methods, validation.Required),
		validation.Field(&r.PriorityOrder, validation.Required),
	)
	return asValidationErr(err)
}

func (r CreateJobReq) toDomain() domain.DeliveryJob {
	return domain.DeliveryJob{
		Id:        r.Id,
		CaseId:    r.CaseId,
		CreatedBy: r.CreatedBy,
		Notes:     r.Notes,
		Methods: slice.Map(r.Methods, func(_ int, m MethodReq) domain.DeliveryMethod {
			return m.toDomain()
		}),
		PriorityOrder: r.PriorityOrder,
	}
}

// ListJobsReq job 列表查询参数
type ListJobsReq struct {
	CaseId    string `form:"caseId"`
	CreatedBy string `form:"createdBy"`
	Status    string `form:"status"`
	Offset    int    `form:"offset"`
	Limit     int    `form:"limit"`
}

func (r ListJobsReq) Validate() error {
	return asValidationErr(validation.ValidateStruct(&r,
		validation.Field(&r.Offset, validation.Min(0)),
		validation.Field(&r.Limit, validation.Min(0), validation.Max(domain.MaxListLimit)),
	))
}

func (r ListJobsReq) toDomain() domain.JobFilter {
	return domain.JobFilter{
		CaseId:    r.CaseId,
		CreatedBy: r.CreatedBy,
		Status:    domain.DeliveryStatus(strings.ToUpper(r.Status)),
		Offset:    r.Offset,
		Limit:     r.Limit,
	}
}

type AttemptReq struct {
	Actor            string    `json:"actor"`
	AttemptAt        time.Time `json:"attemptAt"`
	ProviderResponse string    `json:"providerResponse"`
	TrackingNumber   string    `json:"trackingNumber"`
	ProofFileIds     []string  `json:"proofFileIds"`
}

func (r *AttemptReq) setActor(actor string) {
	r.Actor = actor
}

func (r AttemptReq) Validate() error {
	return asValidationErr(validation.ValidateStruct(&r,
		validation.Field(&r.Actor, validation.Required),
		validation.Field(&r.ProofFileIds, validation.Each(validation.Required)),
	))
}

func (r AttemptReq) toDomain() domain.AttemptPayload {
	return domain.AttemptPayload{
		Actor:            r.Actor,
		AttemptAt:        r.AttemptAt,
		ProviderResponse: r.ProviderResponse,
		TrackingNumber:   r.TrackingNumber,
		ProofFileIds:     r.ProofFileIds,
	}
}

type ConfirmReq struct {
	Actor        string    `json:"actor"`
	ConfirmedAt  time.Time `json:"confirmedAt"`
	ProofFileIds []string  `json:"proofFileIds"`
}

func (r *ConfirmReq) setActor(actor string) {
	r.Actor = actor
}

func (r ConfirmReq) Validate() error {
	return asValidationErr(validation.ValidateStruct(&r,
		validation.Field(&r.Actor, validation.Required),
		validation.Field(&r.ProofFileIds, validation.Each(validation.Required)),
	))
}

func (r ConfirmReq) toDomain() domain.ConfirmPayload {
	return domain.ConfirmPayload{
		Actor:        r.Actor,
		ConfirmedAt:  r.ConfirmedAt,
		ProofFileIds: r.ProofFileIds,
	}
}

type FailReq struct {
	Actor    string    `json:"actor"`
	FailedAt time.Time `json:"failedAt"`
	Reason   string    `json:"reason"`
}

func (r *FailReq) setActor(actor string) {
	r.Actor = actor
}

func (r FailReq) Validate() error {
	return asValidationErr(validation.ValidateStruct(&r,
		validation.Field(&r.Actor, validation.Required),
		validation.Field(&r.Reason, validation.Required, validation.Length(1, 1024)),
	))
}

func (r FailReq) toDomain() domain.FailPayload {
	return domain.FailPayload{
		Actor:    r.Actor,
		FailedAt: r.FailedAt,
		Reason:   r.Reason,
	}
}

type CancelReq struct {
	Actor string `json:"actor"`
}

func (r CancelReq) Validate() error {
	return asValidationErr(validation.ValidateStruct(&r,
		validation.Field(&r.Actor, validation.Required),
	))
}

func asValidationErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errs.ErrValidation, err)
}
