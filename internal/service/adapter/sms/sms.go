package sms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/service/adapter"
	"github.com/JrMarcco/jdelivery/internal/service/adapter/sms/client"
)

// Config 短信送达配置
type Config struct {
	Name       string `mapstructure:"name"`
	SignName   string `mapstructure:"sign_name"`
	TemplateId string `mapstructure:"template_id"`
}

var _ adapter.MethodAdapter = (*Adapter)(nil)

// Adapter TEXT 渠道适配器，通过短信发送送达通知。
type Adapter struct {
	cfg    Config
	client client.SmsClient
}

func (a *Adapter) Name() string {
	return a.cfg.Name
}

func (a *Adapter) Types() []domain.MethodType {
	return []domain.MethodType{domain.MethodTypeText}
}

func (a *Adapter) Send(ctx context.Context, job domain.DeliveryJob, m domain.DeliveryMethod) (domain.AttemptPayload, error) {
	phone := m.RecipientContact.Phone
	if phone == "" {
		return domain.AttemptPayload{}, fmt.Errorf("%w: method %s has no phone number", errs.ErrDispatchFailed, m.Id)
	}

	resp, err := a.client.Send(ctx, client.SendReq{
		PhoneNumbers:   []string{phone},
		SignName:       a.cfg.SignName,
		TemplateId:     a.cfg.TemplateId,
		TemplateParams: []string{m.RecipientName, job.CaseId},
	})
	if err != nil {
		return domain.AttemptPayload{}, fmt.Errorf("%w: %w", errs.ErrDispatchFailed, err)
	}

	status, ok := resp.PhoneNumbers[phone]
	if !ok {
		return domain.AttemptPayload{}, fmt.Errorf(
			"%w: no send status for %s, request id = %s", errs.ErrDispatchFailed, phone, resp.RequestId,
		)
	}
	if !strings.EqualFold(status.Code, "OK") {
		return domain.AttemptPayload{}, fmt.Errorf(
			"%w: Response Code = %s, Response Message = %s", errs.ErrDispatchFailed, status.Code, status.Message,
		)
	}

	return domain.AttemptPayload{
		Actor:            a.cfg.Name,
		AttemptAt:        time.Now().UTC(),
		ProviderResponse: fmt.Sprintf("request id = %s, code = %s", resp.RequestId, status.Code),
		TrackingNumber:   status.SerialNo,
	}, nil
}

func NewAdapter(cfg Config, client client.SmsClient) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "sms"
	}
	return &Adapter{
		cfg:    cfg,
		client: client,
	}
}
