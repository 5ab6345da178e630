package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/service/adapter"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config 渠道网关配置，一个网关可以服务多个渠道类型。
type Config struct {
	Name    string            `mapstructure:"name"`
	Types   []string          `mapstructure:"types"`
	Url     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
	// CallbackBaseUrl 网关回调本服务的地址
	CallbackBaseUrl string `mapstructure:"callback_base_url"`
	// FailureThreshold 连续失败多少次后熔断
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// WorkOrder 发送给渠道网关的投递请求
type WorkOrder struct {
	JobId       string                `json:"jobId"`
	CaseId      string                `json:"caseId"`
	Method      domain.DeliveryMethod `json:"method"`
	CallbackUrl string                `json:"callbackUrl,omitempty"`
}

// Ack 渠道网关的受理结果
type Ack struct {
	Accepted         bool   `json:"accepted"`
	TrackingNumber   string `json:"trackingNumber"`
	ProviderResponse string `json:"providerResponse"`
	Message          string `json:"message"`
}

var _ adapter.MethodAdapter = (*Adapter)(nil)

// Adapter 通过 http 网关投递的渠道适配器（EMAIL / USPS / FEDEX 等）。
type Adapter struct {
	cfg     Config
	types   []domain.MethodType
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func (a *Adapter) Name() string {
	return a.cfg.Name
}

func (a *Adapter) Types() []domain.MethodType {
	return a.types
}

func (a *Adapter) Send(ctx context.Context, job domain.DeliveryJob, m domain.DeliveryMethod) (domain.AttemptPayload, error) {
	order := WorkOrder{
		JobId:  job.Id,
		CaseId: job.CaseId,
		Method: m,
	}
	if a.cfg.CallbackBaseUrl != "" {
		order.CallbackUrl = fmt.Sprintf("%s/jobs/%s/methods/%s", a.cfg.CallbackBaseUrl, job.Id, m.Id)
	}

	res, err := a.breaker.Execute(func() (interface{}, error) {
		return a.post(ctx, order)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			a.logger.Warn("[jdelivery] webhook gateway circuit open", zap.String("adapter", a.cfg.Name))
		}
		return domain.AttemptPayload{}, fmt.Errorf("%w: %w", errs.ErrDispatchFailed, err)
	}

	ack := res.(Ack)
	if !ack.Accepted {
		return domain.AttemptPayload{}, fmt.Errorf("%w: gateway rejected work order: %s", errs.ErrDispatchFailed, ack.Message)
	}

	return domain.AttemptPayload{
		Actor:            a.cfg.Name,
		AttemptAt:        time.Now().UTC(),
		ProviderResponse: ack.ProviderResponse,
		TrackingNumber:   ack.TrackingNumber,
	}, nil
}

func (a *Adapter) post(ctx context.Context, order WorkOrder) (Ack, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to marshal work order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Url, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range a.cfg.Headers {
		req.Header.Set(key, val)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("request failed: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if closeErr := Body.Close(); closeErr != nil {
			a.logger.Error("[jdelivery] failed to close webhook response body", zap.Error(closeErr))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Ack{}, fmt.Errorf("gateway responded with status code %d", resp.StatusCode)
	}

	var ack Ack
	if err = json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return Ack{}, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return ack, nil
}

func NewAdapter(cfg Config, client *http.Client, logger *zap.Logger) (*Adapter, error) {
	if cfg.Url == "" {
		return nil, fmt.Errorf("[jdelivery] webhook adapter %s has no url", cfg.Name)
	}

	types := make([]domain.MethodType, 0, len(cfg.Types))
	for _, t := range cfg.Types {
		mt := domain.MethodType(t)
		if !mt.Validate() {
			return nil, fmt.Errorf("[jdelivery] webhook adapter %s has invalid method type %q", cfg.Name, t)
		}
		types = append(types, mt)
	}

	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info(
				"[jdelivery] webhook circuit breaker state changed",
				zap.String("adapter", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Adapter{
		cfg:     cfg,
		types:   types,
		client:  client,
		breaker: breaker,
		logger:  logger,
	}, nil
}
