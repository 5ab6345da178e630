package manual

import (
	"context"
	"fmt"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/service/adapter"
	"go.uber.org/zap"
)

var defaultTypes = []domain.MethodType{
	domain.MethodTypeHandDelivered,
	domain.MethodTypeServiceInPerson,
	domain.MethodTypeCourtServer,
	domain.MethodTypeOther,
}

var _ adapter.MethodAdapter = (*Adapter)(nil)

// Adapter 人工送达（当面送达、法院送达员等）。
// Send 只签发工单，送达结果由送达员通过回调接口上报。
type Adapter struct {
	name   string
	types  []domain.MethodType
	logger *zap.Logger
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) Types() []domain.MethodType {
	return a.types
}

func (a *Adapter) Send(_ context.Context, job domain.DeliveryJob, m domain.DeliveryMethod) (domain.AttemptPayload, error) {
	assignee := m.ServiceProvider
	if assignee == "" {
		assignee = "unassigned"
	}

	a.logger.Info(
		"[jdelivery] manual work order issued",
		zap.String("job_id", job.Id),
		zap.String("case_id", job.CaseId),
		zap.String("method_id", m.Id),
		zap.String("type", m.Type.String()),
		zap.String("assignee", assignee),
	)

	return domain.AttemptPayload{
		Actor:            a.name,
		AttemptAt:        time.Now().UTC(),
		ProviderResponse: fmt.Sprintf("work order issued to %s", assignee),
	}, nil
}

func NewAdapter(name string, types []string, logger *zap.Logger) (*Adapter, error) {
	if name == "" {
		name = "manual"
	}

	mts := defaultTypes
	if len(types) > 0 {
		mts = make([]domain.MethodType, 0, len(types))
		for _, t := range types {
			mt := domain.MethodType(t)
			if !mt.Validate() {
				return nil, fmt.Errorf("[jdelivery] manual adapter has invalid method type %q", t)
			}
			mts = append(mts, mt)
		}
	}

	return &Adapter{
		name:   name,
		types:  mts,
		logger: logger,
	}, nil
}
