package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
)

const (
	DeliveryJobPrefix = "delivery_job"
	DefaultExpires    = time.Minute
)

// DeliveryJobCache job 读缓存，只服务查询接口，引擎的读改写始终直接访问存储。
type DeliveryJobCache interface {
	Get(ctx context.Context, id string) (domain.DeliveryJob, error)
	// Set 写入缓存，缓存中已有更新版本时忽略。
	Set(ctx context.Context, job domain.DeliveryJob) error
	Del(ctx context.Context, id string) error
}

func DeliveryJobKey(id string) string {
	return fmt.Sprintf("%s:%s", DeliveryJobPrefix, id)
}
