package redis

import (
	"context"
	"testing"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeliveryJobRedisCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rc := NewDeliveryJobRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zap.NewNop())
	ctx := context.Background()

	_, err := rc.Get(ctx, "job-1")
	assert.ErrorIs(t, err, errs.ErrCacheKeyNotFound)

	job := domain.DeliveryJob{
		Id:            "job-1",
		CaseId:        "case-1",
		PriorityOrder: []string{"m-1"},
		Status:        domain.DeliveryStatusPending,
		Version:       3,
		CommittedSeq:  2,
	}
	require.NoError(t, rc.Set(ctx, job))

	stale := job
	stale.Version = 2
	stale.Status = domain.DeliveryStatusCreated
	require.NoError(t, rc.Set(ctx, stale))

	got, err := rc.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, int64(2), got.CommittedSeq)
	assert.Equal(t, domain.DeliveryStatusPending, got.Status)
	assert.True(t, mr.TTL("delivery_job:job-1") > 0)

	require.NoError(t, rc.Del(ctx, "job-1"))
	assert.False(t, mr.Exists("delivery_job:job-1"))
}
