package repository

import (
	"context"
	"testing"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/repository/cache/local"
	rediscache "github.com/JrMarcco/jdelivery/internal/repository/cache/redis"
	"github.com/JrMarcco/jdelivery/internal/repository/dao"
	"github.com/alicebob/miniredis/v2"
	gcache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T) *DefaultDeliveryJobRepo {
	t.Helper()

	mr := miniredis.RunT(t)
	return NewDefaultDeliveryJobRepo(
		dao.NewMemoryDeliveryJobDAO(),
		local.NewDeliveryJobLocalCache(gcache.New(time.Minute, time.Minute)),
		rediscache.NewDeliveryJobRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zap.NewNop()),
		zap.NewNop(),
	)
}

func newTestJob(t *testing.T, now time.Time) domain.DeliveryJob {
	t.Helper()

	job := domain.DeliveryJob{
		Id:        "job-1",
		CaseId:    "case-1",
		CreatedBy: "clerk",
		Methods: []domain.DeliveryMethod{
			{
				Id:               "email",
				Type:             domain.MethodTypeEmail,
				RecipientName:    "Jane Roe",
				RecipientContact: domain.RecipientContact{Email: "jane@example.com"},
				RequiredFields:   []string{domain.FieldContactEmail},
			},
			{
				Id:               "usps",
				Type:             domain.MethodTypeUSPS,
				RecipientContact: domain.RecipientContact{Address: "1 Main St"},
				RequiredFields:   []string{domain.FieldContactAddress},
			},
		},
		PriorityOrder: []string{"email", "usps"},
		Partition:     3,
	}
	require.NoError(t, job.Init(now))
	return job
}

func TestDefaultDeliveryJobRepo_CreateLoadCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	created, err := repo.Create(ctx, newTestJob(t, now))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, int64(1), created.CommittedSeq)

	loaded, err := repo.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusCreated, loaded.Status)
	assert.Equal(t, []string{"email", "usps"}, loaded.PriorityOrder)
	assert.Equal(t, "jane@example.com", loaded.Methods[0].RecipientContact.Email)
	require.Len(t, loaded.History, 1)

	next := loaded.Clone()
	require.NoError(t, next.Dispatch("email", now.Add(time.Second)))
	committed, err := repo.Commit(ctx, next, loaded.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(2), committed.Version)
	assert.Equal(t, int64(2), committed.CommittedSeq)
	assert.Empty(t, committed.NewEvents())

	// 基于旧版本的并发提交失败
	stale := loaded.Clone()
	require.NoError(t, stale.Cancel("clerk", now.Add(2*time.Second)))
	_, err = repo.Commit(ctx, stale, loaded.Version)
	assert.ErrorIs(t, err, errs.ErrConflict)

	reloaded, err := repo.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusPending, reloaded.Status)
	assert.Equal(t, domain.MethodStatusAttempted, reloaded.Method("email").Status)
	assert.Len(t, reloaded.History, 2)

	cached, err := repo.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.Version)

	history, err := repo.History(ctx, "job-1", now.Add(time.Second), time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.HistoryEventAttempt, history[0].Event)

	ids, err := repo.FindActive(ctx, 3, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, ids)
}

func TestDefaultDeliveryJobRepo_NotFound(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	_, err := repo.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
