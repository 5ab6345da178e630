package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/repository"
	"github.com/JrMarcco/jdelivery/internal/repository/cache/local"
	"github.com/JrMarcco/jdelivery/internal/repository/dao"
	"github.com/JrMarcco/jdelivery/internal/service/adapter"
	adaptermock "github.com/JrMarcco/jdelivery/internal/service/adapter/mock"
	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	gcache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type recordingReporter struct {
	mu       sync.Mutex
	attempts []domain.AttemptPayload
	fails    []domain.FailPayload
	err      error
}

func (r *recordingReporter) RecordAttempt(
	_ context.Context, _, _ string, p domain.AttemptPayload,
) (domain.DeliveryJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, p)
	return domain.DeliveryJob{}, r.err
}

func (r *recordingReporter) RecordFail(
	_ context.Context, _, _ string, p domain.FailPayload,
) (domain.DeliveryJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails = append(r.fails, p)
	return domain.DeliveryJob{}, r.err
}

// dispatchedJob 写入一个 email 方法已派发的 job，返回派发任务
func dispatchedJob(t *testing.T, repo repository.DeliveryJobRepo) Task {
	t.Helper()

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	job := domain.DeliveryJob{
		Id:        "job-1",
		CaseId:    "case-1",
		CreatedBy: "clerk",
		Methods: []domain.DeliveryMethod{{
			Id:               "email",
			Type:             domain.MethodTypeEmail,
			RecipientContact: domain.RecipientContact{Email: "jane@example.com"},
			RequiredFields:   []string{domain.FieldContactEmail},
		}},
		PriorityOrder: []string{"email"},
	}
	require.NoError(t, job.Init(now))
	created, err := repo.Create(context.Background(), job)
	require.NoError(t, err)

	next := created.Clone()
	require.NoError(t, next.Dispatch("email", now.Add(time.Second)))
	_, err = repo.Commit(context.Background(), next, created.Version)
	require.NoError(t, err)

	return Task{JobId: "job-1", MethodId: "email", Seq: next.History[len(next.History)-1].Seq}
}

func newTestRepo() repository.DeliveryJobRepo {
	return repository.NewDefaultDeliveryJobRepo(
		dao.NewMemoryDeliveryJobDAO(),
		local.NewDeliveryJobLocalCache(gcache.New(time.Minute, time.Minute)),
		local.NewDeliveryJobLocalCache(gcache.New(time.Minute, time.Minute)),
		zap.NewNop(),
	)
}

func TestWorker_Handle(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name         string
		mock         func(a *adaptermock.MockMethodAdapter)
		task         func(task Task) Task
		reporterErr  error
		wantErr      bool
		wantAttempts int
		wantFails    int
	}{
		{
			name: "sent",
			mock: func(a *adaptermock.MockMethodAdapter) {
				a.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domain.AttemptPayload{TrackingNumber: "msg-1"}, nil)
			},
			wantAttempts: 1,
		}, {
			name: "send failed",
			mock: func(a *adaptermock.MockMethodAdapter) {
				a.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domain.AttemptPayload{}, errors.New("mailbox unavailable"))
			},
			wantFails: 1,
		}, {
			name: "stale task",
			mock: func(a *adaptermock.MockMethodAdapter) {},
			task: func(task Task) Task {
				task.Seq--
				return task
			},
		}, {
			name: "job terminal when reporting",
			mock: func(a *adaptermock.MockMethodAdapter) {
				a.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domain.AttemptPayload{}, nil)
			},
			reporterErr:  errs.ErrJobTerminal,
			wantAttempts: 1,
		}, {
			name: "reporter conflict",
			mock: func(a *adaptermock.MockMethodAdapter) {
				a.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domain.AttemptPayload{}, nil)
			},
			reporterErr:  errs.ErrConflict,
			wantErr:      true,
			wantAttempts: 1,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			a := adaptermock.NewMockMethodAdapter(ctrl)
			a.EXPECT().Types().Return([]domain.MethodType{domain.MethodTypeEmail}).AnyTimes()
			a.EXPECT().Name().Return("email-gateway").AnyTimes()
			tc.mock(a)

			registry, err := adapter.NewRegistry(a)
			require.NoError(t, err)

			repo := newTestRepo()
			task := dispatchedJob(t, repo)
			if tc.task != nil {
				task = tc.task(task)
			}

			reporter := &recordingReporter{err: tc.reporterErr}
			w := NewWorker(repo, registry, reporter, time.Second, zap.NewNop())

			err = w.Handle(context.Background(), task)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, reporter.attempts, tc.wantAttempts)
			assert.Len(t, reporter.fails, tc.wantFails)
			for _, p := range reporter.attempts {
				assert.Equal(t, "email-gateway", p.Actor)
			}
		})
	}
}

func TestWorker_NoAdapter(t *testing.T) {
	t.Parallel()

	registry, err := adapter.NewRegistry()
	require.NoError(t, err)

	repo := newTestRepo()
	task := dispatchedJob(t, repo)
	reporter := &recordingReporter{}

	require.NoError(t, NewWorker(repo, registry, reporter, 0, zap.NewNop()).Handle(context.Background(), task))
	require.Len(t, reporter.fails, 1)
	assert.Equal(t, domain.ActorSystem, reporter.fails[0].Actor)
	assert.Contains(t, reporter.fails[0].Reason, "no adapter")
}

type chanHandler struct {
	tasks chan Task
}

func (h chanHandler) Handle(_ context.Context, task Task) error {
	h.tasks <- task
	return nil
}

func TestInlineQueue(t *testing.T) {
	t.Parallel()

	q := NewInlineQueue(1, 1, zap.NewNop())

	require.NoError(t, q.Enqueue(context.Background(), Task{JobId: "job-1", MethodId: "m-1", Seq: 2}))
	// 队列已满
	assert.ErrorIs(t, q.Enqueue(context.Background(), Task{JobId: "job-2"}), errs.ErrDispatchFailed)

	h := chanHandler{tasks: make(chan Task, 1)}
	require.NoError(t, q.Start(h))
	defer q.Stop()

	select {
	case task := <-h.tasks:
		assert.Equal(t, "job-1", task.JobId)
		assert.Equal(t, int64(2), task.Seq)
	case <-time.After(time.Second):
		t.Fatal("dispatch task not handled")
	}
}

func TestAsynqEnqueuer(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	e := NewAsynqEnqueuer(client, "dispatch", 3)
	task := Task{JobId: "job-1", MethodId: "m-1", Seq: 2}

	require.NoError(t, e.Enqueue(context.Background(), task))
	// 重复入队被忽略
	require.NoError(t, e.Enqueue(context.Background(), task))
	assert.NotEmpty(t, mr.Keys())
}
