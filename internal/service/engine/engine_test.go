package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JrMarcco/jdelivery/internal/domain"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/pkg/retry"
	"github.com/JrMarcco/jdelivery/internal/pkg/sharding"
	"github.com/JrMarcco/jdelivery/internal/repository"
	"github.com/JrMarcco/jdelivery/internal/repository/cache/local"
	"github.com/JrMarcco/jdelivery/internal/repository/dao"
	"github.com/JrMarcco/jdelivery/internal/service/dispatch"
	gcache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []dispatch.Task
	err   error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, task dispatch.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *recordingEnqueuer) Tasks() []dispatch.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatch.Task(nil), r.tasks...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRepo() repository.DeliveryJobRepo {
	return repository.NewDefaultDeliveryJobRepo(
		dao.NewMemoryDeliveryJobDAO(),
		local.NewDeliveryJobLocalCache(gcache.New(time.Minute, time.Minute)),
		local.NewDeliveryJobLocalCache(gcache.New(time.Minute, time.Minute)),
		zap.NewNop(),
	)
}

func testPolicies() domain.RetryPolicies {
	return domain.RetryPolicies{
		Default: domain.RetryPolicy{
			MaxAttempts: 3,
			Backoff: &retry.Config{
				Type:          retry.TypeFixedInterval,
				FixedInterval: &retry.FixedIntervalConfig{Interval: time.Minute, MaxTimes: 10},
			},
		},
	}
}

func newTestEngine(repo repository.DeliveryJobRepo, enq dispatch.Enqueuer, clock *testClock) *DefaultEngine {
	e := NewDefaultEngine(
		repo,
		enq,
		sharding.NewHashStrategy(4),
		testPolicies(),
		Config{MaxCommitRetries: 3, CommitRetryInterval: time.Millisecond},
		zap.NewNop(),
	)
	e.now = clock.Now
	return e
}

func newClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

// uspsThenEmail USPS 优先，EMAIL 作为备选
func uspsThenEmail() domain.DeliveryJob {
	return domain.DeliveryJob{
		CaseId:    "case-2024-001",
		CreatedBy: "clerk",
		Methods: []domain.DeliveryMethod{
			{
				Id:               "usps",
				Type:             domain.MethodTypeUSPS,
				RecipientName:    "John Doe",
				RecipientContact: domain.RecipientContact{Address: "1 Main St"},
				RequiredFields:   []string{domain.FieldContactAddress},
			},
			{
				Id:               "email",
				Type:             domain.MethodTypeEmail,
				RecipientName:    "John Doe",
				RecipientContact: domain.RecipientContact{Email: "john@example.com"},
				RequiredFields:   []string{domain.FieldContactEmail},
			},
		},
		PriorityOrder: []string{"usps", "email"},
	}
}

func fail(actor string) domain.FailPayload {
	return domain.FailPayload{Actor: actor, Reason: "returned to sender"}
}

func TestDefaultEngine_CreateJob(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name    string
		job     func() domain.DeliveryJob
		wantErr error
	}{
		{
			name: "basic",
			job:  uspsThenEmail,
		}, {
			name: "empty methods",
			job: func() domain.DeliveryJob {
				job := uspsThenEmail()
				job.Methods = nil
				job.PriorityOrder = nil
				return job
			},
			wantErr: errs.ErrValidation,
		}, {
			name: "priority order is not a permutation",
			job: func() domain.DeliveryJob {
				job := uspsThenEmail()
				job.PriorityOrder = []string{"usps", "usps"}
				return job
			},
			wantErr: errs.ErrValidation,
		}, {
			name: "priority order misses a method",
			job: func() domain.DeliveryJob {
				job := uspsThenEmail()
				job.PriorityOrder = []string{"usps"}
				return job
			},
			wantErr: errs.ErrValidation,
		}, {
			name: "contact field not required",
			job: func() domain.DeliveryJob {
				job := uspsThenEmail()
				job.Methods[1].RequiredFields = []string{domain.FieldRecipientName}
				return job
			},
			wantErr: errs.ErrValidation,
		}, {
			name: "unknown method type",
			job: func() domain.DeliveryJob {
				job := uspsThenEmail()
				job.Methods[0].Type = "PIGEON"
				return job
			},
			wantErr: errs.ErrValidation,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(newTestRepo(), &recordingEnqueuer{}, newClock())
			job, err := e.CreateJob(context.Background(), tc.job())
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, job.Id)
			assert.Equal(t, domain.DeliveryStatusCreated, job.Status)
			assert.Equal(t, int64(1), job.Version)
			require.Len(t, job.History, 1)
			assert.Equal(t, domain.HistoryEventCreated, job.History[0].Event)
			for _, m := range job.Methods {
				assert.Equal(t, domain.MethodStatusPending, m.Status)
			}
		})
	}
}

func TestDefaultEngine_CreateJob_DuplicatedId(t *testing.T) {
	t.Parallel()

	e := newTestEngine(newTestRepo(), &recordingEnqueuer{}, newClock())

	job := uspsThenEmail()
	job.Id = "job-fixed"
	_, err := e.CreateJob(context.Background(), job)
	require.NoError(t, err)

	_, err = e.CreateJob(context.Background(), job)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.NotErrorIs(t, err, errs.ErrConflict)
}

// USPS 失败三次后永久失败，推进到 EMAIL；EMAIL 确认后 job 完成，USPS 的回调被拒绝。
func TestDefaultEngine_FallbackChain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	enq := &recordingEnqueuer{}
	e := newTestEngine(newTestRepo(), enq, clock)

	job, err := e.CreateJob(ctx, uspsThenEmail())
	require.NoError(t, err)

	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusPending, job.Status)
	assert.Equal(t, domain.MethodStatusAttempted, job.Method("usps").Status)
	require.Len(t, enq.Tasks(), 1)
	assert.Equal(t, "usps", enq.Tasks()[0].MethodId)

	// 等待结果期间推进不会重复派发
	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	assert.Len(t, enq.Tasks(), 1)

	for i := 1; i <= 3; i++ {
		clock.Add(time.Second)
		job, err = e.RecordFail(ctx, job.Id, "usps", fail("usps-adapter"))
		require.NoError(t, err)
		assert.Equal(t, int32(i), job.Method("usps").Failures)
	}
	assert.Equal(t, domain.MethodStatusFailed, job.Method("usps").Status)
	assert.Equal(t, domain.DeliveryStatusPending, job.Status)

	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	require.Len(t, enq.Tasks(), 2)
	assert.Equal(t, "email", enq.Tasks()[1].MethodId)
	assert.Equal(t, domain.MethodStatusAttempted, job.Method("email").Status)

	job, err = e.RecordConfirm(ctx, job.Id, "email", domain.ConfirmPayload{
		Actor:        "email-adapter",
		ProofFileIds: []string{"receipt-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusCompleted, job.Status)
	assert.Equal(t, []string{"receipt-1"}, job.Method("email").ProofFiles)

	_, err = e.RecordAttempt(ctx, job.Id, "usps", domain.AttemptPayload{Actor: "usps-adapter"})
	assert.ErrorIs(t, err, errs.ErrJobTerminal)

	// 已完成的 job 推进是空操作
	advanced, err := e.Advance(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, job.Version, advanced.Version)
	assert.Len(t, enq.Tasks(), 2)
}

func TestDefaultEngine_RetryBackoff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	enq := &recordingEnqueuer{}
	e := newTestEngine(newTestRepo(), enq, clock)

	job, err := e.CreateJob(ctx, uspsThenEmail())
	require.NoError(t, err)
	_, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)

	_, err = e.RecordFail(ctx, job.Id, "usps", fail("usps-adapter"))
	require.NoError(t, err)

	// 退避时间内不重试，也不会跳到下一个方法
	clock.Add(30 * time.Second)
	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	assert.Len(t, enq.Tasks(), 1)
	assert.Equal(t, domain.MethodStatusPending, job.Method("email").Status)

	clock.Add(31 * time.Second)
	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	require.Len(t, enq.Tasks(), 2)
	assert.Equal(t, "usps", enq.Tasks()[1].MethodId)
	assert.Equal(t, int32(2), job.Method("usps").Attempts)
	assert.True(t, job.Method("usps").AwaitingOutcome)
}

// USPS 已派发时取消，迟到的确认只写入审计日志。
func TestDefaultEngine_CancelWithLateCallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	e := newTestEngine(newTestRepo(), &recordingEnqueuer{}, clock)

	job, err := e.CreateJob(ctx, uspsThenEmail())
	require.NoError(t, err)
	_, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)

	clock.Add(time.Minute)
	job, err = e.Cancel(ctx, job.Id, "clerk")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusCancelled, job.Status)

	clock.Add(time.Minute)
	job, err = e.RecordConfirm(ctx, job.Id, "usps", domain.ConfirmPayload{Actor: "usps-adapter"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusCancelled, job.Status)
	assert.Equal(t, domain.MethodStatusAttempted, job.Method("usps").Status)

	last := job.History[len(job.History)-1]
	assert.Equal(t, domain.HistoryEventConfirm, last.Event)
	assert.True(t, last.IsLate())

	_, err = e.Advance(ctx, job.Id)
	assert.ErrorIs(t, err, errs.ErrJobTerminal)

	_, err = e.Cancel(ctx, job.Id, "clerk")
	assert.ErrorIs(t, err, errs.ErrJobTerminal)
}

func TestDefaultEngine_InvalidTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tcs := []struct {
		name    string
		call    func(e *DefaultEngine, jobId string) error
		wantErr error
	}{
		{
			name: "confirm pending method",
			call: func(e *DefaultEngine, jobId string) error {
				_, err := e.RecordConfirm(ctx, jobId, "usps", domain.ConfirmPayload{Actor: "usps-adapter"})
				return err
			},
			wantErr: errs.ErrInvalidTransition,
		}, {
			name: "fail pending method",
			call: func(e *DefaultEngine, jobId string) error {
				_, err := e.RecordFail(ctx, jobId, "email", fail("email-adapter"))
				return err
			},
			wantErr: errs.ErrInvalidTransition,
		}, {
			name: "unknown method",
			call: func(e *DefaultEngine, jobId string) error {
				_, err := e.RecordAttempt(ctx, jobId, "fax", domain.AttemptPayload{Actor: "fax-adapter"})
				return err
			},
			wantErr: errs.ErrUnknownMethod,
		}, {
			name: "missing actor",
			call: func(e *DefaultEngine, jobId string) error {
				_, err := e.RecordAttempt(ctx, jobId, "usps", domain.AttemptPayload{})
				return err
			},
			wantErr: errs.ErrValidation,
		}, {
			name: "job not found",
			call: func(e *DefaultEngine, _ string) error {
				_, err := e.Advance(ctx, "missing")
				return err
			},
			wantErr: errs.ErrNotFound,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(newTestRepo(), &recordingEnqueuer{}, newClock())
			job, err := e.CreateJob(ctx, uspsThenEmail())
			require.NoError(t, err)

			assert.ErrorIs(t, tc.call(e, job.Id), tc.wantErr)

			// 失败的转换不修改任何状态
			after, err := e.repo.Load(ctx, job.Id)
			require.NoError(t, err)
			assert.Equal(t, job.Version, after.Version)
			assert.Len(t, after.History, 1)
		})
	}
}

func TestDefaultEngine_UnresolvedRequiredField(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	enq := &recordingEnqueuer{}
	e := newTestEngine(newTestRepo(), enq, newClock())

	req := uspsThenEmail()
	req.Methods[0].RecipientContact.Address = ""
	job, err := e.CreateJob(ctx, req)
	require.NoError(t, err)

	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodStatusFailed, job.Method("usps").Status)
	assert.Equal(t, domain.MethodStatusAttempted, job.Method("email").Status)
	require.Len(t, enq.Tasks(), 1)
	assert.Equal(t, "email", enq.Tasks()[0].MethodId)
}

func TestDefaultEngine_ChainExhausted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEngine(newTestRepo(), &recordingEnqueuer{}, newClock())

	req := uspsThenEmail()
	req.Methods = req.Methods[:1]
	req.PriorityOrder = []string{"usps"}
	job, err := e.CreateJob(ctx, req)
	require.NoError(t, err)

	_, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	for range 3 {
		job, err = e.RecordFail(ctx, job.Id, "usps", fail("usps-adapter"))
		require.NoError(t, err)
	}
	assert.Equal(t, domain.DeliveryStatusFailed, job.Status)

	_, err = e.RecordConfirm(ctx, job.Id, "usps", domain.ConfirmPayload{Actor: "usps-adapter"})
	assert.ErrorIs(t, err, errs.ErrJobTerminal)
}

func TestDefaultEngine_AttemptTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	enq := &recordingEnqueuer{}
	e := newTestEngine(newTestRepo(), enq, clock)
	e.policies.ByType = map[domain.MethodType]domain.RetryPolicy{
		domain.MethodTypeUSPS: {MaxAttempts: 1, AttemptTimeout: time.Hour},
	}

	job, err := e.CreateJob(ctx, uspsThenEmail())
	require.NoError(t, err)
	_, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)

	clock.Add(30 * time.Minute)
	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	assert.True(t, job.Method("usps").AwaitingOutcome)
	assert.Len(t, enq.Tasks(), 1)

	// 超时记为失败，重试次数耗尽后推进到 EMAIL
	clock.Add(31 * time.Minute)
	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodStatusFailed, job.Method("usps").Status)
	assert.Equal(t, domain.MethodStatusAttempted, job.Method("email").Status)
	require.Len(t, enq.Tasks(), 2)
	assert.Equal(t, "email", enq.Tasks()[1].MethodId)
}

func TestDefaultEngine_EnqueueFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	enq := &recordingEnqueuer{err: errors.New("queue unavailable")}
	e := newTestEngine(newTestRepo(), enq, newClock())

	job, err := e.CreateJob(ctx, uspsThenEmail())
	require.NoError(t, err)

	job, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)

	usps := job.Method("usps")
	assert.Equal(t, domain.MethodStatusAttempted, usps.Status)
	assert.Equal(t, int32(1), usps.Failures)
	assert.False(t, usps.AwaitingOutcome)
}

// racingRepo 让前两次 Load 互相等待，使两个并发请求基于同一版本提交。
type racingRepo struct {
	repository.DeliveryJobRepo

	loads     atomic.Int32
	barrier   sync.WaitGroup
	conflicts atomic.Int32
}

func (r *racingRepo) Load(ctx context.Context, id string) (domain.DeliveryJob, error) {
	job, err := r.DeliveryJobRepo.Load(ctx, id)
	if r.loads.Add(1) <= 2 {
		r.barrier.Done()
		r.barrier.Wait()
	}
	return job, err
}

func (r *racingRepo) Commit(ctx context.Context, job domain.DeliveryJob, expectedVersion int64) (domain.DeliveryJob, error) {
	res, err := r.DeliveryJobRepo.Commit(ctx, job, expectedVersion)
	if errors.Is(err, errs.ErrConflict) {
		r.conflicts.Add(1)
	}
	return res, err
}

// 同一方法的两次并发失败上报，冲突后重放，两次失败都被记录。
func TestDefaultEngine_ConcurrentFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := newTestRepo()
	e := newTestEngine(base, &recordingEnqueuer{}, newClock())

	job, err := e.CreateJob(ctx, uspsThenEmail())
	require.NoError(t, err)
	_, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)

	racing := &racingRepo{DeliveryJobRepo: base}
	racing.barrier.Add(2)
	e.repo = racing

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	for _, actor := range []string{"adapter-a", "adapter-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.RecordFail(ctx, job.Id, "usps", fail(actor))
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), racing.conflicts.Load())

	final, err := base.Load(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, int32(2), final.Method("usps").Failures)
	assert.Equal(t, domain.MethodStatusAttempted, final.Method("usps").Status)
}

type conflictRepo struct {
	repository.DeliveryJobRepo
	commits atomic.Int32
}

func (r *conflictRepo) Commit(context.Context, domain.DeliveryJob, int64) (domain.DeliveryJob, error) {
	r.commits.Add(1)
	return domain.DeliveryJob{}, errs.ErrConflict
}

func TestDefaultEngine_ConflictRetriesExhausted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := newTestRepo()
	e := newTestEngine(base, &recordingEnqueuer{}, newClock())

	job, err := e.CreateJob(ctx, uspsThenEmail())
	require.NoError(t, err)

	repo := &conflictRepo{DeliveryJobRepo: base}
	e.repo = repo

	_, err = e.Cancel(ctx, job.Id, "clerk")
	assert.ErrorIs(t, err, errs.ErrConflict)
	// 首次提交加上 3 次重试
	assert.Equal(t, int32(4), repo.commits.Load())

	after, err := base.Load(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusCreated, after.Status)
}

func TestDefaultEngine_History(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	e := newTestEngine(newTestRepo(), &recordingEnqueuer{}, clock)

	job, err := e.CreateJob(ctx, uspsThenEmail())
	require.NoError(t, err)
	start := clock.Now()

	clock.Add(time.Hour)
	_, err = e.Advance(ctx, job.Id)
	require.NoError(t, err)

	all, err := e.History(ctx, job.Id, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.HistoryEventCreated, all[0].Event)
	assert.Equal(t, domain.HistoryEventAttempt, all[1].Event)
	assert.Less(t, all[0].Seq, all[1].Seq)

	ranged, err := e.History(ctx, job.Id, start, start.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, domain.HistoryEventCreated, ranged[0].Event)

	_, err = e.History(ctx, job.Id, start.Add(time.Minute), start)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = e.History(ctx, "missing", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDefaultEngine_ListJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	e := newTestEngine(newTestRepo(), &recordingEnqueuer{}, clock)

	ids := make([]string, 0, 3)
	for _, caseId := range []string{"case-a", "case-b", "case-a"} {
		job := uspsThenEmail()
		job.CaseId = caseId
		created, err := e.CreateJob(ctx, job)
		require.NoError(t, err)
		ids = append(ids, created.Id)
		clock.Add(time.Minute)
	}
	_, err := e.Cancel(ctx, ids[0], "clerk")
	require.NoError(t, err)

	tcs := []struct {
		name    string
		filter  domain.JobFilter
		wantIds []string
		wantErr error
	}{
		{
			name:    "all newest first",
			filter:  domain.JobFilter{},
			wantIds: []string{ids[2], ids[1], ids[0]},
		}, {
			name:    "by case",
			filter:  domain.JobFilter{CaseId: "case-a"},
			wantIds: []string{ids[2], ids[0]},
		}, {
			name:    "by status",
			filter:  domain.JobFilter{Status: domain.DeliveryStatusCancelled},
			wantIds: []string{ids[0]},
		}, {
			name:    "paged",
			filter:  domain.JobFilter{Offset: 1, Limit: 1},
			wantIds: []string{ids[1]},
		}, {
			name:    "invalid status",
			filter:  domain.JobFilter{Status: "DELIVERED"},
			wantErr: errs.ErrValidation,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			jobs, err := e.ListJobs(ctx, tc.filter)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			got := make([]string, 0, len(jobs))
			for _, job := range jobs {
				got = append(got, job.Id)
			}
			assert.Equal(t, tc.wantIds, got)
		})
	}
}
