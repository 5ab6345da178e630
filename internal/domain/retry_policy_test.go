package domain

import (
	"testing"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/pkg/retry"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicies_For(t *testing.T) {
	t.Parallel()

	rp := RetryPolicies{
		Default: RetryPolicy{},
		ByType: map[MethodType]RetryPolicy{
			MethodTypeText: {MaxAttempts: 5, AttemptTimeout: time.Minute},
		},
	}

	assert.Equal(t, int32(5), rp.For(MethodTypeText).MaxAttempts)
	assert.Equal(t, time.Minute, rp.For(MethodTypeText).AttemptTimeout)
	assert.Equal(t, int32(defaultMaxAttempts), rp.For(MethodTypeUSPS).MaxAttempts)
}

func TestRetryPolicy_Retryable(t *testing.T) {
	t.Parallel()

	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff: &retry.Config{
			Type:          retry.TypeFixedInterval,
			FixedInterval: &retry.FixedIntervalConfig{Interval: time.Minute, MaxTimes: 5},
		},
	}
	failedAt := t0

	tcs := []struct {
		name   string
		method DeliveryMethod
		now    time.Time
		want   bool
	}{
		{
			name:   "pending is not retried",
			method: DeliveryMethod{Status: MethodStatusPending},
			now:    t0,
			want:   false,
		}, {
			name:   "awaiting outcome",
			method: DeliveryMethod{Status: MethodStatusAttempted, AwaitingOutcome: true},
			now:    t0,
			want:   false,
		}, {
			name:   "within backoff",
			method: DeliveryMethod{Status: MethodStatusAttempted, Failures: 1, LastFailureAt: &failedAt},
			now:    t0.Add(30 * time.Second),
			want:   false,
		}, {
			name:   "backoff elapsed",
			method: DeliveryMethod{Status: MethodStatusAttempted, Failures: 1, LastFailureAt: &failedAt},
			now:    t0.Add(time.Minute),
			want:   true,
		}, {
			name:   "budget exhausted",
			method: DeliveryMethod{Status: MethodStatusAttempted, Failures: 3, LastFailureAt: &failedAt},
			now:    t0.Add(time.Hour),
			want:   false,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, policy.Retryable(tc.method, tc.now))
		})
	}
}

func TestRetryPolicy_NextAttemptAt(t *testing.T) {
	t.Parallel()

	assert.True(t, RetryPolicy{}.NextAttemptAt(DeliveryMethod{}).IsZero())

	failedAt := t0
	// 未配置退避策略时立即可重试
	assert.Equal(t, t0, RetryPolicy{}.NextAttemptAt(DeliveryMethod{Failures: 1, LastFailureAt: &failedAt}))
}

func TestRetryPolicy_TimedOut(t *testing.T) {
	t.Parallel()

	attemptAt := t0
	awaiting := DeliveryMethod{Status: MethodStatusAttempted, AwaitingOutcome: true, LastAttemptAt: &attemptAt}

	assert.False(t, RetryPolicy{}.TimedOut(awaiting, t0.Add(time.Hour)))

	policy := RetryPolicy{AttemptTimeout: 10 * time.Minute}
	assert.False(t, policy.TimedOut(awaiting, t0.Add(5*time.Minute)))
	assert.True(t, policy.TimedOut(awaiting, t0.Add(10*time.Minute)))

	settled := awaiting
	settled.AwaitingOutcome = false
	assert.False(t, policy.TimedOut(settled, t0.Add(time.Hour)))
}

func TestRetryPolicies_Validate(t *testing.T) {
	t.Parallel()

	fixed := &retry.Config{
		Type:          retry.TypeFixedInterval,
		FixedInterval: &retry.FixedIntervalConfig{Interval: time.Minute, MaxTimes: 3},
	}

	tcs := []struct {
		name     string
		policies RetryPolicies
		wantErr  error
	}{
		{
			name: "valid",
			policies: RetryPolicies{
				Default: RetryPolicy{Backoff: fixed},
				ByType:  map[MethodType]RetryPolicy{MethodTypeText: {MaxAttempts: 5}},
			},
		}, {
			name:     "unknown backoff type",
			policies: RetryPolicies{Default: RetryPolicy{Backoff: &retry.Config{Type: "linear"}}},
			wantErr:  errs.ErrValidation,
		}, {
			name: "missing backoff detail",
			policies: RetryPolicies{ByType: map[MethodType]RetryPolicy{
				MethodTypeEmail: {Backoff: &retry.Config{Type: retry.TypeExponentialBackoff}},
			}},
			wantErr: errs.ErrValidation,
		}, {
			name: "unknown method type",
			policies: RetryPolicies{ByType: map[MethodType]RetryPolicy{
				"PIGEON": {MaxAttempts: 1},
			}},
			wantErr: errs.ErrValidation,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.policies.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
