package domain

import (
	"fmt"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/pkg/retry"
)

const defaultMaxAttempts = 3

// RetryPolicy 单个渠道类型的重试策略
type RetryPolicy struct {
	MaxAttempts int32         `json:"max_attempts" mapstructure:"max_attempts"`
	Backoff     *retry.Config `json:"backoff" mapstructure:"backoff"`
	// AttemptTimeout 派发后等待结果的最长时间，超时记为一次失败，0 表示一直等待
	AttemptTimeout time.Duration `json:"attempt_timeout" mapstructure:"attempt_timeout"`
}

// RetryPolicies 按渠道类型配置的重试策略，未配置的类型使用 Default。
type RetryPolicies struct {
	Default RetryPolicy                `json:"default" mapstructure:"default"`
	ByType  map[MethodType]RetryPolicy `json:"by_type" mapstructure:"by_type"`
}

// Validate 校验每个策略的退避配置都能构造出重试策略。
func (rp RetryPolicies) Validate() error {
	if err := rp.Default.validate(); err != nil {
		return fmt.Errorf("%w: default retry policy: %w", errs.ErrValidation, err)
	}
	for t, p := range rp.ByType {
		if !t.Validate() {
			return fmt.Errorf("%w: retry policy for unknown method type %q", errs.ErrValidation, t)
		}
		if err := p.validate(); err != nil {
			return fmt.Errorf("%w: retry policy for %s: %w", errs.ErrValidation, t, err)
		}
	}
	return nil
}

func (p RetryPolicy) validate() error {
	if p.Backoff == nil {
		return nil
	}
	_, err := retry.NewRetryStrategy(*p.Backoff)
	return err
}

func (rp RetryPolicies) For(t MethodType) RetryPolicy {
	policy, ok := rp.ByType[t]
	if !ok {
		policy = rp.Default
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	return policy
}

// NextAttemptAt 计算方法下一次可以重试的时间，没有失败记录时返回零值。
func (p RetryPolicy) NextAttemptAt(m DeliveryMethod) time.Time {
	if m.LastFailureAt == nil {
		return time.Time{}
	}
	return m.LastFailureAt.Add(retry.NextInterval(p.Backoff, m.Failures-1))
}

// Retryable 判断方法是否可以被再次派发：
// 处于 ATTEMPTED、没有尚未返回结果的派发、仍在重试预算内且已过退避时间。
func (p RetryPolicy) Retryable(m DeliveryMethod, now time.Time) bool {
	if m.Status != MethodStatusAttempted || m.AwaitingOutcome {
		return false
	}
	if m.Failures >= p.MaxAttempts {
		return false
	}
	return !now.Before(p.NextAttemptAt(m))
}

// TimedOut 判断等待中的派发是否已经超时
func (p RetryPolicy) TimedOut(m DeliveryMethod, now time.Time) bool {
	if p.AttemptTimeout <= 0 || !m.AwaitingOutcome || m.LastAttemptAt == nil {
		return false
	}
	return !now.Before(m.LastAttemptAt.Add(p.AttemptTimeout))
}
