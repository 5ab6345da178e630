package retry

import (
	"fmt"
	"time"

	"github.com/JrMarcco/easy-kit/retry"
)

const (
	TypeFixedInterval      = "fixed_interval"
	TypeExponentialBackoff = "exponential_backoff"
)

// Config 重试间隔配置，同时支持 json（缓存）与 mapstructure（viper）。
type Config struct {
	Type               string                    `json:"type" mapstructure:"type"`
	FixedInterval      *FixedIntervalConfig      `json:"fixed_interval" mapstructure:"fixed_interval"`
	ExponentialBackoff *ExponentialBackoffConfig `json:"exponential_backoff" mapstructure:"exponential_backoff"`
}

type ExponentialBackoffConfig struct {
	InitInterval time.Duration `json:"init_interval" mapstructure:"init_interval"`
	MaxInterval  time.Duration `json:"max_interval" mapstructure:"max_interval"`
	MaxTimes     int32         `json:"max_times" mapstructure:"max_times"`
}

type FixedIntervalConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	MaxTimes int32         `json:"max_times" mapstructure:"max_times"`
}

func NewRetryStrategy(cfg Config) (retry.Strategy, error) {
	switch cfg.Type {
	case TypeFixedInterval:
		if cfg.FixedInterval == nil {
			return nil, fmt.Errorf("missing fixed_interval config")
		}
		return retry.NewFixedIntervalStrategy(cfg.FixedInterval.Interval, cfg.FixedInterval.MaxTimes)
	case TypeExponentialBackoff:
		if cfg.ExponentialBackoff == nil {
			return nil, fmt.Errorf("missing exponential_backoff config")
		}
		return retry.NewExponentialBackoffStrategy(
			cfg.ExponentialBackoff.InitInterval,
			cfg.ExponentialBackoff.MaxInterval,
			cfg.ExponentialBackoff.MaxTimes,
		)
	default:
		return nil, fmt.Errorf("unknown retry strategy type: %s", cfg.Type)
	}
}

// NextInterval 计算已经重试 retried 次之后，下一次重试前需要等待的时间。
// 未配置或者策略已耗尽时返回 0，是否还能重试由调用方的次数上限决定。
func NextInterval(cfg *Config, retried int32) time.Duration {
	if cfg == nil {
		return 0
	}

	strategy, err := NewRetryStrategy(*cfg)
	if err != nil {
		return 0
	}

	interval, ok := strategy.NextWithRetried(retried)
	if !ok {
		return 0
	}
	return interval
}
