package errs

import (
	"errors"
)

var (
	ErrValidation        = errors.New("[jdelivery] validation error")
	ErrNotFound          = errors.New("[jdelivery] delivery job not found")
	ErrUnknownMethod     = errors.New("[jdelivery] unknown delivery method")
	ErrInvalidTransition = errors.New("[jdelivery] invalid method transition")
	ErrConflict          = errors.New("[jdelivery] delivery job version conflict")
	ErrJobTerminal       = errors.New("[jdelivery] delivery job is terminal")

	ErrNoAdapter        = errors.New("[jdelivery] no adapter for method type")
	ErrDispatchFailed   = errors.New("[jdelivery] failed to dispatch delivery method")
	ErrLockNotAcquired  = errors.New("[jdelivery] lock not acquired")
	ErrAcquireExceeded  = errors.New("[jdelivery] acquire exceeds partition limit")
	ErrCacheKeyNotFound = errors.New("[jdelivery] cache key not found")
	ErrInvalidToken     = errors.New("[jdelivery] invalid adapter token")
	ErrDuplicateRequest = errors.New("[jdelivery] duplicate request")

	ErrErrorRateExceeded = errors.New("[jdelivery] error rate threshold exceeded")
)
