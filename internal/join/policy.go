package join

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy decides which join attempts are retried and how long to wait
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based)
	Backoff         func(attempt int) time.Duration
	RetryableStatus map[int]bool
}

// DefaultPolicy is three attempts with 1s then 4s between them
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		RetryableStatus: map[int]bool{
			429: true,
			500: true,
			502: true,
			503: true,
			504: true,
		},
	}
}

// Retryable reports whether an attempt that ended with status/err may be retried.
// A transport error or a missing response is always retryable.
func (p RetryPolicy) Retryable(status int, err error) bool {
	if err != nil || status == 0 {
		return true
	}
	return p.RetryableStatus[status]
}

func (p RetryPolicy) backOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

// policyBackOff adapts a RetryPolicy to backoff.BackOff
type policyBackOff struct {
	policy  RetryPolicy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt >= b.policy.MaxAttempts {
		return backoff.Stop
	}
	if b.policy.Backoff == nil {
		return 0
	}
	return b.policy.Backoff(b.attempt)
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}
