package enrich

import (
	"errors"
	"math/rand/v2"
	"time"
)

type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int, err error) time.Duration
	Retryable   func(err error) bool
}

func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     DefaultBackoff,
		Retryable:   IsRetryable,
	}
}

// DefaultBackoff waits min(60s, 2^attempt + U(2,5)s) after a rate limit and
// min(30s, 3*(attempt+1) + U(1,3)s) after other transient failures.
func DefaultBackoff(attempt int, err error) time.Duration {
	if errors.Is(err, ErrRateLimited) {
		delay := time.Duration(1<<min(attempt, 10))*time.Second + jitter(2, 5)
		return min(delay, 60*time.Second)
	}

	delay := time.Duration(attempt+1)*3*time.Second + jitter(1, 3)
	return min(delay, 30*time.Second)
}

func jitter(minSeconds, maxSeconds float64) time.Duration {
	seconds := minSeconds + rand.Float64()*(maxSeconds-minSeconds)
	return time.Duration(seconds * float64(time.Second))
}
