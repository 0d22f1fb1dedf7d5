package gigachat

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether a failed attempt is retried and after what
// delay. It holds no I/O state, so it can be exercised in isolation.
type RetryPolicy struct {
	// MaxAttempts is the hard cap on attempts, first call included.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff before jitter.
	MaxDelay time.Duration

	// jitter returns a random duration in [0, d]. Swappable in tests.
	jitter func(d time.Duration) time.Duration
}

// DefaultRetryPolicy returns the policy used unless configuration overrides
// it: 3 attempts, 1s base delay, 30s cap.
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(3, time.Second, 30*time.Second)
}

// NewRetryPolicy creates a RetryPolicy, substituting defaults for
// non-positive values.
func NewRetryPolicy(maxAttempts int, base, max time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		MaxDelay:    max,
		jitter: func(d time.Duration) time.Duration {
			if d <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(d) + 1))
		},
	}
}

// Decide reports whether the attempt numbered attempt (1-indexed) that
// failed with kind should be retried, and the delay to wait first.
// retryAfter carries the provider's Retry-After hint when present, else 0.
func (p *RetryPolicy) Decide(attempt int, kind ErrorKind, retryAfter time.Duration) (bool, time.Duration) {
	if attempt >= p.MaxAttempts {
		return false, 0
	}

	switch kind {
	case KindAuth:
		// One immediate retry with a fresh credential; a second auth
		// failure in the same request is terminal. The executor tracks
		// the per-request auth retry separately.
		return true, 0
	case KindRateLimit:
		if retryAfter > 0 {
			return true, retryAfter
		}
		return true, p.backoff(attempt)
	case KindServer, KindNetwork:
		return true, p.backoff(attempt)
	default:
		// KindClient, KindStreamParse: not safely replayable.
		return false, 0
	}
}

// backoff computes base * 2^(attempt-1) capped at MaxDelay, with symmetric
// jitter in [0, delay] added to spread synchronized retries.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	delay := time.Duration(d)
	return delay + p.jitter(delay)
}
