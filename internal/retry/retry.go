// Package retry wraps a provider call with classified, jittered exponential
// backoff: RateLimited and Network errors are retried, honoring a server's
// requested retry-after delay when one is given; every other error and
// context cancellation propagate immediately.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentcore/internal/llmprovider"
)

// Policy configures the backoff schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Multiplier scales BaseDelay on each successive attempt. A value <= 1
	// is treated as 2 (doubling).
	Multiplier float64

	// RateLimiter, when set, is consulted before every attempt and is fed
	// the outcome of each one, so the schedule backs off an adaptive
	// tokens-per-minute budget, not just retries after the fact. Nil
	// disables it.
	RateLimiter *Limiter
	// EstimatedTokens is the cost charged against RateLimiter for each
	// attempt. Ignored when RateLimiter is nil.
	EstimatedTokens int
}

// DefaultPolicy returns a conservative retry schedule: a handful of
// attempts, capped well under a minute, doubling each time.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 2}
}

// Do calls fn, retrying while it returns a retryable *llmprovider.Error.
// attempt is 0-indexed. Returns the first success, or the last error once
// attempts are exhausted or the error isn't retryable.
func Do[T any](ctx context.Context, policy Policy, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if policy.RateLimiter != nil {
			if werr := policy.RateLimiter.Wait(ctx, policy.EstimatedTokens); werr != nil {
				return zero, werr
			}
		}

		result, err := fn(attempt)
		if err == nil {
			if policy.RateLimiter != nil {
				policy.RateLimiter.OnSuccess()
			}
			return result, nil
		}
		lastErr = err

		var pErr *llmprovider.Error
		if !errors.As(err, &pErr) || !pErr.IsRetryable() {
			return zero, err
		}
		if policy.RateLimiter != nil && pErr.Kind == llmprovider.ErrRateLimited {
			policy.RateLimiter.OnRateLimited()
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.backoffFor(attempt, pErr)
		log.Warn().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("kind", string(pErr.Kind)).
			Err(err).
			Msg("retrying after classified provider error")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}

// backoffFor picks the delay before the next attempt: the server's
// requested retry-after when present, capped at MaxDelay, else a jittered
// exponential backoff off BaseDelay.
func (p Policy) backoffFor(attempt int, err *llmprovider.Error) time.Duration {
	if err.RetryAfterMs > 0 {
		d := time.Duration(err.RetryAfterMs) * time.Millisecond
		if d > p.MaxDelay {
			d = p.MaxDelay
		}
		return d
	}

	mult := p.Multiplier
	if mult <= 1 {
		mult = 2
	}

	base := p.BaseDelay
	for i := 0; i < attempt; i++ {
		base = time.Duration(float64(base) * mult)
		if base > p.MaxDelay {
			base = p.MaxDelay
			break
		}
	}
	if base <= 0 {
		base = p.MaxDelay
	}

	half := base / 2
	jitter := time.Duration(rand.Int63n(int64(half) + 1))
	return half + jitter
}
