package retry

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter paces provider calls against an adaptive tokens-per-minute
// budget: golang.org/x/time/rate.Limiter enforces the budget, and the
// budget itself shrinks on a rate-limit response and grows gradually on
// success, so a provider that starts throttling is backed off from
// immediately rather than only after the server error count piles up.
type Limiter struct {
	mu sync.Mutex

	bucket *rate.Limiter

	currentTPM  float64
	minTPM      float64
	maxTPM      float64
	recoveryTPM float64
}

// NewLimiter builds a Limiter starting at initialTPM tokens/minute, capped
// at maxTPM (raised to initialTPM if given smaller). The floor it can back
// off to is 10% of initialTPM; each success nudges the budget up by 5% of
// initialTPM.
func NewLimiter(initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryTPM := initialTPM * 0.05
	if recoveryTPM < 1 {
		recoveryTPM = 1
	}
	return &Limiter{
		bucket:      rate.NewLimiter(rate.Limit(initialTPM/60), int(initialTPM)),
		currentTPM:  initialTPM,
		minTPM:      minTPM,
		maxTPM:      maxTPM,
		recoveryTPM: recoveryTPM,
	}
}

// Wait blocks until estimatedTokens of budget are available, or ctx is
// done. An estimate larger than the current burst is capped at the burst.
func (l *Limiter) Wait(ctx context.Context, estimatedTokens int) error {
	if estimatedTokens <= 0 {
		estimatedTokens = 1
	}
	if burst := l.bucket.Burst(); estimatedTokens > burst {
		estimatedTokens = burst
	}
	return l.bucket.WaitN(ctx, estimatedTokens)
}

// OnRateLimited halves the current budget, never below the floor, after
// the provider reports it is rate limiting the caller.
func (l *Limiter) OnRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM * 0.5
	if next < l.minTPM {
		next = l.minTPM
	}
	l.setTPM(next)
}

// OnSuccess nudges the budget back up toward the ceiling after a call
// completes without a rate-limit response.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM + l.recoveryTPM
	if next > l.maxTPM {
		next = l.maxTPM
	}
	l.setTPM(next)
}

// setTPM must be called with mu held.
func (l *Limiter) setTPM(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.bucket.SetLimit(rate.Limit(tpm / 60))
	l.bucket.SetBurst(int(tpm))
}
