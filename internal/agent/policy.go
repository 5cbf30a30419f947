package agent

import (
	"time"

	"github.com/xonecas/agentcore/internal/cachebreak"
	"github.com/xonecas/agentcore/internal/compact"
	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/retry"
	"github.com/xonecas/agentcore/internal/schedule"
	"github.com/xonecas/agentcore/internal/tracker"
)

// ScratchpadReader returns an agent-maintained scratchpad's current text,
// or "" if none is kept. Recitation falls back to reciting the original
// request when this is nil or returns "".
type ScratchpadReader func() string

// Policy bundles every configurable behavior a Loop invocation needs.
type Policy struct {
	Retry     retry.Policy
	Tracker   *tracker.Tracker   // context-window accounting; required
	Compactor *compact.Compactor // nil disables compaction (non-destructive)
	// ContextBudget is the token ceiling the compactor targets: typically
	// max-context-tokens minus system-prompt-tokens reserve.
	ContextBudget int
	Cache         *cachebreak.Placer
	Scheduler     *schedule.Scheduler
	SteeringMode  DeliveryMode
	FollowUpMode  DeliveryMode
	Limits        Limits
	GenOptions    llmprovider.GenOptions

	// RecitationInterval, when > 0, makes the loop recite the original
	// request (or Scratchpad's content, if set) into the tail of context
	// every RecitationInterval tool-calling rounds. 0 disables it.
	RecitationInterval int
	Scratchpad         ScratchpadReader
}

// DefaultPolicy mirrors the documented configuration-surface defaults:
// a 100000-token context budget with a 4000-token system-prompt reserve,
// 50 turns, 1,000,000 cumulative tokens, a 600s wall clock, and
// OneAtATime delivery for both injection queues.
func DefaultPolicy() Policy {
	retryPolicy := retry.DefaultPolicy()
	retryPolicy.RateLimiter = retry.NewLimiter(60000, 60000)
	return Policy{
		Retry:         retryPolicy,
		Tracker:       tracker.New(100000),
		ContextBudget: 100000 - 4000,
		Cache:         cachebreak.AutoPlacer(),
		Scheduler:     schedule.New(schedule.ParallelStrategy{}),
		SteeringMode:  OneAtATime,
		FollowUpMode:  OneAtATime,
		Limits: Limits{
			MaxTurns:            50,
			MaxCumulativeTokens: 1000000,
			MaxWallClock:        600 * time.Second,
		},
	}
}
