package agent

import (
	"fmt"
	"time"
)

// Limits bounds a single invocation. A zero field disables that limit.
// Checked at the top of every inner-loop iteration.
type Limits struct {
	MaxTurns            int
	MaxCumulativeTokens int
	MaxWallClock        time.Duration
}

// tripped reports the human-readable reason the loop should stop, if any
// of turns/cumulativeTokens/elapsed has reached its configured ceiling.
func (l Limits) tripped(turns, cumulativeTokens int, elapsed time.Duration) (string, bool) {
	if l.MaxTurns > 0 && turns >= l.MaxTurns {
		return fmt.Sprintf("reached the maximum of %d turns", l.MaxTurns), true
	}
	if l.MaxCumulativeTokens > 0 && cumulativeTokens >= l.MaxCumulativeTokens {
		return fmt.Sprintf("reached the maximum of %d cumulative tokens", l.MaxCumulativeTokens), true
	}
	if l.MaxWallClock > 0 && elapsed >= l.MaxWallClock {
		return fmt.Sprintf("reached the maximum invocation duration of %s", l.MaxWallClock), true
	}
	return "", false
}
