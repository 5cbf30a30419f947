// Package tracker estimates how much of a model's context window a
// conversation occupies, combining real usage reports from the provider with
// a byte/4 fallback estimate for messages that haven't been billed yet.
package tracker

import (
	"github.com/xonecas/agentcore/internal/message"
)

// bytesPerToken is the rough ratio used to estimate token count for
// messages the provider hasn't reported real usage for yet.
const bytesPerToken = 4

// Tracker keeps a running estimate of context window occupancy across a
// growing message history. Real usage reports are indexed by the message
// position they arrived at; messages appended after the last reported
// position fall back to a byte-length estimate.
type Tracker struct {
	limit        int
	lastReported Usage
	reportedAt   int // message count at the time of lastReported
}

// Usage is one usage report, indexed by the length of history at the time
// it was received.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CacheRead    int
	CacheWrite   int
}

// New builds a Tracker for a model with the given context window limit, in
// tokens. A limit of 0 disables overflow checks (Remaining always returns a
// positive number).
func New(limit int) *Tracker {
	return &Tracker{limit: limit}
}

// Limit returns the configured context window size.
func (t *Tracker) Limit() int { return t.limit }

// Report records a real usage figure from the provider, observed when
// history had messageCount messages. Later reports with a lower message
// count are ignored — usage can only grow monotonically with the turns it
// was billed for.
func (t *Tracker) Report(messageCount int, u message.Usage) {
	if messageCount < t.reportedAt {
		return
	}
	t.reportedAt = messageCount
	t.lastReported = Usage{
		InputTokens:  u.Input,
		OutputTokens: u.Output,
		CacheRead:    u.CacheRead,
		CacheWrite:   u.CacheWrite,
	}
}

// Reset clears accumulated usage, called after a compaction pass rewrites
// history and invalidates prior usage reports.
func (t *Tracker) Reset() {
	t.lastReported = Usage{}
	t.reportedAt = 0
}

// Estimate returns the current occupancy estimate in tokens: the last
// reported total, plus a byte/4 estimate of every message appended since
// that report.
func (t *Tracker) Estimate(history []message.Message) int {
	total := t.lastReported.InputTokens + t.lastReported.OutputTokens + t.lastReported.CacheRead

	tail := history
	if t.reportedAt <= len(history) {
		tail = history[t.reportedAt:]
	}
	for _, m := range tail {
		total += m.ByteLen() / bytesPerToken
	}
	return total
}

// Remaining returns how many tokens are left before limit, clamped to 0.
// It always returns a large positive number when no limit is configured.
func (t *Tracker) Remaining(history []message.Message) int {
	if t.limit <= 0 {
		return int(^uint(0) >> 1)
	}
	remaining := t.limit - t.Estimate(history)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Fraction returns Estimate/Limit, or 0 when no limit is configured.
func (t *Tracker) Fraction(history []message.Message) float64 {
	if t.limit <= 0 {
		return 0
	}
	return float64(t.Estimate(history)) / float64(t.limit)
}

// CacheHitRate returns the last reported cache-read ratio, mirroring
// message.Usage.CacheHitRate for the tracker's accumulated view.
func (t *Tracker) CacheHitRate() float64 {
	denom := t.lastReported.InputTokens + t.lastReported.CacheRead
	if denom <= 0 {
		return 0
	}
	return float64(t.lastReported.CacheRead) / float64(denom)
}
