// Package cachebreak decides where to place vendor prompt-cache breakpoints
// for a request, independent of which vendor ends up serving it. Vendors
// with implicit caching (that cache automatically with no hints) simply
// ignore the result.
package cachebreak

import "github.com/xonecas/agentcore/internal/llmprovider"

// Strategy selects which breakpoints a Placer marks.
type Strategy int

const (
	// Auto marks every breakpoint the vendor supports.
	Auto Strategy = iota
	// Manual marks only the breakpoints explicitly enabled.
	Manual
	// Disabled marks no breakpoints at all.
	Disabled
)

// ManualConfig selects individual breakpoints under Strategy Manual.
type ManualConfig struct {
	SystemPrompt bool
	ToolDefs     bool
	HistoryTail  bool
}

// Placer computes llmprovider.CacheHints for a request.
type Placer struct {
	Strategy Strategy
	Manual   ManualConfig
}

// AutoPlacer builds a Placer that marks every supported breakpoint.
func AutoPlacer() *Placer { return &Placer{Strategy: Auto} }

// DisabledPlacer builds a Placer that never marks breakpoints.
func DisabledPlacer() *Placer { return &Placer{Strategy: Disabled} }

// NewManual builds a Placer honoring exactly the breakpoints cfg enables.
func NewManual(cfg ManualConfig) *Placer { return &Placer{Strategy: Manual, Manual: cfg} }

// Place returns the cache hints for a request with historyLen messages and
// hasTools tool definitions. The three boundaries mirror vendor prompt
// caching conventions: end of system prompt, end of tool definitions, and
// end of the second-to-last history message (the last message a follow-up
// turn is guaranteed to still share a prefix with).
func (p *Placer) Place(historyLen int, hasTools bool) llmprovider.CacheHints {
	switch p.Strategy {
	case Disabled:
		return llmprovider.CacheHints{}
	case Manual:
		hints := p.Manual
		return llmprovider.CacheHints{
			SystemPrompt: hints.SystemPrompt,
			ToolDefs:     hints.ToolDefs && hasTools,
			HistoryTail:  hints.HistoryTail && historyLen >= 2,
		}
	default: // Auto
		return llmprovider.CacheHints{
			SystemPrompt: true,
			ToolDefs:     hasTools,
			HistoryTail:  historyLen >= 2,
		}
	}
}
