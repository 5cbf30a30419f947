// Package llmprovider defines the uniform streaming interface every vendor
// adapter must satisfy, independent of any one vendor's wire format.
package llmprovider

import (
	"context"

	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

// ThinkingLevel is a hint for how much hidden-reasoning budget to request.
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
)

// GenOptions carries generation settings independent of any one vendor.
type GenOptions struct {
	MaxTokens     int
	Temperature   float64
	ThinkingLevel ThinkingLevel
}

// CacheHints tells an adapter which vendor-agnostic breakpoints the
// cache-breakpoint placer decided on for this request. Vendors with
// implicit caching ignore these.
type CacheHints struct {
	SystemPrompt bool
	ToolDefs     bool
	HistoryTail  bool
}

// Request is the input to one provider call.
type Request struct {
	ModelID      string
	SystemPrompt string
	Messages     []message.Message
	Tools        []tool.Definition
	Options      GenOptions
	Cache        CacheHints
}

// Provider streams a single assistant response for a Request. Implementations
// must be idempotent and side-effect-free before the returned channel is
// first read from, so the retry engine may call Stream again after a
// transient failure.
type Provider interface {
	// Name returns the provider's identifier (used in logs and in the
	// assistant message's ProviderID field).
	Name() string

	// Stream sends req and returns a channel of StreamEvent, closed after
	// a StreamDone or StreamError event. Cancelling ctx aborts pending
	// reads promptly and the channel's terminal event is StreamError with
	// an Error of kind Cancelled.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// Close releases idle connections and other resources.
	Close() error
}

// Factory creates a configured Provider instance for a given model.
type Factory interface {
	Name() string
	Create(model string, opts GenOptions) Provider
}
