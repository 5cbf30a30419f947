package message

import (
	"strings"
	"time"
)

// Role discriminates the three concrete Message variants.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "toolResult"
)

// StopReason is the terminal state of an assistant turn.
type StopReason string

const (
	StopReasonStop     StopReason = "stop"
	StopReasonLength   StopReason = "length"
	StopReasonToolUse  StopReason = "tool_use"
	StopReasonError    StopReason = "error"
	StopReasonAborted  StopReason = "aborted"
	StopReasonNone     StopReason = ""
)

// Usage carries token accounting for one assistant turn.
type Usage struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cacheRead"`
	CacheWrite int `json:"cacheWrite"`
	Total      int `json:"total"`
}

// CacheHitRate returns cache-read / (input + cache-read), or 0 when the
// denominator is 0.
func (u Usage) CacheHitRate() float64 {
	denom := u.Input + u.CacheRead
	if denom <= 0 {
		return 0
	}
	return float64(u.CacheRead) / float64(denom)
}

// Add accumulates usage from another report into u.
func (u *Usage) Add(o Usage) {
	u.Input += o.Input
	u.Output += o.Output
	u.CacheRead += o.CacheRead
	u.CacheWrite += o.CacheWrite
	u.Total += o.Total
}

// Message is the tagged variant for the three conversation roles: User,
// Assistant, or ToolResult. Role-specific fields are zero-valued on the
// other variants; callers should only read fields that apply to m.Role.
type Message struct {
	Role      Role      `json:"role"`
	Blocks    []Content `json:"blocks"`
	Timestamp time.Time `json:"timestamp"`

	// Assistant-only.
	StopReason StopReason `json:"stopReason,omitempty"`
	ModelID    string     `json:"modelId,omitempty"`
	ProviderID string     `json:"providerId,omitempty"`
	Usage      Usage      `json:"usage,omitempty"`
	ErrorText  string     `json:"errorText,omitempty"`

	// ToolResult-only.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
}

// NewUser builds a User message with the given content blocks.
func NewUser(blocks ...Content) Message {
	return Message{Role: RoleUser, Blocks: blocks, Timestamp: timeNow()}
}

// NewAssistant builds an Assistant message.
func NewAssistant(blocks []Content, stopReason StopReason, modelID, providerID string, usage Usage) Message {
	return Message{
		Role:       RoleAssistant,
		Blocks:     blocks,
		StopReason: stopReason,
		ModelID:    modelID,
		ProviderID: providerID,
		Usage:      usage,
		Timestamp:  timeNow(),
	}
}

// NewToolResult builds a ToolResult message.
func NewToolResult(toolCallID, toolName string, blocks []Content, isError bool) Message {
	return Message{
		Role:       RoleToolResult,
		Blocks:     blocks,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		IsError:    isError,
		Timestamp:  timeNow(),
	}
}

// ToolCalls returns the KindToolCall blocks of an assistant message.
func (m Message) ToolCalls() []Content {
	if m.Role != RoleAssistant {
		return nil
	}
	return ToolCalls(m.Blocks)
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	return JoinText(m.Blocks)
}

// overflowPhrases is the curated catalogue of vendor phrases that signal a
// request exceeded the model's context window, matched case-insensitively
// as substrings.
var overflowPhrases = []string{
	"context length",
	"context_length_exceeded",
	"maximum context length",
	"context window",
	"too many tokens",
	"prompt is too long",
	"input is too long",
	"exceeds the model's maximum",
	"reduce the length of the messages",
}

// IsOverflowText reports whether text matches the overflow catalogue.
func IsOverflowText(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range overflowPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsContextOverflow reports whether an assistant message's error text
// qualifies as a context-overflow signal.
func (m Message) IsContextOverflow() bool {
	return m.Role == RoleAssistant && m.StopReason == StopReasonError && IsOverflowText(m.ErrorText)
}

// ByteLen estimates the serialized size of a whole message, used by the
// context tracker's fallback estimator.
func (m Message) ByteLen() int {
	n := len(m.ToolCallID) + len(m.ToolName) + len(m.ErrorText) + len(m.ModelID) + len(m.ProviderID)
	for _, b := range m.Blocks {
		n += b.ByteLen()
	}
	return n
}
