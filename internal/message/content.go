// Package message defines the content, message, and event model shared by
// the agent loop, the tool scheduler, and every provider adapter.
package message

import (
	"encoding/json"
	"time"
)

// ContentKind discriminates the variants of Content.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindImage    ContentKind = "image"
	KindThinking ContentKind = "thinking"
	KindToolCall ContentKind = "tool_call"
)

// Content is a tagged variant: Text, Image, Thinking, or ToolCall. Model
// responses, user prompts, and tool results are all sequences of these.
type Content struct {
	Kind ContentKind `json:"kind"`

	// Text: set for KindText and KindThinking.
	Text string `json:"text,omitempty"`

	// Thinking: optional cryptographic signature vendors attach to
	// thinking blocks so they can be replayed unmodified in a later turn.
	ThinkingSignature string `json:"thinkingSignature,omitempty"`

	// Image.
	ImageBytes     []byte `json:"imageBytes,omitempty"`
	ImageMediaType string `json:"imageMediaType,omitempty"`

	// ToolCall.
	ToolCallID   string          `json:"toolCallId,omitempty"`
	ToolCallName string          `json:"toolCallName,omitempty"`
	ToolCallArgs json.RawMessage `json:"toolCallArgs,omitempty"`
}

// Text builds a KindText content block.
func Text(s string) Content { return Content{Kind: KindText, Text: s} }

// Thinking builds a KindThinking content block.
func Thinking(s, signature string) Content {
	return Content{Kind: KindThinking, Text: s, ThinkingSignature: signature}
}

// Image builds a KindImage content block.
func Image(data []byte, mediaType string) Content {
	return Content{Kind: KindImage, ImageBytes: data, ImageMediaType: mediaType}
}

// ToolCall builds a KindToolCall content block.
func ToolCall(id, name string, args json.RawMessage) Content {
	return Content{Kind: KindToolCall, ToolCallID: id, ToolCallName: name, ToolCallArgs: args}
}

// ByteLen estimates the serialized size of one content block, used by the
// context tracker's byte/4 token estimate.
func (c Content) ByteLen() int {
	switch c.Kind {
	case KindText, KindThinking:
		return len(c.Text)
	case KindImage:
		return len(c.ImageBytes)
	case KindToolCall:
		return len(c.ToolCallName) + len(c.ToolCallArgs) + len(c.ToolCallID)
	default:
		return 0
	}
}

// ToolCalls filters a block slice down to the KindToolCall entries.
func ToolCalls(blocks []Content) []Content {
	var out []Content
	for _, b := range blocks {
		if b.Kind == KindToolCall {
			out = append(out, b)
		}
	}
	return out
}

// JoinText concatenates every KindText block's text, in order.
func JoinText(blocks []Content) string {
	var out string
	for _, b := range blocks {
		if b.Kind == KindText {
			out += b.Text
		}
	}
	return out
}

// timeNow exists so tests can freeze the clock; production code calls
// time.Now directly via this var's default value.
var timeNow = time.Now
