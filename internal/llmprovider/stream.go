package llmprovider

import "github.com/xonecas/agentcore/internal/message"

// StreamEventKind discriminates StreamEvent variants. The sequence an
// adapter emits per content block is Start, then zero or more Delta,
// mirroring the content-block framing vendors use under the hood for
// interleaved text/thinking/tool-call output. A closing Stop is sent by
// the Anthropic adapter; the OpenAI-compatible and Zen adapters send none,
// and their blocks end with the stream's Done.
type StreamEventKind string

const (
	StreamInputUsage  StreamEventKind = "input_usage"
	StreamBlockStart  StreamEventKind = "block_start"
	StreamBlockDelta  StreamEventKind = "block_delta"
	StreamBlockStop   StreamEventKind = "block_stop"
	StreamUsage       StreamEventKind = "usage"
	StreamDone        StreamEventKind = "done"
	StreamError       StreamEventKind = "error"
)

// BlockKind discriminates the three content-block types a stream can open.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockThinking BlockKind = "thinking"
	BlockToolCall BlockKind = "tool_call"
)

// StreamEvent is one event in the ordered sequence a Provider emits while
// streaming a response. An aggregator (see Aggregate) reconstructs a
// complete message.Message from the sequence.
type StreamEvent struct {
	Kind StreamEventKind

	// BlockStart/Delta/Stop: which block this event belongs to. Blocks are
	// identified by their position in emission order.
	BlockIndex int
	BlockKind  BlockKind

	// BlockStart, tool-call blocks only.
	ToolCallID   string
	ToolCallName string

	// BlockDelta.
	Text              string // BlockText, BlockThinking
	ArgFragment       string // BlockToolCall
	ThinkingSignature string // carried on the BlockStop event for BlockThinking

	// StreamInputUsage: tokens counted before generation began (used for
	// providers that report prompt-eval cost separately from the final
	// usage total). CacheReadTokens/CacheWriteTokens carry prompt-cache
	// read/write counters when the provider reports them at this point in
	// the stream (Anthropic reports both on message_start).
	InputTokens      int
	CacheReadTokens  int
	CacheWriteTokens int

	// StreamUsage/Done: final accounting.
	Usage      message.Usage
	StopReason message.StopReason

	// StreamError.
	Err *Error
}
