package llmprovider

import (
	"testing"

	"github.com/xonecas/agentcore/internal/message"
)

func TestAggregateInterleavedBlocks(t *testing.T) {
	events := make(chan StreamEvent, 32)
	events <- StreamEvent{Kind: StreamBlockStart, BlockIndex: 0, BlockKind: BlockText}
	events <- StreamEvent{Kind: StreamBlockDelta, BlockIndex: 0, Text: "Let me "}
	events <- StreamEvent{Kind: StreamBlockDelta, BlockIndex: 0, Text: "check that."}
	events <- StreamEvent{Kind: StreamBlockStop, BlockIndex: 0}
	events <- StreamEvent{Kind: StreamBlockStart, BlockIndex: 1, BlockKind: BlockToolCall, ToolCallID: "call_1", ToolCallName: "read_file"}
	events <- StreamEvent{Kind: StreamBlockDelta, BlockIndex: 1, ArgFragment: `{"path":`}
	events <- StreamEvent{Kind: StreamBlockDelta, BlockIndex: 1, ArgFragment: `"a.go"}`}
	events <- StreamEvent{Kind: StreamBlockStop, BlockIndex: 1}
	events <- StreamEvent{Kind: StreamDone, StopReason: message.StopReasonToolUse, Usage: message.Usage{Input: 10, Output: 5, Total: 15}}
	close(events)

	var deltas []message.Delta
	msg, err := Aggregate(events, "claude-x", "anthropic", func(d message.Delta) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(msg.Blocks))
	}
	if msg.Blocks[0].Text != "Let me check that." {
		t.Errorf("text block mismatch: %q", msg.Blocks[0].Text)
	}
	if msg.Blocks[1].ToolCallName != "read_file" {
		t.Errorf("tool call name mismatch: %q", msg.Blocks[1].ToolCallName)
	}
	if string(msg.Blocks[1].ToolCallArgs) != `{"path":"a.go"}` {
		t.Errorf("tool call args mismatch: %s", msg.Blocks[1].ToolCallArgs)
	}
	if msg.StopReason != message.StopReasonToolUse {
		t.Errorf("stop reason mismatch: %v", msg.StopReason)
	}
	if msg.Usage.Total != 15 {
		t.Errorf("usage mismatch: %+v", msg.Usage)
	}
	if len(deltas) == 0 {
		t.Error("expected onDelta to be invoked")
	}
}

func TestAggregateStreamError(t *testing.T) {
	events := make(chan StreamEvent, 1)
	events <- StreamEvent{Kind: StreamError, Err: RateLimited(2000, "slow down")}
	close(events)

	_, err := Aggregate(events, "m", "p", nil)
	if err == nil || err.Kind != ErrRateLimited {
		t.Fatalf("expected rate_limited error, got %+v", err)
	}
	if !err.IsRetryable() {
		t.Error("rate limited errors must be retryable")
	}
}

func TestAuthErrorNotRetryable(t *testing.T) {
	err := AuthError("bad key")
	if err.IsRetryable() {
		t.Error("auth errors must not be retryable")
	}
}
