package schedule

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

type fakeTool struct {
	name string
	fn   func(ctx context.Context, args json.RawMessage) (tool.Result, *tool.Error)
}

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) Label() string       { return f.name }
func (f fakeTool) Description() string { return "" }
func (f fakeTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (f fakeTool) Execute(ctx context.Context, ectx tool.ExecContext, args json.RawMessage) (tool.Result, *tool.Error) {
	return f.fn(ctx, args)
}

func callFor(id, name string) Call {
	return Call{
		Request: message.ToolCall(id, name, json.RawMessage(`{}`)),
		Tool: fakeTool{name: name, fn: func(ctx context.Context, args json.RawMessage) (tool.Result, *tool.Error) {
			return tool.TextResult(name + "-ok"), nil
		}},
	}
}

func TestRunSequentialPreservesOrder(t *testing.T) {
	s := New(SequentialStrategy{})
	calls := []Call{callFor("1", "a"), callFor("2", "b"), callFor("3", "c")}
	out := s.Run(context.Background(), calls)
	if len(out) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(out))
	}
	for i, expect := range []string{"a-ok", "b-ok", "c-ok"} {
		if got := message.JoinText(out[i].Result.Blocks); got != expect {
			t.Errorf("index %d: expected %q, got %q", i, expect, got)
		}
	}
}

func TestRunParallelReassemblesInOrder(t *testing.T) {
	s := New(ParallelStrategy{})
	calls := []Call{callFor("1", "a"), callFor("2", "b"), callFor("3", "c")}
	out := s.Run(context.Background(), calls)
	for i, expect := range []string{"a-ok", "b-ok", "c-ok"} {
		if out[i].CallID != calls[i].Request.ToolCallID {
			t.Errorf("index %d: call id mismatch", i)
		}
		if got := message.JoinText(out[i].Result.Blocks); got != expect {
			t.Errorf("index %d: expected %q, got %q", i, expect, got)
		}
	}
}

func TestRunBatchedChunks(t *testing.T) {
	s := New(BatchedStrategy{Size: 2})
	calls := []Call{callFor("1", "a"), callFor("2", "b"), callFor("3", "c"), callFor("4", "d"), callFor("5", "e")}
	out := s.Run(context.Background(), calls)
	if len(out) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(out))
	}
	for i := range calls {
		if out[i].CallID != calls[i].Request.ToolCallID {
			t.Errorf("index %d: expected call id %s, got %s", i, calls[i].Request.ToolCallID, out[i].CallID)
		}
	}
}

func TestSteeringStopsFurtherDispatch(t *testing.T) {
	executed := 0
	makeCall := func(id string) Call {
		return Call{
			Request: message.ToolCall(id, "slow", json.RawMessage(`{}`)),
			Tool: fakeTool{name: "slow", fn: func(ctx context.Context, args json.RawMessage) (tool.Result, *tool.Error) {
				executed++
				return tool.TextResult("done"), nil
			}},
		}
	}
	calls := []Call{makeCall("1"), makeCall("2"), makeCall("3")}

	checked := 0
	s := New(SequentialStrategy{})
	s.Steering = func() bool {
		checked++
		return checked > 1 // let the first call through, stop before the rest
	}
	out := s.Run(context.Background(), calls)

	if executed != 1 {
		t.Errorf("expected exactly 1 call executed before steering cut the round, got %d", executed)
	}
	if out[1].Err == nil || out[1].Err.Kind != tool.ErrCancelled {
		t.Errorf("expected remaining calls cancelled, got %+v", out[1])
	}
	if out[2].Err == nil || out[2].Err.Kind != tool.ErrCancelled {
		t.Errorf("expected remaining calls cancelled, got %+v", out[2])
	}
}

func TestUnresolvedToolYieldsNotFound(t *testing.T) {
	s := New(SequentialStrategy{})
	calls := []Call{{Request: message.ToolCall("1", "missing", json.RawMessage(`{}`)), Tool: nil}}
	out := s.Run(context.Background(), calls)
	if out[0].Err == nil || out[0].Err.Kind != tool.ErrNotFound {
		t.Fatalf("expected not-found error, got %+v", out[0])
	}
}
