package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/llmprovider/mockprovider"
	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/schedule"
	"github.com/xonecas/agentcore/internal/tool"
)

func drain(t *testing.T, ch <-chan message.Event) []message.Event {
	t.Helper()
	var out []message.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining events")
		}
	}
}

func kinds(events []message.Event) []message.EventKind {
	out := make([]message.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func countKind(events []message.Event, k message.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Compactor = nil
	return p
}

// echoTool always succeeds, optionally recording every call it receives.
type echoTool struct {
	name  string
	calls *[]string
	delay time.Duration
}

func (e echoTool) Name() string            { return e.name }
func (e echoTool) Label() string           { return e.name }
func (e echoTool) Description() string     { return "echoes its arguments" }
func (e echoTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (e echoTool) Execute(ctx context.Context, ectx tool.ExecContext, args json.RawMessage) (tool.Result, *tool.Error) {
	if e.calls != nil {
		*e.calls = append(*e.calls, string(args))
	}
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return tool.Result{}, tool.Cancelled()
		}
	}
	return tool.TextResult("echo:" + string(args)), nil
}

// steeringTool pushes a steering message every time it runs, the way a user
// typing while a tool round is in progress would.
type steeringTool struct {
	echoTool
	steering *Queue
}

func (s steeringTool) Execute(ctx context.Context, ectx tool.ExecContext, args json.RawMessage) (tool.Result, *tool.Error) {
	s.steering.Push([]message.Content{message.Text("stop that")})
	return s.echoTool.Execute(ctx, ectx, args)
}

// 1. Single text turn: no tool calls, one full event sequence, AgentEnd
// carries the user + assistant messages.
func TestSingleTextTurn(t *testing.T) {
	provider := mockprovider.New("mock", mockprovider.Turn{
		Text: "hello there", StopReason: message.StopReasonStop,
		Usage: message.Usage{Input: 10, Output: 5},
	})
	loop := New(provider, "model-x", testPolicy())
	ac := &Context{SystemPrompt: "be helpful"}

	events := drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("hi")}, nil, nil))

	got := kinds(events)
	want := []message.EventKind{
		message.EventAgentStart,
		message.EventMessageStart, message.EventMessageEnd, // user echo
		message.EventTurnStart,
		message.EventMessageStart, message.EventMessageUpdate, message.EventMessageEnd,
		message.EventTurnEnd,
		message.EventAgentEnd,
	}
	if len(got) != len(want) {
		t.Fatalf("event sequence length: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}

	last := events[len(events)-1]
	if len(last.NewMessages) != 2 {
		t.Fatalf("expected 2 new messages (user+assistant), got %d", len(last.NewMessages))
	}
	if last.NewMessages[1].Llm.Text() != "hello there" {
		t.Fatalf("unexpected assistant text: %q", last.NewMessages[1].Llm.Text())
	}
}

// 2. Tool-call round trip: assistant requests a tool, scheduler runs it,
// result is appended, loop continues to a second assistant turn.
func TestToolCallRoundTrip(t *testing.T) {
	provider := mockprovider.New("mock",
		mockprovider.Turn{
			ToolCalls: []mockprovider.ScriptedToolCall{{ID: "call-1", Name: "echo", Args: `{"x":1}`}},
		},
		mockprovider.Turn{Text: "done", StopReason: message.StopReasonStop},
	)
	registry := tool.NewRegistry()
	registry.Register(echoTool{name: "echo"})

	loop := New(provider, "model-x", testPolicy())
	ac := &Context{Tools: registry}

	events := drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("go")}, nil, nil))

	if countKind(events, message.EventToolExecutionStart) != 1 {
		t.Fatalf("expected one ToolExecutionStart, got %d", countKind(events, message.EventToolExecutionStart))
	}
	if countKind(events, message.EventToolExecutionEnd) != 1 {
		t.Fatalf("expected one ToolExecutionEnd, got %d", countKind(events, message.EventToolExecutionEnd))
	}
	if countKind(events, message.EventTurnEnd) != 2 {
		t.Fatalf("expected two TurnEnd (tool round + final), got %d", countKind(events, message.EventTurnEnd))
	}

	last := events[len(events)-1]
	foundToolResult := false
	for _, am := range last.NewMessages {
		if !am.IsExtension && am.Llm.Role == message.RoleToolResult {
			foundToolResult = true
			if am.Llm.Text() != `echo:{"x":1}` {
				t.Fatalf("unexpected tool result text: %q", am.Llm.Text())
			}
		}
	}
	if !foundToolResult {
		t.Fatal("no tool result message in AgentEnd.NewMessages")
	}
}

// 3. Parallel tools run concurrently, not sequentially: wall time should be
// close to one call's delay, not the sum of all three.
func TestParallelToolsRunConcurrently(t *testing.T) {
	provider := mockprovider.New("mock",
		mockprovider.Turn{ToolCalls: []mockprovider.ScriptedToolCall{
			{ID: "1", Name: "slow", Args: `{}`},
			{ID: "2", Name: "slow", Args: `{}`},
			{ID: "3", Name: "slow", Args: `{}`},
		}},
		mockprovider.Turn{Text: "done", StopReason: message.StopReasonStop},
	)
	registry := tool.NewRegistry()
	registry.Register(echoTool{name: "slow", delay: 100 * time.Millisecond})

	p := testPolicy()
	p.Scheduler = schedule.New(schedule.ParallelStrategy{})
	loop := New(provider, "model-x", p)
	ac := &Context{Tools: registry}

	start := time.Now()
	drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("go")}, nil, nil))
	elapsed := time.Since(start)

	if elapsed > 280*time.Millisecond {
		t.Fatalf("expected concurrent execution well under 300ms, took %s", elapsed)
	}
}

// 4. A steering message queued mid tool-round causes the remaining queued
// calls in that round to be skipped with the fixed cancellation text.
func TestSteeringSkipsRemainingTools(t *testing.T) {
	provider := mockprovider.New("mock",
		mockprovider.Turn{ToolCalls: []mockprovider.ScriptedToolCall{
			{ID: "1", Name: "slow", Args: `{}`},
			{ID: "2", Name: "slow", Args: `{}`},
		}},
		mockprovider.Turn{Text: "ack", StopReason: message.StopReasonStop},
	)
	steering := NewQueue(OneAtATime)
	registry := tool.NewRegistry()
	registry.Register(steeringTool{echoTool: echoTool{name: "slow", delay: 30 * time.Millisecond}, steering: steering})

	p := testPolicy()
	p.Scheduler = schedule.New(schedule.SequentialStrategy{})
	loop := New(provider, "model-x", p)
	ac := &Context{Tools: registry}

	events := drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("go")}, steering, nil))

	skipped := false
	for _, ev := range events {
		if ev.Kind == message.EventToolExecutionEnd && ev.ToolIsError {
			if ev.ToolResult.Text() == "Skipped due to queued user message" {
				skipped = true
			}
		}
	}
	if !skipped {
		t.Fatal("expected at least one tool call to be skipped due to steering")
	}
}

// 5. A rate-limited first attempt is retried and the second attempt
// succeeds; the failed attempt still emits its own message events.
func TestRetryOnRateLimit(t *testing.T) {
	provider := mockprovider.New("mock",
		mockprovider.Turn{Err: llmprovider.RateLimited(1, "slow down")},
		mockprovider.Turn{Text: "recovered", StopReason: message.StopReasonStop},
	)
	p := testPolicy()
	p.Retry.BaseDelay = time.Millisecond
	p.Retry.MaxDelay = 5 * time.Millisecond
	loop := New(provider, "model-x", p)
	ac := &Context{}

	events := drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("hi")}, nil, nil))

	last := events[len(events)-1]
	if last.Kind != message.EventAgentEnd {
		t.Fatalf("expected AgentEnd last, got %s", last.Kind)
	}
	foundText := false
	for _, am := range last.NewMessages {
		if !am.IsExtension && am.Llm.Role == message.RoleAssistant && am.Llm.Text() == "recovered" {
			foundText = true
		}
	}
	if !foundText {
		t.Fatal("expected the retried assistant reply to appear in history")
	}
	if countKind(events, message.EventMessageStart) != 3 {
		// one user echo + two provider attempts (failed + succeeded)
		t.Fatalf("expected 3 MessageStart events, got %d", countKind(events, message.EventMessageStart))
	}
}

// 6. Tripping max-turns appends a limit-reached extension message and ends
// the invocation without a final assistant call.
func TestMaxTurnsLimitStopsTheLoop(t *testing.T) {
	provider := mockprovider.New("mock", mockprovider.Turn{
		ToolCalls: []mockprovider.ScriptedToolCall{{ID: "1", Name: "echo", Args: `{}`}},
	})
	registry := tool.NewRegistry()
	registry.Register(echoTool{name: "echo"})

	p := testPolicy()
	p.Limits = Limits{MaxTurns: 2}
	loop := New(provider, "model-x", p)
	ac := &Context{Tools: registry}

	events := drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("go")}, nil, nil))

	last := events[len(events)-1]
	foundExt := false
	for _, am := range last.NewMessages {
		if am.IsExtension && am.ExtKind == "limit_reached" {
			foundExt = true
		}
	}
	if !foundExt {
		t.Fatal("expected a limit_reached extension message")
	}
}

// BeforeTurn returning false ends the invocation immediately with no
// synthesized assistant message for that turn.
func TestBeforeTurnFalseEndsWithoutSynthesizing(t *testing.T) {
	provider := mockprovider.New("mock", mockprovider.Turn{Text: "should not run"})
	loop := New(provider, "model-x", testPolicy())
	loop.Callbacks.BeforeTurn = func(messages []message.AgentMessage, turnIndex int) bool {
		return false
	}
	ac := &Context{}

	events := drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("hi")}, nil, nil))

	last := events[len(events)-1]
	if last.Kind != message.EventAgentEnd {
		t.Fatalf("expected AgentEnd, got %s", last.Kind)
	}
	for _, am := range last.NewMessages {
		if !am.IsExtension && am.Llm.Role == message.RoleAssistant {
			t.Fatal("no assistant message should have been synthesized")
		}
	}
}

// A follow-up message queued before the loop would otherwise terminate
// restarts the outer loop for another round.
func TestFollowUpRestartsOuterLoop(t *testing.T) {
	provider := mockprovider.New("mock",
		mockprovider.Turn{Text: "first", StopReason: message.StopReasonStop},
		mockprovider.Turn{Text: "second", StopReason: message.StopReasonStop},
	)
	loop := New(provider, "model-x", testPolicy())
	ac := &Context{}

	followUp := NewQueue(OneAtATime)
	followUp.Push([]message.Content{message.Text("and another thing")})

	events := drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("hi")}, nil, followUp))

	if countKind(events, message.EventTurnEnd) != 2 {
		t.Fatalf("expected two turns (original + follow-up), got %d", countKind(events, message.EventTurnEnd))
	}
	last := events[len(events)-1]
	texts := map[string]bool{}
	for _, am := range last.NewMessages {
		if !am.IsExtension {
			texts[am.Llm.Text()] = true
		}
	}
	if !texts["second"] {
		t.Fatal("expected the second assistant reply after the follow-up")
	}
}

// Repeating the same tool call three times in a row appends a
// system-reminder warning to the most recent tool result.
func TestRepetitionGuardWarnsOnThirdIdenticalCall(t *testing.T) {
	sameCall := mockprovider.Turn{ToolCalls: []mockprovider.ScriptedToolCall{{ID: "x", Name: "echo", Args: `{"a":1}`}}}
	provider := mockprovider.New("mock", sameCall, sameCall, sameCall, mockprovider.Turn{Text: "done", StopReason: message.StopReasonStop})
	registry := tool.NewRegistry()
	registry.Register(echoTool{name: "echo"})

	loop := New(provider, "model-x", testPolicy())
	ac := &Context{Tools: registry}

	drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("go")}, nil, nil))

	found := false
	for _, am := range ac.Messages {
		if am.IsExtension || am.Llm.Role != message.RoleToolResult {
			continue
		}
		if containsReminder(am.Llm.Text()) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a system-reminder warning after three identical tool calls")
	}
}

func containsReminder(text string) bool {
	return len(text) > 0 && indexOf(text, reminderTag) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// Cancelling mid-stream produces an Aborted assistant message carrying the
// partial text streamed so far, and the loop ends without error.
func TestAbortMidStreamProducesPartialAssistantMessage(t *testing.T) {
	provider := mockprovider.New("mock", mockprovider.Turn{Text: "partial output", Delay: 50 * time.Millisecond})
	loop := New(provider, "model-x", testPolicy())
	ac := &Context{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	events := drain(t, loop.Prompt(ctx, ac, []message.Content{message.Text("hi")}, nil, nil))

	last := events[len(events)-1]
	if last.Kind != message.EventAgentEnd {
		t.Fatalf("expected AgentEnd, got %s", last.Kind)
	}
	foundAborted := false
	for _, am := range last.NewMessages {
		if !am.IsExtension && am.Llm.StopReason == message.StopReasonAborted {
			foundAborted = true
		}
	}
	if !foundAborted {
		t.Fatal("expected an Aborted assistant message")
	}
}

// Recitation, when enabled, appends a goal reminder to the tail of context
// every RecitationInterval rounds, without inserting a new message.
func TestRecitationAppendsToLastToolResult(t *testing.T) {
	calls := mockprovider.Turn{ToolCalls: []mockprovider.ScriptedToolCall{{ID: "1", Name: "echo", Args: `{}`}}}
	provider := mockprovider.New("mock", calls, calls, mockprovider.Turn{Text: "done", StopReason: message.StopReasonStop})
	registry := tool.NewRegistry()
	registry.Register(echoTool{name: "echo"})

	p := testPolicy()
	p.RecitationInterval = 1
	loop := New(provider, "model-x", p)
	ac := &Context{Tools: registry}

	drain(t, loop.Prompt(context.Background(), ac, []message.Content{message.Text("remember this goal")}, nil, nil))

	found := false
	for _, am := range ac.Messages {
		if !am.IsExtension && am.Llm.Role == message.RoleToolResult && containsReminder(am.Llm.Text()) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a recited reminder appended to a tool result")
	}
}
