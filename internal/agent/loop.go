package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xonecas/agentcore/internal/compact"
	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/retry"
	"github.com/xonecas/agentcore/internal/schedule"
	"github.com/xonecas/agentcore/internal/tool"
)

// Loop drives one invocation of the turn cycle against a single provider:
// stream a response, schedule any tool calls it emitted, feed results
// back, and decide whether to iterate again.
type Loop struct {
	Provider  llmprovider.Provider
	ModelID   string
	Policy    Policy
	Callbacks Callbacks
}

// New builds a Loop for provider/model under policy. Callbacks may be set
// on the returned value directly.
func New(provider llmprovider.Provider, modelID string, policy Policy) *Loop {
	return &Loop{Provider: provider, ModelID: modelID, Policy: policy}
}

// Prompt runs one invocation that begins by appending promptBlocks as a
// new user message. Events are delivered on the returned channel, which is
// closed once AgentEnd has been emitted.
func (l *Loop) Prompt(ctx context.Context, ac *Context, promptBlocks []message.Content, steering, followUp *Queue) <-chan message.Event {
	return l.run(ctx, ac, promptBlocks, steering, followUp)
}

// Continue resumes the outer loop without appending a new user message —
// for a caller that caught a context-overflow error, compacted, and wants
// another attempt without duplicating the original prompt.
func (l *Loop) Continue(ctx context.Context, ac *Context, steering, followUp *Queue) <-chan message.Event {
	return l.run(ctx, ac, nil, steering, followUp)
}

func (l *Loop) run(ctx context.Context, ac *Context, promptBlocks []message.Content, steering, followUp *Queue) <-chan message.Event {
	if steering == nil {
		steering = NewQueue(l.Policy.SteeringMode)
	}
	if followUp == nil {
		followUp = NewQueue(l.Policy.FollowUpMode)
	}
	bus := newEventBus()
	go func() {
		defer bus.close()
		l.invoke(ctx, ac, promptBlocks, steering, followUp, bus)
	}()
	return bus.out
}

func (l *Loop) invoke(ctx context.Context, ac *Context, promptBlocks []message.Content, steering, followUp *Queue, bus *eventBus) {
	start := time.Now()
	startLen := len(ac.Messages)

	bus.emit(message.Event{Kind: message.EventAgentStart})

	if promptBlocks != nil {
		l.appendUserMessage(ac, promptBlocks, bus)
	}

	turnIndex := 0
	cumulativeTokens := 0
	var recentCalls []recentCall

outer:
	for {
		for {
			if drained := steering.Drain(); len(drained) > 0 {
				for _, blocks := range drained {
					l.appendUserMessage(ac, blocks, bus)
				}
			}

			if reason, tripped := l.Policy.Limits.tripped(turnIndex, cumulativeTokens, time.Since(start)); tripped {
				ac.Messages = append(ac.Messages, message.NewExtension("system", "limit_reached", marshalReason(reason)))
				break outer
			}

			if l.Callbacks.BeforeTurn != nil && !l.Callbacks.BeforeTurn(ac.Messages, turnIndex) {
				break outer
			}

			l.injectRecitation(ac, turnIndex)

			if l.Policy.Compactor != nil {
				compacted, tier, err := l.Policy.Compactor.Compact(ctx, ac.Messages, l.Policy.ContextBudget)
				if err == nil {
					ac.Messages = compacted
					if tier != compact.TierNone && l.Policy.Tracker != nil {
						l.Policy.Tracker.Reset()
					}
				}
			}

			hasTools := ac.Tools != nil && len(ac.Tools.List()) > 0
			var hints llmprovider.CacheHints
			if l.Policy.Cache != nil {
				hints = l.Policy.Cache.Place(len(ac.Messages), hasTools)
			}

			bus.emit(message.Event{Kind: message.EventTurnStart, TurnIndex: turnIndex})

			assistantMsg, partialText, perr := l.callProvider(ctx, ac, hints, bus)
			if perr != nil {
				if perr.Kind == llmprovider.ErrCancelled {
					aborted := l.abortedMessage(partialText)
					ac.Messages = append(ac.Messages, message.FromLlm(aborted))
					break outer
				}
				errMsg := message.NewAssistant(nil, message.StopReasonError, l.ModelID, l.Provider.Name(), message.Usage{})
				errMsg.ErrorText = perr.Text
				ac.Messages = append(ac.Messages, message.FromLlm(errMsg))
				if l.Callbacks.OnError != nil {
					l.Callbacks.OnError(perr.Text)
				}
				break outer
			}

			ac.Messages = append(ac.Messages, message.FromLlm(assistantMsg))
			if l.Policy.Tracker != nil {
				l.Policy.Tracker.Report(len(ac.Messages), assistantMsg.Usage)
			}
			cumulativeTokens += assistantMsg.Usage.Input + assistantMsg.Usage.Output

			if assistantMsg.StopReason == message.StopReasonAborted {
				break outer
			}

			if l.Callbacks.AfterTurn != nil {
				l.Callbacks.AfterTurn(ac.Messages, assistantMsg.Usage)
			}

			calls := assistantMsg.ToolCalls()
			if len(calls) == 0 {
				bus.emit(message.Event{Kind: message.EventTurnEnd, TurnIndex: turnIndex, AssistantMessage: assistantMsg})
				turnIndex++
				break
			}

			toolResults := l.runTools(ctx, ac, calls, steering, bus, turnIndex)
			recentCalls = appendRecentCalls(recentCalls, calls)
			if repeatsLastThree(recentCalls) {
				appendReminder(ac, "WARNING: You are repeating the same tool call with the same arguments. This is wasteful. Stop and either try a different approach, summarize what you know, or ask the user for help.")
			}
			bus.emit(message.Event{Kind: message.EventTurnEnd, TurnIndex: turnIndex, AssistantMessage: assistantMsg, ToolResults: toolResults})
			turnIndex++
		}

		if drained := followUp.Drain(); len(drained) > 0 {
			for _, blocks := range drained {
				l.appendUserMessage(ac, blocks, bus)
			}
			continue outer
		}
		break outer
	}

	bus.emit(message.Event{
		Kind:        message.EventAgentEnd,
		NewMessages: append([]message.AgentMessage(nil), ac.Messages[startLen:]...),
	})
}

func (l *Loop) appendUserMessage(ac *Context, blocks []message.Content, bus *eventBus) {
	m := message.NewUser(blocks...)
	messageID := uuid.NewString()
	bus.emit(message.Event{Kind: message.EventMessageStart, MessageID: messageID, MessageSkeleton: m})
	ac.Messages = append(ac.Messages, message.FromLlm(m))
	bus.emit(message.Event{Kind: message.EventMessageEnd, MessageID: messageID, FinalMessage: m})
}

// callProvider invokes the provider under the retry policy, returning the
// final assistant message, or (on a terminal failure) the text streamed
// before the failure and the classified error.
func (l *Loop) callProvider(ctx context.Context, ac *Context, hints llmprovider.CacheHints, bus *eventBus) (message.Message, string, *llmprovider.Error) {
	req := llmprovider.Request{
		ModelID:      l.ModelID,
		SystemPrompt: ac.SystemPrompt,
		Messages:     message.ToProviderMessages(ac.Messages),
		Tools:        ac.ToolDefinitions(),
		Options:      l.Policy.GenOptions,
		Cache:        hints,
	}

	retryPolicy := l.Policy.Retry
	retryPolicy.EstimatedTokens = estimateRequestTokens(req)

	var lastPartial string
	msg, err := retry.Do(ctx, retryPolicy, func(attempt int) (message.Message, error) {
		m, partial, serr := l.streamOnce(ctx, req, bus)
		lastPartial = partial
		return m, serr
	})
	if err != nil {
		var pErr *llmprovider.Error
		if errors.As(err, &pErr) {
			return message.Message{}, lastPartial, pErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return message.Message{}, lastPartial, llmprovider.CancelledError()
		}
		return message.Message{}, lastPartial, llmprovider.NetworkError(err)
	}
	return msg, "", nil
}

// estimateRequestTokens gives the rate limiter a rough cost for the
// request about to be sent, using the same byte/4 heuristic the tracker
// uses for unbilled messages.
func estimateRequestTokens(req llmprovider.Request) int {
	total := len(req.SystemPrompt)
	for _, m := range req.Messages {
		total += m.ByteLen()
	}
	tokens := total / 4
	if tokens <= 0 {
		tokens = 1
	}
	return tokens
}

// streamOnce runs a single stream attempt. Once Provider.Stream has
// returned a channel, it emits MessageStart/Update/End for the attempt
// regardless of outcome, so every attempt's event pair closes even when a
// retryable error cuts it short. When Provider.Stream itself fails, no
// event is emitted for the attempt.
func (l *Loop) streamOnce(ctx context.Context, req llmprovider.Request, bus *eventBus) (message.Message, string, error) {
	events, err := l.Provider.Stream(ctx, req)
	if err != nil {
		return message.Message{}, "", err
	}

	messageID := uuid.NewString()
	bus.emit(message.Event{
		Kind:            message.EventMessageStart,
		MessageID:       messageID,
		MessageSkeleton: message.NewAssistant(nil, message.StopReasonNone, l.ModelID, l.Provider.Name(), message.Usage{}),
	})

	var partial strings.Builder
	msg, aggErr := llmprovider.Aggregate(events, l.ModelID, l.Provider.Name(), func(d message.Delta) {
		if d.Kind == message.DeltaText || d.Kind == message.DeltaThinking {
			partial.WriteString(d.Text)
		}
		bus.emit(message.Event{Kind: message.EventMessageUpdate, MessageID: messageID, Delta: d})
	})
	if aggErr != nil {
		bus.emit(message.Event{Kind: message.EventMessageEnd, MessageID: messageID})
		return message.Message{}, partial.String(), aggErr
	}
	bus.emit(message.Event{Kind: message.EventMessageEnd, MessageID: messageID, FinalMessage: msg})
	return msg, "", nil
}

func (l *Loop) abortedMessage(partialText string) message.Message {
	var blocks []message.Content
	if partialText != "" {
		blocks = []message.Content{message.Text(partialText)}
	}
	return message.NewAssistant(blocks, message.StopReasonAborted, l.ModelID, l.Provider.Name(), message.Usage{})
}

// runTools dispatches one round of tool calls per the policy's scheduler,
// appending a ToolResult AgentMessage for each and returning the plain
// Message values for the TurnEnd event.
func (l *Loop) runTools(ctx context.Context, ac *Context, toolCallBlocks []message.Content, steering *Queue, bus *eventBus, turnIndex int) []message.Message {
	calls := make([]schedule.Call, len(toolCallBlocks))
	for i, b := range toolCallBlocks {
		var t tool.Tool
		if ac.Tools != nil {
			t, _ = ac.Tools.Get(b.ToolCallName)
		}
		calls[i] = schedule.Call{Request: b, Tool: t}
	}

	sched := l.Policy.Scheduler
	if sched == nil {
		sched = schedule.New(nil)
	}
	sched.Steering = func() bool { return steering.Len() > 0 }
	sched.OnStart = func(index int, c schedule.Call) {
		bus.emit(message.Event{
			Kind: message.EventToolExecutionStart, TurnIndex: turnIndex,
			ToolCallID: c.Request.ToolCallID, ToolName: c.Request.ToolCallName, ToolArgs: c.Request.ToolCallArgs,
		})
	}
	sched.OnUpdate = func(snapshot message.Message) {
		bus.emit(message.Event{
			Kind: message.EventToolExecutionUpdate, TurnIndex: turnIndex,
			ToolCallID: snapshot.ToolCallID, ToolName: snapshot.ToolName, ToolResult: snapshot,
		})
	}
	sched.OnProgress = func(text string) {
		bus.emit(message.Event{Kind: message.EventProgressMessage, TurnIndex: turnIndex, ProgressText: text})
	}

	outcomes := sched.Run(ctx, calls)

	results := make([]message.Message, len(outcomes))
	for i, o := range outcomes {
		call := calls[o.Index]
		blocks := o.Result.Blocks
		isError := o.Err != nil
		if isError {
			text := o.Err.Text
			if o.Err.Kind == tool.ErrCancelled {
				text = "Skipped due to queued user message"
			}
			blocks = []message.Content{message.Text(text)}
		}

		m := message.NewToolResult(o.CallID, call.Request.ToolCallName, blocks, isError)
		results[i] = m
		ac.Messages = append(ac.Messages, message.FromLlm(m))
		bus.emit(message.Event{
			Kind: message.EventToolExecutionEnd, TurnIndex: turnIndex,
			ToolCallID: o.CallID, ToolName: call.Request.ToolCallName, ToolResult: m, ToolIsError: isError,
		})
	}
	return results
}

// recentCall identifies a tool invocation by name and raw argument bytes,
// used to detect a model stuck repeating itself.
type recentCall struct {
	name string
	args string
}

func appendRecentCalls(recent []recentCall, calls []message.Content) []recentCall {
	for _, c := range calls {
		recent = append(recent, recentCall{name: c.ToolCallName, args: string(c.ToolCallArgs)})
	}
	return recent
}

// repeatsLastThree reports whether the last three recorded calls are
// identical in name and arguments.
func repeatsLastThree(recent []recentCall) bool {
	if len(recent) < 3 {
		return false
	}
	last3 := recent[len(recent)-3:]
	return last3[0] == last3[1] && last3[1] == last3[2]
}

const reminderTag = "<system-reminder>"

// appendReminder appends text, wrapped in a system-reminder tag, to the
// most recent non-extension ToolResult message's content — rather than as
// a new message — so injecting it never shifts prior message positions and
// invalidates a vendor prompt cache anchored on them. Any reminder already
// on that message is replaced rather than accumulated.
func appendReminder(ac *Context, text string) {
	for i := len(ac.Messages) - 1; i >= 0; i-- {
		am := ac.Messages[i]
		if am.IsExtension || am.Llm.Role != message.RoleToolResult {
			continue
		}
		am.Llm.Blocks = append(stripReminder(am.Llm.Blocks), message.Text(reminderTag+"\n"+text+"\n</system-reminder>"))
		ac.Messages[i] = am
		return
	}
}

func stripReminder(blocks []message.Content) []message.Content {
	out := make([]message.Content, 0, len(blocks))
	for _, b := range blocks {
		if b.Kind == message.KindText && strings.HasPrefix(b.Text, reminderTag) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// injectRecitation, every Policy.RecitationInterval tool-calling rounds,
// appends a reminder of the original request (or the caller's scratchpad,
// if supplied) to the last tool result so a long tool-calling session stays
// anchored on the goal. Disabled when RecitationInterval is 0.
func (l *Loop) injectRecitation(ac *Context, round int) {
	interval := l.Policy.RecitationInterval
	if interval <= 0 || round == 0 || round%interval != 0 {
		return
	}

	var reminder string
	if l.Policy.Scratchpad != nil {
		reminder = l.Policy.Scratchpad()
	}
	if reminder == "" {
		for _, am := range ac.Messages {
			if !am.IsExtension && am.Llm.Role == message.RoleUser {
				reminder = "The user's original request: " + am.Llm.Text()
				break
			}
		}
	}
	if reminder == "" {
		return
	}
	appendReminder(ac, reminder)
}

func marshalReason(reason string) json.RawMessage {
	b, _ := json.Marshal(struct {
		Reason string `json:"reason"`
	}{Reason: reason})
	return b
}
