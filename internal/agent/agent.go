package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

// ErrInFlight is returned by Prompt/Continue when an invocation is already
// running; callers must use Steer or FollowUp instead.
var ErrInFlight = errors.New("agent: an invocation is already in flight")

// Agent is the stateful wrapper around Loop: it owns the conversation
// context, the two injection queues, the in-flight guard, and the
// cancellation handle of whatever invocation is currently running.
type Agent struct {
	loop *Loop

	mu       sync.Mutex
	ctx      *Context
	steering *Queue
	followUp *Queue
	inFlight bool
	cancel   context.CancelFunc
}

// NewAgent builds an Agent around loop with an empty context using the
// given system prompt and tool registry.
func NewAgent(loop *Loop, systemPrompt string, tools *tool.Registry) *Agent {
	return &Agent{
		loop:     loop,
		ctx:      &Context{SystemPrompt: systemPrompt, Tools: tools},
		steering: NewQueue(loop.Policy.SteeringMode),
		followUp: NewQueue(loop.Policy.FollowUpMode),
	}
}

// Prompt appends blocks as a new user message and runs the loop.
func (a *Agent) Prompt(ctx context.Context, blocks []message.Content) (<-chan message.Event, error) {
	runCtx, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	return a.wrap(a.loop.Prompt(runCtx, a.ctx, blocks, a.steering, a.followUp)), nil
}

// Continue resumes the loop without appending a new user message —
// typically after a caller has compacted context in reaction to a
// ContextOverflow error and wants to retry without duplicating the prompt.
func (a *Agent) Continue(ctx context.Context) (<-chan message.Event, error) {
	runCtx, err := a.begin(ctx)
	if err != nil {
		return nil, err
	}
	return a.wrap(a.loop.Continue(runCtx, a.ctx, a.steering, a.followUp)), nil
}

func (a *Agent) begin(ctx context.Context) (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inFlight {
		return nil, ErrInFlight
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.inFlight = true
	return runCtx, nil
}

// wrap forwards events unchanged, clearing the in-flight flag once the
// invocation's event stream is exhausted.
func (a *Agent) wrap(in <-chan message.Event) <-chan message.Event {
	out := make(chan message.Event)
	go func() {
		defer close(out)
		for ev := range in {
			out <- ev
		}
		a.mu.Lock()
		a.inFlight = false
		a.cancel = nil
		a.mu.Unlock()
	}()
	return out
}

// Steer enqueues a user message for mid-invocation (between tool
// executions) injection.
func (a *Agent) Steer(blocks []message.Content) { a.steering.Push(blocks) }

// FollowUp enqueues a user message for injection after the loop would
// otherwise have terminated.
func (a *Agent) FollowUp(blocks []message.Content) { a.followUp.Push(blocks) }

// Abort trips the running invocation's cancellation handle, if one is in
// flight. The loop drains pending work and emits a final AgentEnd.
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset clears messages, both queues, and the in-flight flag. Must not be
// called while an invocation is running.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.Messages = nil
	a.steering.Clear()
	a.followUp.Clear()
	a.inFlight = false
	a.cancel = nil
}

// Save returns the canonical JSON representation of the message history.
func (a *Agent) Save() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return message.SaveHistory(a.ctx.Messages)
}

// Restore replaces the message history from a Save payload. Must not be
// called while an invocation is in flight.
func (a *Agent) Restore(data []byte) error {
	history, err := message.RestoreHistory(data)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.Messages = history
	return nil
}

// InFlight reports whether an invocation is currently running.
func (a *Agent) InFlight() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

// Messages returns a snapshot of the current context's message history.
// Must not be called concurrently with a running invocation.
func (a *Agent) Messages() []message.AgentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]message.AgentMessage, len(a.ctx.Messages))
	copy(out, a.ctx.Messages)
	return out
}
