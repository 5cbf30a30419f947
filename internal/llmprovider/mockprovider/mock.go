// Package mockprovider is a scriptable test double for llmprovider.Provider,
// used to drive the agent loop deterministically in tests without a real
// vendor call.
package mockprovider

import (
	"context"
	"sync"
	"time"

	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/message"
)

// Turn is one scripted response. Text/ToolCalls build a simple StreamEvent
// sequence; Err, when set, is delivered as a StreamError instead.
type Turn struct {
	Text       string
	ToolCalls  []ScriptedToolCall
	StopReason message.StopReason
	Usage      message.Usage
	Err        *llmprovider.Error
	Delay      time.Duration
}

// ScriptedToolCall describes one tool-call block a Turn emits.
type ScriptedToolCall struct {
	ID, Name, Args string
}

// Provider replays a queue of Turn values, one per Stream call, looping the
// last entry once the queue is exhausted.
type Provider struct {
	mu      sync.Mutex
	name    string
	turns   []Turn
	nextIdx int
}

// New builds a Provider that plays turns in order.
func New(name string, turns ...Turn) *Provider {
	return &Provider{name: name, turns: turns}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Close() error { return nil }

// Push appends another scripted turn, for tests that build up a scenario
// incrementally (e.g. after asserting on an intermediate tool call).
func (p *Provider) Push(t Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, t)
}

func (p *Provider) next() Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.turns) == 0 {
		return Turn{Text: "", StopReason: message.StopReasonStop}
	}
	idx := p.nextIdx
	if idx >= len(p.turns) {
		idx = len(p.turns) - 1
	} else {
		p.nextIdx++
	}
	return p.turns[idx]
}

func (p *Provider) Stream(ctx context.Context, req llmprovider.Request) (<-chan llmprovider.StreamEvent, error) {
	turn := p.next()
	events := make(chan llmprovider.StreamEvent, 16)

	go func() {
		defer close(events)

		if turn.Delay > 0 {
			select {
			case <-time.After(turn.Delay):
			case <-ctx.Done():
				events <- llmprovider.StreamEvent{Kind: llmprovider.StreamError, Err: llmprovider.CancelledError()}
				return
			}
		}

		if turn.Err != nil {
			events <- llmprovider.StreamEvent{Kind: llmprovider.StreamError, Err: turn.Err}
			return
		}

		blockIdx := 0
		if turn.Text != "" {
			events <- llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: blockIdx, BlockKind: llmprovider.BlockText}
			events <- llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: blockIdx, Text: turn.Text}
			events <- llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStop, BlockIndex: blockIdx}
			blockIdx++
		}
		for _, tc := range turn.ToolCalls {
			events <- llmprovider.StreamEvent{
				Kind: llmprovider.StreamBlockStart, BlockIndex: blockIdx, BlockKind: llmprovider.BlockToolCall,
				ToolCallID: tc.ID, ToolCallName: tc.Name,
			}
			events <- llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: blockIdx, ArgFragment: tc.Args}
			events <- llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStop, BlockIndex: blockIdx}
			blockIdx++
		}

		stopReason := turn.StopReason
		if stopReason == "" {
			stopReason = message.StopReasonStop
			if len(turn.ToolCalls) > 0 {
				stopReason = message.StopReasonToolUse
			}
		}
		events <- llmprovider.StreamEvent{Kind: llmprovider.StreamDone, StopReason: stopReason, Usage: turn.Usage}
	}()

	return events, nil
}

// Factory builds Provider instances sharing the same script, for tests that
// go through a llmprovider.Registry.
type Factory struct {
	name  string
	turns []Turn
}

// NewFactory builds a Factory replaying turns for every created Provider.
func NewFactory(name string, turns ...Turn) *Factory {
	return &Factory{name: name, turns: turns}
}

func (f *Factory) Name() string { return f.name }

func (f *Factory) Create(model string, opts llmprovider.GenOptions) llmprovider.Provider {
	return New(f.name, f.turns...)
}
