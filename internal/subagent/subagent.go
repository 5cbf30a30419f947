// Package subagent adapts a nested agent loop into a tool: executing it
// spawns a fresh invocation with its own system prompt, model, and tool
// set, forwards the parent's cancellation handle, and translates the
// child's events into ToolExecutionUpdate/ProgressMessage events on the
// parent's event bus.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xonecas/agentcore/internal/agent"
	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

const (
	// MaxDepth bounds nesting: depth 0 is the root agent, depth 1 a
	// sub-agent it spawned. A sub-agent tool is never registered on a
	// Context built at depth >= MaxDepth (anti-recursion).
	MaxDepth = 1

	// DefaultMaxTurns is used when a call omits max_turns.
	DefaultMaxTurns = 5
	// MaxAllowedTurns caps a caller-specified max_turns.
	MaxAllowedTurns = 20
)

// Spec describes one sub-agent tool: its name, the system prompt and model
// it runs under, and the tool set it may use (never including sub-agent
// tools themselves).
type Spec struct {
	Name         string
	Description  string
	SystemPrompt string
	Provider     llmprovider.Provider
	ModelID      string
	Policy       agent.Policy
	Tools        *tool.Registry
}

// Tool adapts a Spec into a tool.Tool whose Execute spawns a fresh agent
// Loop invocation and waits for it to finish.
type Tool struct {
	spec Spec
}

// New builds a sub-agent Tool. spec.Tools must not itself register a
// sub-agent tool; FilterTools removes one if present.
func New(spec Spec) *Tool {
	spec.Tools = FilterTools(spec.Tools, spec.Name)
	return &Tool{spec: spec}
}

func (t *Tool) Name() string        { return t.spec.Name }
func (t *Tool) Label() string       { return t.spec.Name }
func (t *Tool) Description() string { return t.spec.Description }

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt":     {"type": "string", "minLength": 1, "description": "the task to delegate"},
			"max_turns":  {"type": "integer", "description": "tool-calling round cap for the sub-agent"}
		},
		"required": ["prompt"]
	}`)
}

type arguments struct {
	Prompt   string `json:"prompt"`
	MaxTurns int    `json:"max_turns"`
}

// Execute spawns a fresh agent loop for args.Prompt, forwards ectx's
// cancellation, and returns the sub-agent's final assistant text as the
// result. Interim events from the child are surfaced as parent
// ToolExecutionUpdate (via OnUpdate) and ProgressMessage (via OnProgress)
// events rather than being sent to the model.
func (t *Tool) Execute(ctx context.Context, ectx tool.ExecContext, rawArgs json.RawMessage) (tool.Result, *tool.Error) {
	if verr := tool.ValidateArgs(t.Schema(), rawArgs); verr != nil {
		return tool.Result{}, verr
	}

	var args arguments
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return tool.Result{}, tool.InvalidArgs("invalid arguments: %v", err)
	}

	maxTurns := DefaultMaxTurns
	if args.MaxTurns > 0 {
		if args.MaxTurns > MaxAllowedTurns {
			return tool.Result{}, tool.InvalidArgs("max_turns too large (max %d)", MaxAllowedTurns)
		}
		maxTurns = args.MaxTurns
	}

	policy := t.spec.Policy
	policy.Limits.MaxTurns = maxTurns

	loop := agent.New(t.spec.Provider, t.spec.ModelID, policy)
	childCtx := &agent.Context{SystemPrompt: t.spec.SystemPrompt, Tools: t.spec.Tools}

	events := loop.Prompt(ctx, childCtx, []message.Content{message.Text(args.Prompt)}, nil, nil)

	var final message.AgentMessage
	var haveFinal bool
	for ev := range events {
		switch ev.Kind {
		case message.EventTurnEnd:
			if ectx.OnUpdate != nil {
				ectx.OnUpdate(ev.AssistantMessage)
			}
			if text := ev.AssistantMessage.Text(); text != "" && ectx.OnProgress != nil {
				ectx.OnProgress(fmt.Sprintf("%s: %s", t.spec.Name, text))
			}
		case message.EventAgentEnd:
			for i := len(ev.NewMessages) - 1; i >= 0; i-- {
				am := ev.NewMessages[i]
				if !am.IsExtension && am.Llm.Role == message.RoleAssistant && am.Llm.Text() != "" {
					final = am
					haveFinal = true
					break
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return tool.Result{}, tool.Cancelled()
	}
	if !haveFinal {
		return tool.Result{}, tool.Failed("sub-agent %q produced no final response", t.spec.Name)
	}
	if final.Llm.StopReason == message.StopReasonError {
		return tool.Result{}, tool.Failed("sub-agent %q failed: %s", t.spec.Name, final.Llm.ErrorText)
	}

	return tool.TextResult(final.Llm.Text()), nil
}

// FilterTools returns a copy of registry with name and every sub-agent Tool
// removed, so a sub-agent can never see (and thus never recursively spawn)
// its own kind of tool.
func FilterTools(registry *tool.Registry, name string) *tool.Registry {
	if registry == nil {
		return nil
	}
	filtered := tool.NewRegistry()
	for _, t := range registry.List() {
		if _, nested := t.(*Tool); !nested && t.Name() != name {
			filtered.Register(t)
		}
	}
	return filtered
}
