// Package agent implements the turn cycle that drives a tool-using model:
// streaming the provider, scheduling the tool calls it emits, feeding
// results back, and deciding whether to loop again. It also provides a
// stateful wrapper around the loop for long-lived, multi-turn callers.
package agent

import (
	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

// Context is the mutable bundle one invocation borrows: the system prompt,
// the ordered message history, and the active tool set. It is owned by the
// caller (directly, or via Agent) and must not be mutated while an
// invocation is in flight.
type Context struct {
	SystemPrompt string
	Messages     []message.AgentMessage
	Tools        *tool.Registry
}

// ToolDefinitions returns the provider-facing schema for every registered
// tool, in registration order.
func (c *Context) ToolDefinitions() []tool.Definition {
	if c.Tools == nil {
		return nil
	}
	list := c.Tools.List()
	out := make([]tool.Definition, len(list))
	for i, t := range list {
		out[i] = tool.ToDefinition(t)
	}
	return out
}
