package agent

import "github.com/xonecas/agentcore/internal/message"

// BeforeTurn runs before each provider call. Returning false aborts the
// invocation immediately — the turn never reaches the provider, so no
// assistant message is synthesized.
type BeforeTurn func(messages []message.AgentMessage, turnIndex int) bool

// AfterTurn runs after a turn completes with a usable assistant message
// (not on Error/Aborted turns).
type AfterTurn func(messages []message.AgentMessage, usage message.Usage)

// OnError runs when a turn terminates with stop-reason Error, carrying the
// vendor-reported text.
type OnError func(text string)

// Callbacks groups the loop's lifecycle hooks. Any field may be left nil.
type Callbacks struct {
	BeforeTurn BeforeTurn
	AfterTurn  AfterTurn
	OnError    OnError
}
