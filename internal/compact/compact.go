// Package compact shrinks a conversation history to fit a token budget,
// escalating through tiers rather than dropping everything at once:
// truncate large tool outputs, summarize old turns, then drop the middle
// outright. Every tier cuts on turn boundaries so a tool call and its
// result are never separated. Extension messages are UI-only annotations,
// not model-context weight, and survive every tier unconditionally.
package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/xonecas/agentcore/internal/message"
)

// Tier identifies which stage produced the final, in-budget history.
type Tier int

const (
	// TierNone means history already fit the budget; nothing was touched.
	TierNone Tier = iota - 1
	TierTruncateToolOutputs
	TierSummarizeOldTurns
	TierDropMiddle
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierTruncateToolOutputs:
		return "truncate_tool_outputs"
	case TierSummarizeOldTurns:
		return "summarize_old_turns"
	case TierDropMiddle:
		return "drop_middle"
	default:
		return "unknown"
	}
}

// Summarizer condenses a run of messages into a short recap. It is an
// optional refinement of tier 2's default mechanical synopsis, typically
// backed by a model call; nil falls back to "[Assistant used K tool(s)]".
type Summarizer interface {
	Summarize(ctx context.Context, messages []message.AgentMessage) (string, error)
}

// EstimateFunc reports the current token estimate for a history, normally
// tracker.Tracker.Estimate applied to message.ToProviderMessages(history).
type EstimateFunc func(history []message.AgentMessage) int

// Compactor reduces history to fit a token budget.
type Compactor struct {
	Estimate EstimateFunc
	// Summarizer optionally replaces tier 2's mechanical one-line synopsis
	// with a model-generated recap. Nil uses the mechanical default.
	Summarizer Summarizer
	// ToolOutputMaxLines is N in tier 1's head+tail rule: the first N/2 and
	// last N/2 lines of an oversized tool result are kept.
	ToolOutputMaxLines int
	// KeepRecentTurns is the number of trailing turns tiers 2 and 3 keep
	// verbatim.
	KeepRecentTurns int
	// KeepFirstTurns is the number of leading turns tier 3 keeps verbatim
	// alongside the trailing KeepRecentTurns.
	KeepFirstTurns int
}

// New builds a Compactor with conservative defaults: a 50-line head+tail
// window per tool result, the last 4 turns always kept verbatim, and the
// first 2 turns kept verbatim once tier 3 starts dropping the middle.
func New(estimate EstimateFunc, summarizer Summarizer) *Compactor {
	return &Compactor{
		Estimate:           estimate,
		Summarizer:         summarizer,
		ToolOutputMaxLines: 50,
		KeepRecentTurns:    4,
		KeepFirstTurns:     2,
	}
}

// Compact escalates through tiers until history's estimate is at or under
// budget, returning the rewritten history and which tier made the cut.
// Already-in-budget history is returned unchanged with TierNone.
func (c *Compactor) Compact(ctx context.Context, history []message.AgentMessage, budget int) ([]message.AgentMessage, Tier, error) {
	if c.Estimate(history) <= budget {
		return history, TierNone, nil
	}

	truncated := truncateToolOutputs(history, c.ToolOutputMaxLines)
	if c.Estimate(truncated) <= budget {
		return truncated, TierTruncateToolOutputs, nil
	}

	summarized, err := c.summarizeOldTurns(ctx, truncated)
	if err != nil {
		return nil, TierNone, fmt.Errorf("compact: summarize old turns: %w", err)
	}
	if c.Estimate(summarized) <= budget {
		return summarized, TierSummarizeOldTurns, nil
	}

	dropped := dropMiddle(summarized, c.KeepFirstTurns, c.KeepRecentTurns)
	return dropped, TierDropMiddle, nil
}

// isUserTurnStart reports whether am begins a new turn: a non-extension
// User message. Extensions never start or end a turn boundary.
func isUserTurnStart(am message.AgentMessage) bool {
	return !am.IsExtension && am.Llm.Role == message.RoleUser
}

// turnStarts returns the indices of every turn-opening User message.
// Everything between one start and the next (including any assistant tool
// calls, their tool results, and any interleaved extension messages)
// belongs to that turn, so cutting only at these indices never orphans a
// tool call.
func turnStarts(history []message.AgentMessage) []int {
	var starts []int
	for i, am := range history {
		if isUserTurnStart(am) {
			starts = append(starts, i)
		}
	}
	return starts
}

// extensionsIn returns the extension messages within history[lo:hi], in
// their original relative order, so a tier that collapses that range can
// still carry them forward.
func extensionsIn(history []message.AgentMessage, lo, hi int) []message.AgentMessage {
	var out []message.AgentMessage
	for _, am := range history[lo:hi] {
		if am.IsExtension {
			out = append(out, am)
		}
	}
	return out
}

// truncateToolOutputs replaces any tool-result content exceeding maxLines
// total lines with the first maxLines/2 and last maxLines/2 lines, joined
// by an ellipsis marker.
func truncateToolOutputs(history []message.AgentMessage, maxLines int) []message.AgentMessage {
	out := make([]message.AgentMessage, len(history))
	copy(out, history)
	for i, am := range out {
		if am.IsExtension || am.Llm.Role != message.RoleToolResult {
			continue
		}
		out[i] = message.FromLlm(truncateTextBlocksByLines(am.Llm, maxLines))
	}
	return out
}

func truncateTextBlocksByLines(m message.Message, maxLines int) message.Message {
	blocks := make([]message.Content, len(m.Blocks))
	copy(blocks, m.Blocks)
	for i, b := range blocks {
		if b.Kind != message.KindText {
			continue
		}
		blocks[i] = message.Text(headTail(b.Text, maxLines))
	}
	m.Blocks = blocks
	return m
}

// headTail keeps the first half and last half of maxLines lines, joined by
// an ellipsis marker noting how many lines were dropped. Text at or under
// maxLines lines is returned unchanged.
func headTail(text string, maxLines int) string {
	if maxLines <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}

	half := maxLines / 2
	head := lines[:half]
	tail := lines[len(lines)-half:]
	omitted := len(lines) - len(head) - len(tail)

	var b strings.Builder
	b.WriteString(strings.Join(head, "\n"))
	b.WriteString(fmt.Sprintf("\n... (%d lines omitted) ...\n", omitted))
	b.WriteString(strings.Join(tail, "\n"))
	return b.String()
}

// summarizeOldTurns replaces every turn before the last KeepRecentTurns
// with a one-line-per-turn synopsis: the turn's originating user message is
// kept, its assistant/tool-result exchange collapses into a single
// synthetic assistant message (mechanically "[Assistant used K tool(s)]",
// or the Summarizer's recap when one is configured), and any interleaved
// extension messages are carried forward. This is the default, dependency-
// free path — no Summarizer is required for tier 2 to apply.
func (c *Compactor) summarizeOldTurns(ctx context.Context, history []message.AgentMessage) ([]message.AgentMessage, error) {
	starts := turnStarts(history)
	if len(starts) <= c.KeepRecentTurns {
		return history, nil
	}

	cutIdx := len(starts) - c.KeepRecentTurns
	recentStart := starts[cutIdx]

	out := make([]message.AgentMessage, 0, len(history))
	out = append(out, extensionsIn(history, 0, starts[0])...)
	for i := 0; i < cutIdx; i++ {
		turnEnd := len(history)
		if i+1 < len(starts) {
			turnEnd = starts[i+1]
		}
		turn, err := c.summarizeTurn(ctx, history[starts[i]:turnEnd])
		if err != nil {
			return nil, err
		}
		out = append(out, turn...)
	}
	out = append(out, history[recentStart:]...)
	return out, nil
}

// summarizeTurn collapses one turn's assistant/tool-result exchange into a
// single synopsis message, keeping the turn's user message and any
// interleaved extensions verbatim.
func (c *Compactor) summarizeTurn(ctx context.Context, turn []message.AgentMessage) ([]message.AgentMessage, error) {
	var userMsg *message.AgentMessage
	var extensions []message.AgentMessage
	toolCalls := 0
	hasExchange := false

	for i := range turn {
		am := turn[i]
		if am.IsExtension {
			extensions = append(extensions, am)
			continue
		}
		if am.Llm.Role == message.RoleUser && userMsg == nil {
			userMsg = &turn[i]
			continue
		}
		hasExchange = true
		toolCalls += len(am.Llm.ToolCalls())
	}

	out := make([]message.AgentMessage, 0, 2+len(extensions))
	if userMsg != nil {
		out = append(out, *userMsg)
	}

	if hasExchange {
		synopsis := fmt.Sprintf("[Assistant used %d tool(s)]", toolCalls)
		if c.Summarizer != nil {
			s, err := c.Summarizer.Summarize(ctx, turn)
			if err != nil {
				return nil, err
			}
			synopsis = s
		}
		out = append(out, message.FromLlm(message.NewAssistant(
			[]message.Content{message.Text(synopsis)}, message.StopReasonStop, "", "", message.Usage{},
		)))
	}

	out = append(out, extensions...)
	return out, nil
}

// dropMiddle keeps the first keepFirstTurns and last keepRecentTurns turns
// verbatim, replacing everything between with a one-line notice of how
// many turns were dropped, followed by any extension messages from the
// dropped range.
func dropMiddle(history []message.AgentMessage, keepFirstTurns, keepRecentTurns int) []message.AgentMessage {
	starts := turnStarts(history)
	if len(starts) <= keepFirstTurns+keepRecentTurns {
		return history
	}

	headEnd := starts[keepFirstTurns]
	tailStart := starts[len(starts)-keepRecentTurns]
	if tailStart <= headEnd {
		return history
	}

	droppedTurns := len(starts) - keepFirstTurns - keepRecentTurns
	notice := message.FromLlm(message.NewUser(message.Text(fmt.Sprintf("[%d earlier turns omitted to fit the context window]", droppedTurns))))
	preserved := extensionsIn(history, headEnd, tailStart)

	out := make([]message.AgentMessage, 0, headEnd+1+len(preserved)+len(history)-tailStart)
	out = append(out, history[:headEnd]...)
	out = append(out, notice)
	out = append(out, preserved...)
	out = append(out, history[tailStart:]...)
	return out
}
