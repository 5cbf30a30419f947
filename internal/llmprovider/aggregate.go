package llmprovider

import (
	"encoding/json"

	"github.com/xonecas/agentcore/internal/message"
)

// blockAccum accumulates one in-progress content block.
type blockAccum struct {
	kind         BlockKind
	text         string
	argFragments string
	toolCallID   string
	toolCallName string
	signature    string
}

func (b *blockAccum) toContent() message.Content {
	switch b.kind {
	case BlockThinking:
		return message.Thinking(b.text, b.signature)
	case BlockToolCall:
		args := json.RawMessage(b.argFragments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		return message.ToolCall(b.toolCallID, b.toolCallName, args)
	default:
		return message.Text(b.text)
	}
}

// Aggregate drains a StreamEvent channel to completion, invoking onDelta
// for every BlockDelta in emission order, and returns the assembled
// assistant message. onDelta may be nil.
//
// modelID and providerID are stamped onto the result since the stream
// itself carries no vendor identity.
func Aggregate(events <-chan StreamEvent, modelID, providerID string, onDelta func(message.Delta)) (message.Message, *Error) {
	blocks := map[int]*blockAccum{}
	var order []int
	var usage message.Usage
	stopReason := message.StopReasonNone

	for ev := range events {
		switch ev.Kind {
		case StreamInputUsage:
			usage.Input = ev.InputTokens
			usage.CacheRead = ev.CacheReadTokens
			usage.CacheWrite = ev.CacheWriteTokens

		case StreamBlockStart:
			b := &blockAccum{kind: ev.BlockKind, toolCallID: ev.ToolCallID, toolCallName: ev.ToolCallName}
			blocks[ev.BlockIndex] = b
			order = append(order, ev.BlockIndex)
			if ev.BlockKind == BlockToolCall && onDelta != nil {
				onDelta(message.Delta{
					Kind:         message.DeltaToolCallArgs,
					ToolCallID:   ev.ToolCallID,
					ToolCallName: ev.ToolCallName,
				})
			}

		case StreamBlockDelta:
			b, ok := blocks[ev.BlockIndex]
			if !ok {
				continue
			}
			switch b.kind {
			case BlockText:
				b.text += ev.Text
				if onDelta != nil {
					onDelta(message.Delta{Kind: message.DeltaText, Text: ev.Text})
				}
			case BlockThinking:
				b.text += ev.Text
				if onDelta != nil {
					onDelta(message.Delta{Kind: message.DeltaThinking, Text: ev.Text})
				}
			case BlockToolCall:
				b.argFragments += ev.ArgFragment
				if onDelta != nil {
					onDelta(message.Delta{
						Kind:        message.DeltaToolCallArgs,
						ToolCallID:  b.toolCallID,
						ArgFragment: ev.ArgFragment,
					})
				}
			}

		case StreamBlockStop:
			if b, ok := blocks[ev.BlockIndex]; ok {
				b.signature = ev.ThinkingSignature
			}

		case StreamUsage:
			usage.Add(ev.Usage)

		case StreamDone:
			if ev.Usage != (message.Usage{}) {
				usage = ev.Usage
			}
			stopReason = ev.StopReason
			out := make([]message.Content, 0, len(order))
			for _, idx := range order {
				out = append(out, blocks[idx].toContent())
			}
			return message.NewAssistant(out, stopReason, modelID, providerID, usage), nil

		case StreamError:
			return message.Message{}, ev.Err
		}
	}
	return message.Message{}, NetworkError(nil)
}
