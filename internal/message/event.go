package message

// EventKind discriminates the Event variants emitted on the loop's event
// channel, in the strict order a consumer observes them.
type EventKind string

const (
	EventAgentStart          EventKind = "agent_start"
	EventTurnStart           EventKind = "turn_start"
	EventMessageStart        EventKind = "message_start"
	EventMessageUpdate       EventKind = "message_update"
	EventMessageEnd          EventKind = "message_end"
	EventToolExecutionStart  EventKind = "tool_execution_start"
	EventToolExecutionUpdate EventKind = "tool_execution_update"
	EventProgressMessage     EventKind = "progress_message"
	EventToolExecutionEnd    EventKind = "tool_execution_end"
	EventTurnEnd             EventKind = "turn_end"
	EventInputRejected       EventKind = "input_rejected"
	EventAgentEnd            EventKind = "agent_end"
)

// DeltaKind discriminates the Delta variants streamed during MessageUpdate.
type DeltaKind string

const (
	DeltaText         DeltaKind = "text"
	DeltaThinking     DeltaKind = "thinking"
	DeltaToolCallArgs DeltaKind = "tool_call_delta"
)

// Delta is one incremental streaming fragment.
type Delta struct {
	Kind DeltaKind

	// Text: set for DeltaText and DeltaThinking.
	Text string

	// DeltaToolCallArgs: the tool-call id the fragment belongs to and the
	// JSON fragment itself (fragments concatenated in order parse to a
	// complete structured value). ToolCallName is set only on the first
	// fragment for a given id.
	ToolCallID   string
	ToolCallName string
	ArgFragment  string
}

// Event is the tagged variant emitted on the loop's event channel.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	TurnIndex int

	// MessageStart/Update/End.
	MessageID       string
	MessageSkeleton Message
	Delta           Delta
	FinalMessage    Message

	// Tool execution.
	ToolCallID    string
	ToolName      string
	ToolArgs      []byte
	ToolResult    Message
	ToolIsError   bool
	ProgressText  string

	// TurnEnd.
	AssistantMessage Message
	ToolResults      []Message

	// InputRejected.
	RejectReason string

	// AgentEnd.
	NewMessages []AgentMessage
}
