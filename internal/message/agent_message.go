package message

import "encoding/json"

// AgentMessage is either an Llm(Message) or an Extension carried in
// conversation history for UI/caller use. Extensions are omitted by the
// default conversion before handing history to any provider.
type AgentMessage struct {
	// Llm is populated when IsExtension is false.
	Llm Message

	// Extension fields, populated when IsExtension is true.
	IsExtension bool
	ExtRole     string
	ExtKind     string
	ExtData     json.RawMessage
}

// FromLlm wraps a Message as an AgentMessage.
func FromLlm(m Message) AgentMessage { return AgentMessage{Llm: m} }

// NewExtension builds an extension AgentMessage.
func NewExtension(role, kind string, data json.RawMessage) AgentMessage {
	return AgentMessage{IsExtension: true, ExtRole: role, ExtKind: kind, ExtData: data}
}

// ToProviderMessages filters extensions out and returns the plain Message
// sequence a provider adapter will see.
func ToProviderMessages(history []AgentMessage) []Message {
	out := make([]Message, 0, len(history))
	for _, am := range history {
		if am.IsExtension {
			continue
		}
		out = append(out, am.Llm)
	}
	return out
}

// ByteLen estimates the serialized size of an AgentMessage for the context
// tracker's fallback estimator.
func (am AgentMessage) ByteLen() int {
	if am.IsExtension {
		return len(am.ExtRole) + len(am.ExtKind) + len(am.ExtData)
	}
	return am.Llm.ByteLen()
}
